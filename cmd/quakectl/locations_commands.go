package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	redisstore "github.com/couchcryptid/quake-notifier/internal/adapter/redis"
	"github.com/couchcryptid/quake-notifier/internal/domain"
)

func newLocationsCommand(ctx *commandContext) *cobra.Command {
	locationsCmd := &cobra.Command{
		Use:   "locations",
		Short: "Manage a user's interest points",
	}
	locationsCmd.AddCommand(newLocationsAddCommand(ctx))
	locationsCmd.AddCommand(newLocationsRemoveCommand(ctx))
	locationsCmd.AddCommand(newLocationsListCommand(ctx))
	return locationsCmd
}

func newLocationsAddCommand(ctx *commandContext) *cobra.Command {
	var userID, description string
	var lon, lat float64

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an interest point for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			p, err := a.Store.AddInterestPoint(cmd.Context(), userID, description, lon, lat)
			if err != nil {
				return err
			}
			if ctx.wantJSON() {
				return writeJSON(cmd, p)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Location %s added for %s\n", p.ID, userID)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id")
	cmd.Flags().StringVar(&description, "description", "", "Free-text label")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Longitude in degrees")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude in degrees")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("lon")
	_ = cmd.MarkFlagRequired("lat")
	return cmd
}

func newLocationsRemoveCommand(ctx *commandContext) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:     "rm <location-id>",
		Aliases: []string{"remove"},
		Short:   "Remove an interest point",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			err = a.Store.RemoveInterestPoint(cmd.Context(), userID, args[0])
			if errors.Is(err, redisstore.ErrNotFound) {
				return fmt.Errorf("user %s has no location %s", userID, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Location %s removed\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newLocationsListCommand(ctx *commandContext) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List a user's interest points",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			points, err := a.Store.ListInterestPoints(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if ctx.wantJSON() {
				return writeJSON(cmd, points)
			}
			if len(points) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No locations for %s\n", userID)
				return nil
			}
			printTable(cmd,
				[]string{"ID", "Description", "Lon", "Lat"},
				locationRows(points),
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func locationRows(points []domain.InterestPoint) [][]string {
	rows := make([][]string, 0, len(points))
	for _, p := range points {
		rows = append(rows, []string{
			p.ID,
			p.Description,
			strconv.FormatFloat(p.Lon, 'f', 4, 64),
			strconv.FormatFloat(p.Lat, 'f', 4, 64),
		})
	}
	return rows
}
