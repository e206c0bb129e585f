package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-notifier/internal/domain"
)

func newPushTestCommand(ctx *commandContext) *cobra.Command {
	var userID, place string
	var lon, lat, mag float64

	cmd := &cobra.Command{
		Use:   "push-test",
		Short: "Deliver a hand-built earthquake card to one user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}

			cred, err := a.Store.GetCredential(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if !cred.Valid(domain.Now()) {
				return fmt.Errorf("user %s: %w", userID, domain.ErrCredentialInvalid)
			}

			event := testQuake(lon, lat, mag, place)
			card := a.Cards.BuildCard(event, "")

			if a.Cards.MapsEnabled() {
				mapCtx, cancel := context.WithTimeout(cmd.Context(), a.Config.MapboxTimeout)
				img := a.Cards.FetchMapImage(mapCtx, event)
				cancel()
				if img.Available() {
					card.MapImage = img.Data
				} else {
					ctx.logger(cmd).Warn("map image unavailable", "error", img.Err)
				}
			}

			deliverCtx, cancel := context.WithTimeout(cmd.Context(), a.Config.DeliveryTimeout)
			defer cancel()
			if err := a.Delivery.Deliver(deliverCtx, userID, cred, card); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Test card delivered to %s (map image: %t)\n", userID, len(card.MapImage) > 0)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Epicenter longitude")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Epicenter latitude")
	cmd.Flags().Float64Var(&mag, "mag", 5.0, "Magnitude")
	cmd.Flags().StringVar(&place, "place", "Test earthquake", "Place description")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("lon")
	_ = cmd.MarkFlagRequired("lat")
	return cmd
}

func testQuake(lon, lat, mag float64, place string) domain.Earthquake {
	now := domain.Now()
	return domain.Earthquake{
		ID:         fmt.Sprintf("test-%d", now.Unix()),
		Lon:        lon,
		Lat:        lat,
		Magnitude:  mag,
		Place:      place,
		OccurredAt: now,
	}
}
