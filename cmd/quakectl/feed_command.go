package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-notifier/internal/adapter/usgs"
	"github.com/couchcryptid/quake-notifier/internal/domain"
)

type feedEntry struct {
	domain.Earthquake
	Distance *float64 `json:"distance,omitempty"`
}

func newFeedCommand(ctx *commandContext) *cobra.Command {
	var since time.Duration
	var lon, lat, radius float64

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Show recent earthquakes from the live feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if since <= 0 {
				return errors.New("--since must be positive")
			}
			near := cmd.Flags().Changed("lon") || cmd.Flags().Changed("lat")
			if near && !(cmd.Flags().Changed("lon") && cmd.Flags().Changed("lat")) {
				return errors.New("--lon and --lat must be given together")
			}
			if radius <= 0 {
				radius = cfg.MatchRadius
			}

			feed, err := usgs.NewClient(cfg.FeedURL, cfg.FeedTimeout, ctx.logger(cmd)).Fetch(cmd.Context())
			if err != nil {
				return err
			}

			events := domain.SelectNew(feed.Events, feed.FetchedAt.Add(-since))
			var center *domain.Point
			if near {
				center = &domain.Point{Lon: lon, Lat: lat}
			}
			entries := filterFeed(events, center, radius)

			if ctx.wantJSON() {
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No earthquakes in the last %s\n", since)
				return nil
			}
			printTable(cmd,
				[]string{"ID", "Time (UTC)", "Mag", "Place", "Lon", "Lat", "Distance"},
				feedRows(entries),
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight, alignRight},
			)
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", domain.DefaultInitialLookback, "How far back to look")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Only show earthquakes near this longitude")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Only show earthquakes near this latitude")
	cmd.Flags().Float64Var(&radius, "radius", 0, "Match radius in degrees (default MATCH_RADIUS)")
	return cmd
}

// filterFeed keeps events within radius of center, or all events when
// center is nil.
func filterFeed(events []domain.Earthquake, center *domain.Point, radius float64) []feedEntry {
	entries := make([]feedEntry, 0, len(events))
	for _, e := range events {
		entry := feedEntry{Earthquake: e}
		if center != nil {
			d := domain.Distance(*center, e.Epicenter())
			if d >= radius {
				continue
			}
			entry.Distance = &d
		}
		entries = append(entries, entry)
	}
	return entries
}

func feedRows(entries []feedEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		distance := ""
		if e.Distance != nil {
			distance = strconv.FormatFloat(*e.Distance, 'f', 3, 64)
		}
		rows = append(rows, []string{
			e.ID,
			e.OccurredAt.UTC().Format("2006-01-02 15:04:05"),
			e.MagnitudeText(),
			e.Place,
			strconv.FormatFloat(e.Lon, 'f', 4, 64),
			strconv.FormatFloat(e.Lat, 'f', 4, 64),
			distance,
		})
	}
	return rows
}
