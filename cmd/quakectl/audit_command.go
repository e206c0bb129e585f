package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	kafkaadapter "github.com/couchcryptid/quake-notifier/internal/adapter/kafka"
	"github.com/couchcryptid/quake-notifier/internal/domain"
)

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var idle time.Duration
	var group string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read delivery records from the Kafka audit stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.KafkaEnabled {
				return errors.New("kafka audit stream is disabled (set KAFKA_ENABLED=true)")
			}
			reader, err := kafkaadapter.NewReader(cfg.KafkaBrokers, cfg.KafkaTopic, group)
			if err != nil {
				return err
			}
			defer reader.Close()

			records, err := reader.Poll(cmd.Context(), limit, idle)
			if err != nil {
				return err
			}
			if ctx.wantJSON() {
				return writeJSON(cmd, records)
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No delivery records")
				return nil
			}
			printTable(cmd,
				[]string{"Delivered (UTC)", "User", "Event", "Bundle", "Cover", "Mag", "Place", "Map"},
				auditRows(records),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum records to read")
	cmd.Flags().DurationVar(&idle, "idle", 2*time.Second, "Stop after this long without a new record")
	cmd.Flags().StringVar(&group, "group", "", "Consumer group; empty reads from the beginning")
	return cmd
}

func auditRows(records []domain.DeliveryRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		mag := ""
		if !r.IsBundleCover {
			mag = strconv.FormatFloat(r.Magnitude, 'f', -1, 64)
		}
		rows = append(rows, []string{
			r.DeliveredAt.UTC().Format("2006-01-02 15:04:05"),
			r.UserID,
			r.EventID,
			r.BundleID,
			strconv.FormatBool(r.IsBundleCover),
			mag,
			r.Place,
			strconv.FormatBool(r.HasMapImage),
		})
	}
	return rows
}
