package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-notifier/internal/domain"
)

type userSummary struct {
	UserID     string `json:"user_id"`
	Locations  int    `json:"locations"`
	Credential string `json:"credential"`
}

func newUsersCommand(ctx *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage registered users",
	}
	usersCmd.AddCommand(newUsersAddCommand(ctx))
	usersCmd.AddCommand(newUsersListCommand(ctx))
	return usersCmd
}

func newUsersAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <user-id>",
		Short: "Register a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			if err := a.Store.AddUser(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %s registered\n", args[0])
			return nil
		},
	}
}

func newUsersListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List users with their location count and credential status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			users, err := a.Store.ListUsers(cmd.Context())
			if err != nil {
				return err
			}

			now := domain.Now()
			summaries := make([]userSummary, 0, len(users))
			for _, id := range users {
				points, err := a.Store.ListInterestPoints(cmd.Context(), id)
				if err != nil {
					return err
				}
				cred, err := a.Store.GetCredential(cmd.Context(), id)
				summaries = append(summaries, userSummary{
					UserID:     id,
					Locations:  len(points),
					Credential: credentialStatus(cred, err, now),
				})
			}

			if ctx.wantJSON() {
				return writeJSON(cmd, summaries)
			}
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No users registered")
				return nil
			}
			printTable(cmd,
				[]string{"User", "Locations", "Credential"},
				userRows(summaries),
				[]columnAlignment{alignLeft, alignRight, alignLeft},
			)
			return nil
		},
	}
}

func userRows(summaries []userSummary) [][]string {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{s.UserID, strconv.Itoa(s.Locations), s.Credential})
	}
	return rows
}

func credentialStatus(cred domain.Credential, err error, now time.Time) string {
	switch {
	case errors.Is(err, domain.ErrCredentialMissing):
		return "missing"
	case err != nil:
		return "error: " + err.Error()
	case !cred.Valid(now):
		return "expired"
	case cred.Expiry.IsZero():
		return "valid"
	default:
		return "valid until " + cred.Expiry.UTC().Format(time.RFC3339)
	}
}
