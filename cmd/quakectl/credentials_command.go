package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-notifier/internal/domain"
)

func newCredentialsCommand(ctx *commandContext) *cobra.Command {
	credentialsCmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage timeline credentials",
	}
	credentialsCmd.AddCommand(newCredentialsSetCommand(ctx))
	return credentialsCmd
}

func newCredentialsSetCommand(ctx *commandContext) *cobra.Command {
	var userID, token, tokenType string
	var expiresIn time.Duration

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store an already-obtained access token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if expiresIn < 0 {
				return errors.New("--expires-in must not be negative")
			}
			a, err := ctx.ensureApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			cred := domain.Credential{AccessToken: token, TokenType: tokenType}
			if expiresIn > 0 {
				cred.Expiry = domain.Now().Add(expiresIn)
			}
			if err := a.Store.PutCredential(cmd.Context(), userID, cred); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Credential stored for %s (%s)\n", userID, credentialStatus(cred, nil, domain.Now()))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id")
	cmd.Flags().StringVar(&token, "token", "", "OAuth access token")
	cmd.Flags().StringVar(&tokenType, "type", "Bearer", "Token type")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Token lifetime; 0 never expires")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}
