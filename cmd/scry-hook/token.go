package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/service/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint an access token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[0], err)
			}
			cfg, _, err := flags.load()
			if err != nil {
				return err
			}
			jwtService, err := auth.NewJWTService(cfg.Auth)
			if err != nil {
				return err
			}
			token, err := jwtService.GenerateToken(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
