package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dmi3yy/webui-pipes/internal/auth"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen <api-key>",
		Short: "Print the SHA-256 hash of an API key for server.api_key_hashes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "SHA-256 Hash: %s\n", auth.HashAPIKey(args[0]))
			fmt.Fprintln(out, "\nAdd this to your config.yaml:")
			fmt.Fprintln(out, "  server:")
			fmt.Fprintln(out, "    api_key_hashes:")
			fmt.Fprintf(out, "      - %q\n", auth.HashAPIKey(args[0]))
			return nil
		},
	}
}
