// Command vhauth-server runs the Virtual Hospital auth API and its
// operator tooling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "vhauth-server",
		Short:         "Virtual Hospital session and token service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "optional config file (yaml, json, toml or .env)")

	root.AddCommand(serveCmd(&configFile))
	root.AddCommand(checkConfigCmd(&configFile))
	root.AddCommand(genSecretCmd())
	root.AddCommand(loadtestCmd())
	return root
}

func serveCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the auth API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configFile)
		},
	}
}

func checkConfigCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate settings, then print the security report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckConfig(cmd.OutOrStdout(), *configFile)
		},
	}
}

func genSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-secret",
		Short: "Print a random 64-byte hex base secret for JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := generateSecret()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), secret)
			return err
		},
	}
}
