// Package cli implements the cepctl command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fastdata/cepbridge/internal/client"
)

var (
	cfgFile string
	cfg     *Config
)

var rootCmd = &cobra.Command{
	Use:   "cepctl",
	Short: "cepbridge admin CLI",
	Long: `cepctl is the command-line interface for cepbridge.

Register event sinks and monitored attributes through the admin API, and
publish synthetic context changes onto the feed for testing statements.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		errorf(rootCmd.ErrOrStderr(), "%v", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.cepctl/config.yaml)")
	rootCmd.PersistentFlags().String("server", "", "admin API base URL (default: http://localhost:8090)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "output format: table, json, yaml")

	rootCmd.AddCommand(sinksCmd)
	rootCmd.AddCommand(attributesCmd)
	rootCmd.AddCommand(seedCmd)
}

func initConfig() {
	var err error
	cfg, err = LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = DefaultConfig()
	}
}

// adminClient builds a client for --server, falling back to the config file.
func adminClient(cmd *cobra.Command) *client.AdminClient {
	server, _ := cmd.Flags().GetString("server")
	if server == "" && cfg != nil {
		server = cfg.Server
	}
	if server == "" {
		server = DefaultServer
	}
	return client.NewAdminClient(server)
}
