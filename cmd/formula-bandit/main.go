package main

import (
	"encoding/json"
	"io"
	"log"

	"github.com/Fuchsoria/formula-bandit/internal/version"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

var (
	configFile string
	config     Config
)

var rootCmd = &cobra.Command{
	Use:           "formula-bandit",
	Short:         "Thompson sampling selector for financial formulas",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		config, err = NewConfig(configFile)

		return err
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	// overrides the root hook, version needs no config
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		version.PrintVersion()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "/etc/formula-bandit/config.json", "Path to configuration file")

	rootCmd.AddCommand(
		versionCmd,
		newSelectCmd(),
		newUpdateCmd(),
		newStatsCmd(),
		newBestCmd(),
		newABTestCmd(),
		newActivateCmd(),
		newWorkerCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
