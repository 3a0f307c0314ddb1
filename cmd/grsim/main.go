// Command grsim boots the graphics engine on a simulated gk20a and lets it
// be inspected, recorded and served.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

func newRootCmd() *cobra.Command {
	o := &options{}

	rootCmd := &cobra.Command{
		Use:   "grsim",
		Short: "Run the graphics engine on a simulated GPU.",
		Long: `grsim boots the graphics engine context switch manager on a ` +
			`simulated gk20a. It can open channels, print the floorsweep ` +
			`and ZBC state, record the register traffic and serve the ` +
			`engine state over HTTP.`,
		SilenceUsage: true,
	}

	f := rootCmd.PersistentFlags()
	f.StringVar(&o.configPath, "config", "",
		"chip description, .yaml, .yml or .toml")
	f.StringVar(&o.envPath, "env", ".env",
		"dotenv file with GRENGINE_* overrides")
	f.StringVar(&o.logLevel, "log-level", "warning", "logrus log level")

	rootCmd.AddCommand(
		newBootCmd(o),
		newTileMapCmd(o),
		newZbcCmd(o),
		newServeCmd(o),
		newRecordCmd(o),
	)

	return rootCmd
}

func main() {
	err := newRootCmd().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
