// Command responder-setup interactively builds a responder
// configuration file: it prompts for each server's type, port, bind
// address and (for web servers) content, then writes the YAML config
// the responder daemon consumes.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/tcp-responder/pkg/config"
)

var (
	outputPath string
	force      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "responder-setup",
		Short: "Interactive configuration wizard for tcp-responder",
		Long: `responder-setup walks through configuring a set of echo and web
servers (up to ` + fmt.Sprint(config.MaxServers) + `) and writes the configuration file the
responder daemon reads at startup.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWizard(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	rootCmd.Flags().StringVarP(&outputPath, "output", "o", config.DefaultConfigPath(), "Configuration file to write")
	rootCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file without asking")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
