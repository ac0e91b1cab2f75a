package cli

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/steplov/pvtools/src/config"
	"github.com/steplov/pvtools/src/logx"
	"github.com/steplov/pvtools/src/safety"
	"github.com/steplov/pvtools/src/storage"
)

// addGlobalFlags adds the persistent flags shared by every command.
func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("config", "c", config.DefaultPath, "Path to the pvtools configuration file")
	cmd.PersistentFlags().String("log-level", "info", "Log level: trace|debug|info|warn|error")
	cmd.PersistentFlags().Bool("log-json", false, "Emit structured JSON logs instead of console output")
	cmd.PersistentFlags().Bool("dry-run", false, "Show planned actions without making changes")
	cmd.PersistentFlags().BoolP("yes", "y", false, "Assume 'yes' to prompts and run non-interactively")
	cmd.PersistentFlags().Bool("force", false, "Overwrite existing destination volumes on restore")
}

// getSafetyOptions reads the global safety flags.
func getSafetyOptions(cmd *cobra.Command) safety.Options {
	flags := cmd.Root().PersistentFlags()
	dry, _ := flags.GetBool("dry-run")
	yes, _ := flags.GetBool("yes")
	force, _ := flags.GetBool("force")
	return safety.Options{DryRun: dry, Yes: yes, Force: force}
}

// loadConfig reads and validates the file named by --config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	return config.Load(path)
}

// newLogger builds the run logger from the global logging flags.
func newLogger(cmd *cobra.Command, w io.Writer) zerolog.Logger {
	flags := cmd.Root().PersistentFlags()
	level, _ := flags.GetString("log-level")
	jsonOut, _ := flags.GetBool("log-json")
	return logx.New(w, level, jsonOut)
}

// buildProviders returns the node's storage backends in discovery order:
// ZFS pools first, then LVM thin volume groups.
func buildProviders() []storage.Provider {
	return []storage.Provider{storage.NewZFS(), storage.NewLVMThin()}
}
