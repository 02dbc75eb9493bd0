// Package commands defines all Cobra CLI commands for the visiq binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Mihir-M112/VisiQ-GPT/internal/audit"
	"github.com/Mihir-M112/VisiQ-GPT/internal/config"
	"github.com/Mihir-M112/VisiQ-GPT/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "visiq",
		Short: "VisiQ-GPT — ask questions about your documents and images",
		Long: `VisiQ-GPT is a local-first document assistant powered by a vision-language model.

It indexes PDFs, Word documents, and images into a Qdrant vector store and
answers natural language questions about them using retrieval-augmented
generation over a local Ollama model. Images are understood visually, so
charts, diagrams, and screenshots are first-class citizens.

Everything runs on your machine: documents, embeddings, and conversations
never leave localhost unless you configure a remote backend.
See 'visiq --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A .env file in the working directory is optional.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.visiq/config.yaml)")

	root.AddCommand(
		NewIndexCmd(),
		NewAskCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
