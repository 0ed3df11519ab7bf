// Package main 是应用程序的入口点。
package main

import (
	"fmt"
	"os"

	"acu-chatbot-go/internal/config"
	"acu-chatbot-go/internal/pipeline"

	"github.com/spf13/cobra"
)

const version = "1.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:          "acu-chatbot",
	Short:        "ACU campus assistant chat service",
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var intentsCmd = &cobra.Command{
	Use:   "intents",
	Short: "Intent table tools",
}

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate an intent table file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runValidateIntents,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "config file path")
	intentsCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serveCmd, intentsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runValidateIntents(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		path = cfg.Intents.File
	}
	table, err := pipeline.LoadIntents(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if _, err := pipeline.NewRuleMatcher(table.Intents, table.KeywordThreshold); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d intents OK\n", path, len(table.Intents))
	return nil
}
