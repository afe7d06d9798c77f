// Package commands provides the CLI commands for TagForge.
package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tagforge/tagforge/internal/config"
	"github.com/tagforge/tagforge/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel string
	dataDir  string
)

var rootCmd = &cobra.Command{
	Use:   "tagforge",
	Short: "TagForge - local LLM chat and tag generation sessions",
	Long: `TagForge manages streaming chat and tag-generation sessions against
local LLM providers, with durable per-session transcripts.

Run 'tagforge run "your prompt"' for a one-shot generation, or
'tagforge sessions list' to browse saved sessions.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Session data directory")

	rootCmd.SetVersionTemplate(fmt.Sprintf("tagforge %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(migrateCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup loads .env and layered configuration, initializes logging and
// resolves the session data directory. Flags win over config.
func setup() (*config.Settings, string, error) {
	_ = godotenv.Load()

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return nil, "", err
	}

	workDir, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}
	settings, err := config.Load(workDir)
	if err != nil {
		return nil, "", err
	}

	level := settings.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logging.Init(logging.Config{
		Level:  logging.ParseLevel(level),
		Output: os.Stderr,
		Pretty: true,
		Ring:   logging.NewRing(),
	})

	dir := paths.SessionsPath()
	if settings.DataDir != "" {
		dir = settings.DataDir
	}
	if dataDir != "" {
		dir = dataDir
	}
	return settings, dir, nil
}
