package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tagforge/tagforge/pkg/types"
)

var (
	migrateChatFile      string
	migrateGeneratorFile string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Import legacy single-file histories into sessions",
	Long: `Import pre-session history files into the session store. Without flags
the default legacy files (history.json, generation_history.json) in the data
directory are migrated; the legacy files are removed afterwards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		if migrateChatFile == "" && migrateGeneratorFile == "" {
			store.MigrateLegacy()
			return nil
		}

		if migrateChatFile != "" {
			if sess := store.MigrateLegacyFile(migrateChatFile, types.CategoryChat); sess != nil {
				fmt.Printf("migrated %s -> %s\n", migrateChatFile, sess.ID)
			}
		}
		if migrateGeneratorFile != "" {
			if sess := store.MigrateLegacyFile(migrateGeneratorFile, types.CategoryGenerator); sess != nil {
				fmt.Printf("migrated %s -> %s\n", migrateGeneratorFile, sess.ID)
			}
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateChatFile, "chat-file", "", "Legacy chat history file to import")
	migrateCmd.Flags().StringVar(&migrateGeneratorFile, "generator-file", "", "Legacy generation history file to import")
}
