package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tagforge/tagforge/internal/event"
	"github.com/tagforge/tagforge/internal/history"
	"github.com/tagforge/tagforge/internal/storage"
	"github.com/tagforge/tagforge/pkg/types"
)

var (
	sessionsCategory string
	pruneAll         bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Browse and manage saved sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listSessions("")
	},
}

var sessionsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search session titles and previews",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return listSessions(args[0])
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		messages := store.LoadTranscript(args[0])
		if len(messages) == 0 {
			fmt.Println("(empty session)")
			return nil
		}
		for _, msg := range messages {
			fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
		}
		return nil
	},
}

var sessionsRenameCmd = &cobra.Command{
	Use:   "rename <session-id> <title>",
	Short: "Set a session title",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		sessionID := args[0]
		store.RenameSession(sessionID, (&types.Session{ID: sessionID}).Category(), args[1])
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and its transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		sessionID := args[0]
		store.DeleteSession(sessionID, (&types.Session{ID: sessionID}).Category())
		return nil
	},
}

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete empty sessions (or every session with --all)",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		categories, err := selectedCategories()
		if err != nil {
			return err
		}
		for _, category := range categories {
			if pruneAll {
				store.DeleteAllSessions(category)
			} else {
				store.DeleteEmptySessions(category)
			}
		}
		return nil
	},
}

func init() {
	sessionsCmd.PersistentFlags().StringVar(&sessionsCategory, "category", "", "Limit to a category (chat|generator)")
	sessionsPruneCmd.Flags().BoolVar(&pruneAll, "all", false, "Delete every session, not just empty ones")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsSearchCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsRenameCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsPruneCmd)
}

func openStore() (*history.Store, error) {
	_, dir, err := setup()
	if err != nil {
		return nil, err
	}
	return history.New(storage.New(dir), event.NewBus()), nil
}

func listSessions(query string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	catalog := history.NewCatalog(store)

	filter := history.FilterAll
	switch sessionsCategory {
	case "":
	case string(types.CategoryChat):
		filter = history.FilterChat
	case string(types.CategoryGenerator), "tag":
		filter = history.FilterGenerator
	default:
		return fmt.Errorf("unknown category %q", sessionsCategory)
	}

	sessions := catalog.Search(query, filter)
	if len(sessions) == 0 {
		fmt.Println("no sessions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODIFIED\tMSGS\tTITLE")
	for _, sess := range sessions {
		modified := time.UnixMilli(sess.LastModified).Format("2006-01-02 15:04")
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", sess.ID, modified, sess.MessageCount, sess.Title)
	}
	return w.Flush()
}

func selectedCategories() ([]types.Category, error) {
	if sessionsCategory == "" {
		return types.Categories(), nil
	}
	category, err := types.ParseCategory(sessionsCategory)
	if err != nil {
		return nil, err
	}
	return []types.Category{category}, nil
}
