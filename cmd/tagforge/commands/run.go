package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tagforge/tagforge/internal/engine"
	"github.com/tagforge/tagforge/internal/event"
	"github.com/tagforge/tagforge/internal/provider"
	"github.com/tagforge/tagforge/pkg/types"
)

var (
	runProfile  string
	runPersona  string
	runCategory string
	runSession  string
)

var runCmd = &cobra.Command{
	Use:   "run [prompt...]",
	Short: "Run a one-shot streaming generation",
	Long: `Run a single generation against the active provider profile, streaming
the response to stdout. The exchange is saved as a session.

Examples:
  tagforge run "describe a red fox"
  tagforge run --persona tags --category generator "a red car at sunset"
  tagforge run --session chat_1712000000000 "and then?"`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runGeneration,
}

func init() {
	runCmd.Flags().StringVar(&runProfile, "profile", "", "Provider profile to use")
	runCmd.Flags().StringVar(&runPersona, "persona", "", "Persona to apply")
	runCmd.Flags().StringVar(&runCategory, "category", string(types.CategoryChat), "Session category (chat|generator)")
	runCmd.Flags().StringVarP(&runSession, "session", "s", "", "Continue an existing session")
}

func runGeneration(cmd *cobra.Command, args []string) error {
	settings, dir, err := setup()
	if err != nil {
		return err
	}

	category, err := types.ParseCategory(runCategory)
	if err != nil {
		return err
	}

	// Vendor transports register themselves here; a build without any leaves
	// the registry empty and run fails with a clear error.
	registry := provider.NewRegistry()

	eng, err := engine.New(engine.Options{
		Settings: settings,
		DataDir:  dir,
		Registry: registry,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	eng.Start()

	if runProfile != "" {
		if err := eng.SelectProfile(runProfile); err != nil {
			return err
		}
	}
	if runPersona != "" {
		if err := eng.SelectPersona(runPersona); err != nil {
			return err
		}
	}

	if runSession != "" {
		eng.SwitchSession(runSession)
	} else if category != types.CategoryChat {
		eng.NewSession(category)
	}

	unsub := eng.Bus().Subscribe(event.MessageUpdated, func(e event.Event) {
		data := e.Data.(event.MessageUpdatedData)
		if data.Delta != "" {
			fmt.Print(data.Delta)
		}
	})
	defer unsub()

	prompt := strings.Join(args, " ")
	if err := eng.StartGeneration(prompt); err != nil {
		return err
	}
	eng.WaitForGenerations()
	fmt.Println()

	return generationError(eng.Messages())
}

// generationError surfaces a failed generation as a command error. It is
// returned rather than exiting directly so the deferred engine shutdown still
// flushes pending saves.
func generationError(msgs []*types.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if last := msgs[len(msgs)-1]; strings.HasPrefix(last.Content, "Generation Failed") {
		return errors.New(last.Content)
	}
	return nil
}
