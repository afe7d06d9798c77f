// Package engine is the composition root: it owns the active session and its
// transcript, drives generations through the stream coordinator, and exposes
// the session catalog. Everything below it (store, bus, provider registry,
// tracker) is constructed here and injected.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tagforge/tagforge/internal/config"
	"github.com/tagforge/tagforge/internal/event"
	"github.com/tagforge/tagforge/internal/history"
	"github.com/tagforge/tagforge/internal/logging"
	"github.com/tagforge/tagforge/internal/provider"
	"github.com/tagforge/tagforge/internal/storage"
	"github.com/tagforge/tagforge/internal/stream"
	"github.com/tagforge/tagforge/pkg/types"
)

// ErrNoProfile is returned when a generation is started without a configured
// provider profile.
var ErrNoProfile = errors.New("no provider profile selected")

// Options configures a new Engine.
type Options struct {
	Settings *config.Settings
	// DataDir is the session storage root.
	DataDir  string
	Registry *provider.Registry
	// Bus is optional; a private bus is created when nil.
	Bus *event.Bus
	// StreamConfig tunes the token pipeline; zero values take defaults.
	StreamConfig stream.Config
}

// Engine coordinates sessions, transcripts and generations.
type Engine struct {
	settings *config.Settings
	bus      *event.Bus
	store    *history.Store
	catalog  *history.Catalog
	registry *provider.Registry
	monitor  *provider.Monitor
	tracker  *stream.Tracker
	coord    *stream.Coordinator
	watcher  *history.Watcher

	ctx       context.Context
	ctxCancel context.CancelFunc

	mu         sync.Mutex
	session    *types.Session
	transcript *Transcript
	dirty      bool
	profile    *types.AgentProfile
	persona    *types.Persona

	runs sync.WaitGroup
}

// New wires an engine over the given data directory. The watcher is
// best-effort; an engine without one still works, it just will not pick up
// external changes to the session files.
func New(opts Options) (*Engine, error) {
	if opts.Settings == nil {
		opts.Settings = &config.Settings{}
	}
	if opts.Registry == nil {
		opts.Registry = provider.NewRegistry()
	}
	bus := opts.Bus
	if bus == nil {
		bus = event.NewBus()
	}

	store := history.New(storage.New(opts.DataDir), bus)
	tracker := stream.NewTracker(store, bus)
	monitor := provider.NewMonitor(opts.Registry, 0)
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		settings:  opts.Settings,
		bus:       bus,
		store:     store,
		catalog:   history.NewCatalog(store),
		registry:  opts.Registry,
		monitor:   monitor,
		tracker:   tracker,
		coord:     stream.NewCoordinator(tracker, bus, monitor, opts.StreamConfig),
		ctx:       ctx,
		ctxCancel: cancel,
	}

	if watcher, err := history.NewWatcher(opts.DataDir, bus); err != nil {
		logging.Warn().Err(err).Msg("session watcher unavailable")
	} else {
		e.watcher = watcher
	}

	if profile, ok := opts.Settings.FindProfile(opts.Settings.ActiveProfile); ok {
		e.profile = profile
	}
	if persona, ok := opts.Settings.FindPersona(opts.Settings.LastPersona); ok {
		e.persona = persona
	}

	return e, nil
}

// Start runs the startup sequence: migrate legacy single-file histories,
// start the latency monitor and file watcher, and open a chat session.
func (e *Engine) Start() {
	e.store.MigrateLegacy()

	e.mu.Lock()
	profile := e.profile
	e.mu.Unlock()
	if profile != nil {
		e.monitor.SetProfile(profile)
		e.preload(profile)
	}
	e.monitor.Start(e.ctx)
	if e.watcher != nil {
		e.watcher.Start()
	}

	e.NewSession(types.CategoryChat)
}

// Close stops the in-flight generation, persists the active transcript and
// tears down the background machinery.
func (e *Engine) Close() {
	e.coord.Stop()
	e.ctxCancel()
	e.runs.Wait()

	e.mu.Lock()
	e.persistCurrentLocked()
	e.mu.Unlock()

	if e.watcher != nil {
		e.watcher.Stop()
	}
	e.monitor.Stop()
	e.tracker.WaitIdle()
	e.bus.Close()
}

// Bus returns the engine's event bus for subscribers.
func (e *Engine) Bus() *event.Bus { return e.bus }

// Monitor returns the provider latency monitor.
func (e *Engine) Monitor() *provider.Monitor { return e.monitor }

// Session returns a copy of the active session, or nil.
func (e *Engine) Session() *types.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	copied := *e.session
	return &copied
}

// Messages returns a snapshot of the active transcript.
func (e *Engine) Messages() []*types.Message {
	e.mu.Lock()
	transcript := e.transcript
	e.mu.Unlock()
	if transcript == nil {
		return nil
	}
	return transcript.Messages()
}

// NewSession makes a fresh (or reused empty) session in the category the
// active one, persisting the outgoing transcript first.
func (e *Engine) NewSession(category types.Category) *types.Session {
	e.mu.Lock()
	e.persistCurrentLocked()
	sess := e.store.CreateSession(category)
	e.session = sess
	e.transcript = NewTranscript(e.store.LoadTranscript(sess.ID))
	e.dirty = false
	e.mu.Unlock()

	e.tracker.SetDisplayed(sess.ID)
	return sess
}

// SwitchSession activates another session. The outgoing transcript is
// persisted first; if the target session has a generation running in the
// background its live transcript is adopted so no progress is lost.
func (e *Engine) SwitchSession(sessionID string) {
	e.mu.Lock()
	if e.session != nil && e.session.ID == sessionID {
		e.mu.Unlock()
		return
	}
	e.persistCurrentLocked()

	category := (&types.Session{ID: sessionID}).Category()

	var transcript *Transcript
	if live, ok := e.tracker.Live(sessionID); ok {
		if tr, ok := live.(*Transcript); ok {
			transcript = tr
		}
	}
	if transcript == nil {
		transcript = NewTranscript(e.store.LoadTranscript(sessionID))
	}

	sess := e.lookupSession(sessionID, category)
	e.session = sess
	e.transcript = transcript
	e.dirty = false
	e.mu.Unlock()

	e.tracker.SetDisplayed(sessionID)
}

// lookupSession finds the index entry for sessionID, synthesizing one when
// the index has not caught up yet.
func (e *Engine) lookupSession(sessionID string, category types.Category) *types.Session {
	for _, sess := range e.store.LoadIndex(category) {
		if sess.ID == sessionID {
			sess.Active = true
			return &sess
		}
	}
	return &types.Session{ID: sessionID, Active: true}
}

// StartGeneration appends the user message and an assistant placeholder to
// the active transcript and launches the token pipeline. Only one generation
// may run at a time.
func (e *Engine) StartGeneration(input string) error {
	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		e.NewSession(types.CategoryChat)
		e.mu.Lock()
	}
	profile := e.profile
	if profile == nil {
		e.mu.Unlock()
		return ErrNoProfile
	}
	prov, err := e.registry.Get(profile.Provider)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	systemPrompt, userPrompt := e.composePromptsLocked(input)

	userMsg := types.NewMessage(types.RoleUser, input)
	target := types.NewMessage(types.RoleAssistant, "")
	target.IsLoadingModel = true

	sess := e.session
	transcript := e.transcript

	// Claim the generation slot before touching the transcript so a
	// concurrent start is rejected without leaving orphan messages behind.
	if err := e.tracker.Begin(sess.ID, sess.Category(), transcript, target); err != nil {
		e.mu.Unlock()
		return err
	}

	e.transcript.Append(userMsg)
	e.transcript.Append(target)
	e.dirty = true
	e.mu.Unlock()

	e.bus.PublishSync(event.Event{
		Type: event.MessageUpdated,
		Data: event.MessageUpdatedData{SessionID: sess.ID, Message: userMsg},
	})

	req := &stream.Request{
		SessionID:    sess.ID,
		Category:     sess.Category(),
		Transcript:   transcript,
		Target:       target,
		Provider:     prov,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Model:        profile.SelectedModel,
		Credentials: provider.Credentials{
			APIKey:      profile.APIKey,
			EndpointURL: profile.EndpointURL,
		},
	}

	e.runs.Add(1)
	go func() {
		defer e.runs.Done()
		if err := e.coord.Run(e.ctx, req); err != nil {
			logging.Warn().Err(err).Str("session", req.SessionID).Msg("generation ended with error")
		}
		e.mu.Lock()
		if e.session != nil && e.session.ID == req.SessionID {
			// The coordinator persisted the final transcript.
			e.dirty = false
		}
		e.mu.Unlock()
	}()
	return nil
}

// composePromptsLocked renders the active persona against the user input.
// A persona carrying the {input} placeholder is a prompt template and becomes
// the user prompt; otherwise it rides along as the system prompt.
func (e *Engine) composePromptsLocked(input string) (systemPrompt, userPrompt string) {
	userPrompt = input
	if e.persona == nil {
		return "", userPrompt
	}
	rendered := e.persona.Render(input)
	if rendered != e.persona.SystemPrompt {
		return "", rendered
	}
	return e.persona.SystemPrompt, userPrompt
}

// StopGeneration cancels the in-flight generation, if any.
func (e *Engine) StopGeneration() {
	e.coord.Stop()
}

// Generating reports whether a generation is in flight.
func (e *Engine) Generating() bool {
	return e.coord.Generating()
}

// WaitForGenerations blocks until every launched generation has settled.
func (e *Engine) WaitForGenerations() {
	e.runs.Wait()
	e.tracker.WaitIdle()
}

// SelectProfile activates the named provider profile and asks the provider
// to preload its model.
func (e *Engine) SelectProfile(name string) error {
	profile, ok := e.settings.FindProfile(name)
	if !ok {
		return fmt.Errorf("unknown profile %q", name)
	}
	e.mu.Lock()
	e.profile = profile
	e.mu.Unlock()

	e.monitor.SetProfile(profile)
	e.preload(profile)
	return nil
}

// preload asks the provider to warm the selected model in the background.
func (e *Engine) preload(profile *types.AgentProfile) {
	prov, err := e.registry.Get(profile.Provider)
	if err != nil {
		return
	}
	creds := provider.Credentials{APIKey: profile.APIKey, EndpointURL: profile.EndpointURL}
	model := profile.SelectedModel
	e.runs.Add(1)
	go func() {
		defer e.runs.Done()
		if err := prov.Preload(e.ctx, model, creds); err != nil {
			logging.Warn().Err(err).Str("model", model).Msg("model preload failed")
		}
	}()
}

// SelectPersona activates the named persona.
func (e *Engine) SelectPersona(name string) error {
	persona, ok := e.settings.FindPersona(name)
	if !ok {
		return fmt.Errorf("unknown persona %q", name)
	}
	e.mu.Lock()
	e.persona = persona
	e.mu.Unlock()
	return nil
}

// Profile returns the active provider profile, or nil.
func (e *Engine) Profile() *types.AgentProfile {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile
}

// Persona returns the active persona, or nil.
func (e *Engine) Persona() *types.Persona {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.persona
}

// Sessions returns every known session, most recent first.
func (e *Engine) Sessions() []types.Session {
	return e.catalog.Sessions()
}

// SearchSessions filters the catalog by text query and category.
func (e *Engine) SearchSessions(query string, filter history.Filter) []types.Session {
	return e.catalog.Search(query, filter)
}

// RenameSession sets a session title.
func (e *Engine) RenameSession(sessionID, title string) {
	category := (&types.Session{ID: sessionID}).Category()
	e.store.RenameSession(sessionID, category, title)

	e.mu.Lock()
	if e.session != nil && e.session.ID == sessionID {
		e.session.Title = title
	}
	e.mu.Unlock()
}

// DeleteSession removes a session. Deleting the active session opens a fresh
// one in the same category.
func (e *Engine) DeleteSession(sessionID string) {
	category := (&types.Session{ID: sessionID}).Category()
	e.store.DeleteSession(sessionID, category)

	e.mu.Lock()
	wasActive := e.session != nil && e.session.ID == sessionID
	if wasActive {
		e.session = nil
		e.transcript = nil
		e.dirty = false
	}
	e.mu.Unlock()

	if wasActive {
		e.NewSession(category)
	}
}

// DeleteAllSessions clears a category.
func (e *Engine) DeleteAllSessions(category types.Category) {
	e.store.DeleteAllSessions(category)

	e.mu.Lock()
	wasActive := e.session != nil && e.session.Category() == category
	if wasActive {
		e.session = nil
		e.transcript = nil
		e.dirty = false
	}
	e.mu.Unlock()

	if wasActive {
		e.NewSession(category)
	}
}

// DeleteEmptySessions prunes zero-message sessions in a category.
func (e *Engine) DeleteEmptySessions(category types.Category) {
	e.store.DeleteEmptySessions(category)
}

// persistCurrentLocked flushes the active transcript if it has unsaved
// messages. Callers hold e.mu.
func (e *Engine) persistCurrentLocked() {
	if e.session == nil || e.transcript == nil || !e.dirty {
		return
	}
	sessionID := e.session.ID
	category := e.session.Category()
	messages := e.transcript.Messages()
	e.tracker.WithSessionLock(sessionID, func() {
		e.store.SaveTranscript(sessionID, messages, category)
	})
	e.dirty = false
}
