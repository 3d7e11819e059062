// Package onboarding drives the guided first-run flow: a welcome modal,
// a step-by-step tour, and a dismissible checklist. State advances
// through a small machine and is persisted via a Store on every
// transition, so a returning session never re-sees a welcome it already
// dismissed or a tour it already finished.
//
// Persistence failures never break the flow: a failed read is treated as
// "no prior state" and a failed write is logged and ignored. Losing a
// dismissal is annoying; crashing the dashboard over it is worse.
package onboarding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Phase is the position in the onboarding sequence.
type Phase int

const (
	NotStarted   Phase = iota // session has not seen the welcome yet
	WelcomeShown              // welcome modal is visible
	TourActive                // guided tour in progress (see State.TourStep)
	TourComplete              // terminal: tour finished
	Dismissed                 // terminal: welcome or tour dismissed
)

var phaseNames = map[Phase]string{
	NotStarted:   "not_started",
	WelcomeShown: "welcome_shown",
	TourActive:   "tour_active",
	TourComplete: "tour_complete",
	Dismissed:    "dismissed",
}

// String returns the snake_case name used on the wire and in storage.
func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "unknown"
}

// MarshalJSON encodes the phase as its string name so persisted blobs
// stay readable and survive reordering of the enum.
func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a phase from its string name.
func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for ph, name := range phaseNames {
		if name == s {
			*p = ph
			return nil
		}
	}
	return fmt.Errorf("onboarding: unknown phase %q", s)
}

// State is the persisted onboarding state for one session key.
type State struct {
	Phase              Phase `json:"phase"`
	TourStep           int   `json:"tour_step"`
	ChecklistDismissed bool  `json:"checklist_dismissed"`
}

// ShowWelcome reports whether the welcome modal should render.
func (s State) ShowWelcome() bool {
	return s.Phase == NotStarted || s.Phase == WelcomeShown
}

// TourRunning reports whether the guided tour overlay should render.
func (s State) TourRunning() bool {
	return s.Phase == TourActive
}

// Store persists onboarding state per session key. Implementations must
// be safe for concurrent use. The bool result of Get distinguishes "no
// prior state" from the zero State.
type Store interface {
	Get(ctx context.Context, key string) (State, bool, error)
	Put(ctx context.Context, key string, st State) error
}

// Controller applies onboarding transitions against a Store.
type Controller struct {
	store  Store
	steps  int
	logger *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New creates a Controller with the given tour length.
func New(store Store, tourSteps int, opts ...Option) *Controller {
	if tourSteps <= 0 {
		tourSteps = 1
	}
	c := &Controller{
		store:  store,
		steps:  tourSteps,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Begin loads the session's state, initializing a fresh session to
// WelcomeShown. This is the entry point a page load goes through.
func (c *Controller) Begin(ctx context.Context, key string) State {
	st, ok := c.load(ctx, key)
	if !ok {
		st = State{Phase: WelcomeShown}
		c.persist(ctx, key, st)
	}
	return st
}

// DismissWelcome moves to Dismissed. Valid from WelcomeShown or
// TourActive; anywhere else it is a no-op returning the current state.
func (c *Controller) DismissWelcome(ctx context.Context, key string) State {
	st := c.Begin(ctx, key)
	if st.Phase != WelcomeShown && st.Phase != TourActive {
		return st
	}
	st.Phase = Dismissed
	st.TourStep = 0
	c.persist(ctx, key, st)
	return st
}

// StartTour moves WelcomeShown to TourActive at step 0.
func (c *Controller) StartTour(ctx context.Context, key string) State {
	st := c.Begin(ctx, key)
	if st.Phase != WelcomeShown {
		return st
	}
	st.Phase = TourActive
	st.TourStep = 0
	c.persist(ctx, key, st)
	return st
}

// AdvanceTour increments the tour step; advancing past the final step
// completes the tour.
func (c *Controller) AdvanceTour(ctx context.Context, key string) State {
	st := c.Begin(ctx, key)
	if st.Phase != TourActive {
		return st
	}
	st.TourStep++
	if st.TourStep >= c.steps {
		st.Phase = TourComplete
		st.TourStep = 0
	}
	c.persist(ctx, key, st)
	return st
}

// DismissChecklist marks the getting-started checklist as hidden. Unlike
// the welcome/tour machine this is a flag valid in any phase.
func (c *Controller) DismissChecklist(ctx context.Context, key string) State {
	st := c.Begin(ctx, key)
	if st.ChecklistDismissed {
		return st
	}
	st.ChecklistDismissed = true
	c.persist(ctx, key, st)
	return st
}

// ShouldShowWelcome reports whether a (re)loading session gets the
// welcome modal.
func (c *Controller) ShouldShowWelcome(ctx context.Context, key string) bool {
	return c.Begin(ctx, key).ShowWelcome()
}

// load reads persisted state, failing open on store errors.
func (c *Controller) load(ctx context.Context, key string) (State, bool) {
	st, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("onboarding: state read failed, starting fresh",
			"key", key, "error", err)
		return State{}, false
	}
	return st, ok
}

// persist writes state, logging instead of propagating failures.
func (c *Controller) persist(ctx context.Context, key string, st State) {
	if err := c.store.Put(ctx, key, st); err != nil {
		c.logger.Warn("onboarding: state write failed",
			"key", key, "phase", st.Phase.String(), "error", err)
	}
}
