package orchestrator

import (
	"context"
	"time"

	"github.com/friendsincode/tokencast/internal/clock"
	"github.com/friendsincode/tokencast/internal/events"
	"github.com/friendsincode/tokencast/internal/generator"
	"github.com/friendsincode/tokencast/internal/rotation"
	"github.com/friendsincode/tokencast/internal/store"
	"github.com/rs/zerolog"
)

// ShowConfig shapes a single show run.
type ShowConfig struct {
	Rotation          []rotation.Entry
	AutoTransition    bool
	EstimatedDuration time.Duration
	// AdvanceFirst makes the first segment rotation[1] instead of rotation[0].
	AdvanceFirst bool
	// BroadcastChannels overrides the default announcement channels. An
	// empty list falls back to Options.BroadcastChannels.
	BroadcastChannels []string
	FeaturedTokens    []string
}

// DefaultShowConfig returns the standard rotation with automatic transitions.
func DefaultShowConfig() *ShowConfig {
	return &ShowConfig{
		Rotation:          rotation.Default(),
		AutoTransition:    true,
		EstimatedDuration: time.Hour,
	}
}

// Notifier delivers best-effort announcements.
type Notifier interface {
	Notify(ctx context.Context, channelIDs []string, text string) error
}

// Deps are the collaborators an Orchestrator is built from.
type Deps struct {
	Store    store.Store
	Registry *generator.Registry
	Notifier Notifier
	Bus      *events.Bus
	Clock    clock.Clock
	Logger   zerolog.Logger
}

// Options tune orchestrator behavior.
type Options struct {
	GeneratorTimeout  time.Duration
	BroadcastOnStart  bool
	BroadcastChannels []string
	BroadcastTimeout  time.Duration
	// UpcomingCount is how many upcoming segments an announcement lists.
	UpcomingCount int
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		GeneratorTimeout: 60 * time.Second,
		BroadcastOnStart: true,
		BroadcastTimeout: 15 * time.Second,
		UpcomingCount:    3,
	}
}
