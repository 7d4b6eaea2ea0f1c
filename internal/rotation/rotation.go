/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package rotation defines the segment kinds a show cycles through and the
// ordered table of (kind, duration) entries the scheduler walks.
package rotation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrEmptyRotation is returned when a rotation has no entries.
	ErrEmptyRotation = errors.New("rotation is empty")
	// ErrUnknownKind is returned for a kind outside the known set.
	ErrUnknownKind = errors.New("unknown segment kind")
	// ErrNegativeDuration is returned when an entry has a negative duration.
	ErrNegativeDuration = errors.New("segment duration must not be negative")
)

// Kind identifies a segment type.
type Kind string

const (
	KindTokenLaunchLive      Kind = "TOKEN_LAUNCH_LIVE"
	KindGamba                Kind = "GAMBA"
	KindSwarmAnalysis        Kind = "SWARM_ANALYSIS"
	KindR3llMusic            Kind = "R3LL_MUSIC"
	KindMemeEconomy          Kind = "MEME_ECONOMY"
	KindCryptoDeepDive       Kind = "CRYPTO_DEEP_DIVE"
	KindCommunityInteraction Kind = "COMMUNITY_INTERACTION"
	KindAIHostBreakdown      Kind = "AI_HOST_BREAKDOWN"
	KindNarrativeAlpha       Kind = "NARRATIVE_ALPHA"
	KindIntermission         Kind = "INTERMISSION"
)

// FallbackDuration applies to kinds without a default.
const FallbackDuration = 300 * time.Second

// DefaultDurations lists the planned length of each kind.
var DefaultDurations = map[Kind]time.Duration{
	KindTokenLaunchLive:      420 * time.Second,
	KindGamba:                360 * time.Second,
	KindSwarmAnalysis:        540 * time.Second,
	KindR3llMusic:            300 * time.Second,
	KindMemeEconomy:          420 * time.Second,
	KindCryptoDeepDive:       600 * time.Second,
	KindCommunityInteraction: 420 * time.Second,
	KindAIHostBreakdown:      540 * time.Second,
	KindNarrativeAlpha:       480 * time.Second,
	KindIntermission:         180 * time.Second,
}

// DefaultKinds is the standard show order.
var DefaultKinds = []Kind{
	KindTokenLaunchLive,
	KindSwarmAnalysis,
	KindR3llMusic,
	KindMemeEconomy,
	KindCryptoDeepDive,
	KindCommunityInteraction,
	KindAIHostBreakdown,
	KindNarrativeAlpha,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := DefaultDurations[k]
	return ok
}

func (k Kind) String() string { return string(k) }

// ParseKind accepts either the canonical name or its lower-case form.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// DefaultDuration returns the planned duration for k.
func DefaultDuration(k Kind) time.Duration {
	if d, ok := DefaultDurations[k]; ok {
		return d
	}
	return FallbackDuration
}

// Entry is one position in the rotation. Entries are values and never mutated.
type Entry struct {
	Kind     Kind          `json:"kind" yaml:"kind"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Build resolves kinds into entries, applying overrides on top of the defaults.
func Build(kinds []Kind, overrides map[Kind]time.Duration) ([]Entry, error) {
	if len(kinds) == 0 {
		return nil, ErrEmptyRotation
	}
	entries := make([]Entry, 0, len(kinds))
	for i, k := range kinds {
		if !k.Valid() {
			return nil, fmt.Errorf("position %d: %w: %q", i, ErrUnknownKind, k)
		}
		d := DefaultDuration(k)
		if o, ok := overrides[k]; ok {
			d = o
		}
		if d < 0 {
			return nil, fmt.Errorf("position %d (%s): %w", i, k, ErrNegativeDuration)
		}
		entries = append(entries, Entry{Kind: k, Duration: d})
	}
	return entries, nil
}

// Default returns the standard rotation with default durations.
func Default() []Entry {
	entries, _ := Build(DefaultKinds, nil)
	return entries
}

// Validate checks an already-built rotation.
func Validate(entries []Entry) error {
	if len(entries) == 0 {
		return ErrEmptyRotation
	}
	for i, e := range entries {
		if !e.Kind.Valid() {
			return fmt.Errorf("position %d: %w: %q", i, ErrUnknownKind, e.Kind)
		}
		if e.Duration < 0 {
			return fmt.Errorf("position %d (%s): %w", i, e.Kind, ErrNegativeDuration)
		}
	}
	return nil
}

// Kinds returns the kind sequence of a rotation.
func Kinds(entries []Entry) []Kind {
	out := make([]Kind, len(entries))
	for i, e := range entries {
		out[i] = e.Kind
	}
	return out
}
