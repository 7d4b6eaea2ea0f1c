/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package generator defines the content producer contract and the registry
// that maps segment kinds to producers.
package generator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/friendsincode/tokencast/internal/rotation"
)

// Context describes the segment a generator is producing content for.
type Context struct {
	ShowID            string
	ShowNumber        int
	SegmentID         string
	SegmentNumber     int
	Kind              rotation.Kind
	Duration          time.Duration
	Previous          *Carry
	FeaturedTokens    []string
	CommunityFeedback map[string]any
}

// Carry is what the previous segment hands to the next one.
type Carry struct {
	SegmentID     string
	Kind          rotation.Kind
	FeaturedItems []map[string]any
	Metadata      map[string]any
}

// Output is the content produced for one segment.
type Output struct {
	SpeakerNotes  string           `json:"speaker_notes"`
	VisualData    map[string]any   `json:"visual_data,omitempty"`
	Analyses      []map[string]any `json:"analyses,omitempty"`
	FeaturedItems []map[string]any `json:"featured_items,omitempty"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
}

// Generator produces segment content.
type Generator interface {
	Generate(ctx context.Context, in Context) (*Output, error)
}

// Func adapts a plain function to Generator.
type Func func(ctx context.Context, in Context) (*Output, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, in Context) (*Output, error) {
	return f(ctx, in)
}

// Registry maps kinds to generators. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	generators map[rotation.Kind]Generator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{generators: make(map[rotation.Kind]Generator)}
}

// Register installs g for kind, replacing any previous registration.
func (r *Registry) Register(kind rotation.Kind, g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[kind] = g
}

// Unregister removes the generator for kind.
func (r *Registry) Unregister(kind rotation.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.generators, kind)
}

// Lookup returns the generator for kind.
func (r *Registry) Lookup(kind rotation.Kind) (Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.generators[kind]
	return g, ok
}

// Kinds lists registered kinds in name order.
func (r *Registry) Kinds() []rotation.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]rotation.Kind, 0, len(r.generators))
	for k := range r.generators {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
