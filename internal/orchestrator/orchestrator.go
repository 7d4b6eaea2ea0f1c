/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package orchestrator runs the show state machine: it starts and ends shows,
// moves through the rotation one segment at a time and keeps the durable
// record in step with what is on air.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/friendsincode/tokencast/internal/clock"
	"github.com/friendsincode/tokencast/internal/events"
	"github.com/friendsincode/tokencast/internal/generator"
	"github.com/friendsincode/tokencast/internal/models"
	"github.com/friendsincode/tokencast/internal/rotation"
	"github.com/friendsincode/tokencast/internal/scheduler"
	"github.com/friendsincode/tokencast/internal/store"
	"github.com/friendsincode/tokencast/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Transition triggers, used in logs and metrics.
const (
	triggerStart  = "start"
	triggerNext   = "next"
	triggerTimer  = "timer"
	triggerManual = "manual"
)

// Orchestrator is the single owner of show state in the process.
type Orchestrator struct {
	store    store.Store
	registry *generator.Registry
	notifier Notifier
	bus      *events.Bus
	clock    clock.Clock
	logger   zerolog.Logger
	opts     Options

	// mu serializes every state-mutating operation, including timer fires.
	mu           sync.Mutex
	show         *models.Show
	segment      *models.Segment
	sched        *scheduler.Scheduler
	cfg          ShowConfig
	carry        *generator.Carry
	firstPending bool
	halted       bool

	// snapMu guards the read-side view so queries never wait on a transition.
	// settled is the segment id as of the last released transition lock.
	snapMu  sync.RWMutex
	snap    snapshot
	settled string

	bg sync.WaitGroup
}

type snapshot struct {
	show    *models.Show
	segment *models.Segment
	sched   *scheduler.Scheduler
	halted  bool
}

// Status is a point-in-time view of the orchestrator for readers.
type Status struct {
	Live             bool            `json:"live"`
	Show             *models.Show    `json:"show,omitempty"`
	Segment          *models.Segment `json:"segment,omitempty"`
	NextTransitionAt *time.Time      `json:"next_transition_at,omitempty"`
	TimeRemaining    time.Duration   `json:"time_remaining"`
	Halted           bool            `json:"halted"`
}

// New constructs an orchestrator. Registry, Bus and Clock default to empty or
// real implementations when nil.
func New(deps Deps, opts Options) *Orchestrator {
	if deps.Registry == nil {
		deps.Registry = generator.NewRegistry()
	}
	if deps.Bus == nil {
		deps.Bus = events.NewBus()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if opts.UpcomingCount <= 0 {
		opts.UpcomingCount = 3
	}
	if opts.BroadcastTimeout <= 0 {
		opts.BroadcastTimeout = 15 * time.Second
	}
	return &Orchestrator{
		store:    deps.Store,
		registry: deps.Registry,
		notifier: deps.Notifier,
		bus:      deps.Bus,
		clock:    deps.Clock,
		logger:   deps.Logger.With().Str("component", "orchestrator").Logger(),
		opts:     opts,
	}
}

// Registry returns the generator registry.
func (o *Orchestrator) Registry() *generator.Registry { return o.registry }

// RegisterGenerator installs g for kind. Safe while a show is live; the next
// segment of that kind uses it.
func (o *Orchestrator) RegisterGenerator(kind rotation.Kind, g generator.Generator) {
	o.registry.Register(kind, g)
}

// StartShow starts a new show and its first segment. A nil cfg uses
// DefaultShowConfig. If the first segment cannot be recorded the show stays
// live and halted and the TransitionError is returned with the show.
func (o *Orchestrator) StartShow(ctx context.Context, cfg *ShowConfig) (models.Show, error) {
	if cfg == nil {
		cfg = DefaultShowConfig()
	}
	if err := rotation.Validate(cfg.Rotation); err != nil {
		return models.Show{}, err
	}
	ctx = context.WithoutCancel(ctx)

	o.mu.Lock()
	defer o.unlock()

	if o.show != nil {
		return models.Show{}, ErrAlreadyRunning
	}

	ctx, span := telemetry.StartSpan(ctx, "orchestrator.start_show")
	var spanErr error
	defer func() { telemetry.EndSpan(span, spanErr) }()

	number, err := o.store.NextShowNumber(ctx)
	if err != nil {
		spanErr = o.fail(&TransitionError{Phase: PhaseNextShowNumber, Err: err})
		return models.Show{}, spanErr
	}

	sched, err := scheduler.New(cfg.Rotation, o.clock)
	if err != nil {
		spanErr = err
		return models.Show{}, err
	}

	now := o.clock.Now()
	show := models.Show{
		ID:               uuid.NewString(),
		ShowNumber:       number,
		Status:           models.ShowLive,
		StartedAt:        &now,
		EstimatedMinutes: int(cfg.EstimatedDuration / time.Minute),
		AutoTransition:   cfg.AutoTransition,
		Rotation:         sched.Rotation(),
	}
	if err := o.store.CreateShow(ctx, &show); err != nil {
		spanErr = o.fail(&TransitionError{Phase: PhaseCreateShow, ShowID: show.ID, Err: err})
		return models.Show{}, spanErr
	}

	o.show = &show
	o.segment = nil
	o.sched = sched
	o.cfg = *cfg
	o.carry = nil
	o.firstPending = true
	o.halted = false
	o.publishSnapshotLocked()

	span.SetAttributes(attribute.String("show_id", show.ID), attribute.Int("show_number", number))
	telemetry.ShowsStartedTotal.Inc()
	telemetry.ShowLive.Set(1)
	o.logger.Info().
		Str("show_id", show.ID).
		Int("show_number", number).
		Int("rotation_length", sched.Len()).
		Bool("auto_transition", cfg.AutoTransition).
		Msg("show started")
	o.bus.Publish(events.EventShowStart, events.Payload{
		"show_id":         show.ID,
		"show_number":     number,
		"started_at":      now,
		"auto_transition": cfg.AutoTransition,
	})

	if _, err := o.startNextLocked(ctx, triggerStart); err != nil {
		spanErr = err
		return *o.show, err
	}

	if o.opts.BroadcastOnStart && o.notifier != nil {
		o.broadcastStartLocked()
	}

	return *o.show, nil
}

// StartNextSegment closes the live segment, if any, and starts the next one.
func (o *Orchestrator) StartNextSegment(ctx context.Context) (models.Segment, error) {
	ctx = context.WithoutCancel(ctx)
	o.mu.Lock()
	defer o.unlock()

	if o.show == nil {
		return models.Segment{}, ErrNoActiveShow
	}
	return o.startNextLocked(ctx, triggerNext)
}

// ManualTransition preempts any pending automatic transition and moves past
// the segment that was settled when it was called. If a transition already
// in flight moves past that segment first, ErrStaleTransition is returned.
func (o *Orchestrator) ManualTransition(ctx context.Context) (models.Segment, error) {
	o.snapMu.RLock()
	from := o.settled
	o.snapMu.RUnlock()
	return o.manualTransition(ctx, from)
}

// ManualTransitionFrom transitions only if segmentID is still the current
// segment. It returns ErrStaleTransition when another transition got there
// first, so an operator action racing a timer never skips a segment.
func (o *Orchestrator) ManualTransitionFrom(ctx context.Context, segmentID string) (models.Segment, error) {
	return o.manualTransition(ctx, segmentID)
}

// manualTransition runs a manual transition guarded by the segment id the
// caller observed. An empty id matches a show with no segment yet.
func (o *Orchestrator) manualTransition(ctx context.Context, segmentID string) (models.Segment, error) {
	ctx = context.WithoutCancel(ctx)
	o.mu.Lock()
	defer o.unlock()

	if o.show == nil {
		return models.Segment{}, ErrNoActiveShow
	}
	if currentSegmentID(o.segment) != segmentID {
		telemetry.StaleTransitionsTotal.WithLabelValues(triggerManual).Inc()
		o.logger.Debug().
			Str("show_id", o.show.ID).
			Str("requested_segment_id", segmentID).
			Msg("manual transition targets a segment that is no longer current")
		return models.Segment{}, ErrStaleTransition
	}
	o.sched.Cancel()
	return o.startNextLocked(ctx, triggerManual)
}

// EndShow closes the live segment, cancels any pending transition and marks
// the show completed.
func (o *Orchestrator) EndShow(ctx context.Context) (models.Show, error) {
	ctx = context.WithoutCancel(ctx)
	o.mu.Lock()
	defer o.unlock()

	if o.show == nil {
		return models.Show{}, ErrNoActiveShow
	}

	ctx, span := telemetry.StartSpan(ctx, "orchestrator.end_show", attribute.String("show_id", o.show.ID))
	var spanErr error
	defer func() { telemetry.EndSpan(span, spanErr) }()

	o.sched.Cancel()

	if err := o.closeSegmentLocked(ctx); err != nil {
		spanErr = err
		return models.Show{}, err
	}

	now := o.clock.Now()
	ended := *o.show
	ended.Status = models.ShowCompleted
	ended.EndedAt = &now
	if err := o.store.UpdateShow(ctx, &ended); err != nil {
		spanErr = o.fail(&TransitionError{Phase: PhaseEndShow, ShowID: ended.ID, Err: err})
		return models.Show{}, spanErr
	}

	o.show = nil
	o.segment = nil
	o.sched = nil
	o.carry = nil
	o.firstPending = false
	o.halted = false
	o.publishSnapshotLocked()

	telemetry.ShowsEndedTotal.Inc()
	telemetry.ShowLive.Set(0)
	o.logger.Info().
		Str("show_id", ended.ID).
		Int("show_number", ended.ShowNumber).
		Int("segments", ended.TotalSegmentsCompleted).
		Dur("duration", now.Sub(*ended.StartedAt)).
		Msg("show ended")
	o.bus.Publish(events.EventShowEnd, events.Payload{
		"show_id":        ended.ID,
		"show_number":    ended.ShowNumber,
		"ended_at":       now,
		"total_segments": ended.TotalSegmentsCompleted,
	})

	return ended, nil
}

// CurrentState returns a snapshot of the live show. It may lag an in-flight
// transition.
func (o *Orchestrator) CurrentState() Status {
	o.snapMu.RLock()
	snap := o.snap
	o.snapMu.RUnlock()

	st := Status{Halted: snap.halted}
	if snap.show == nil {
		return st
	}
	show := *snap.show
	st.Live = true
	st.Show = &show
	if snap.segment != nil {
		seg := *snap.segment
		st.Segment = &seg
		if seg.Status == models.SegmentLive && seg.StartedAt != nil {
			st.TimeRemaining = snap.sched.TimeRemaining(*seg.StartedAt, seg.PlannedDuration())
		}
	}
	if deadline, ok := snap.sched.Deadline(); ok {
		st.NextTransitionAt = &deadline
	}
	return st
}

// CurrentSegment returns the live segment.
func (o *Orchestrator) CurrentSegment() (models.Segment, bool) {
	o.snapMu.RLock()
	defer o.snapMu.RUnlock()
	if o.snap.segment == nil || o.snap.segment.Status != models.SegmentLive {
		return models.Segment{}, false
	}
	return *o.snap.segment, true
}

// Upcoming returns the next n rotation entries without moving the rotation.
func (o *Orchestrator) Upcoming(n int) []rotation.Entry {
	o.snapMu.RLock()
	sched := o.snap.sched
	o.snapMu.RUnlock()
	if sched == nil {
		return []rotation.Entry{}
	}
	return sched.Peek(n)
}

// Recover completes shows a previous process left live. Call once at
// startup before StartShow; timelines are never resumed implicitly.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	o.mu.Lock()
	defer o.unlock()

	if o.show != nil {
		return 0, ErrAlreadyRunning
	}

	orphans, err := o.store.FindLiveShows(ctx)
	if err != nil {
		return 0, err
	}

	now := o.clock.Now()
	for i := range orphans {
		show := orphans[i]
		if !show.IsLive() {
			continue
		}
		segs, err := o.store.ListSegments(ctx, show.ID)
		if err != nil {
			return i, err
		}
		for j := range segs {
			seg := segs[j]
			if seg.Status != models.SegmentLive {
				continue
			}
			closeSegment(&seg, now)
			if err := o.store.UpdateSegment(ctx, &seg); err != nil {
				return i, err
			}
		}
		show.Status = models.ShowCompleted
		show.EndedAt = &now
		if err := o.store.UpdateShow(ctx, &show); err != nil {
			return i, err
		}
		o.logger.Warn().
			Str("show_id", show.ID).
			Int("show_number", show.ShowNumber).
			Msg("completed show left live by a previous process")
	}
	return len(orphans), nil
}

// Close ends a live show and waits for pending announcements.
func (o *Orchestrator) Close(ctx context.Context) error {
	if _, err := o.EndShow(ctx); err != nil && !errors.Is(err, ErrNoActiveShow) {
		return err
	}

	done := make(chan struct{})
	go func() {
		o.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startNextLocked performs one transition. Every durable write is applied to
// memory only after it succeeds. Callers hold o.mu.
func (o *Orchestrator) startNextLocked(ctx context.Context, trigger string) (models.Segment, error) {
	ctx, span := telemetry.StartSpan(ctx, "orchestrator.transition",
		attribute.String("show_id", o.show.ID),
		attribute.String("trigger", trigger),
	)
	var spanErr error
	defer func() { telemetry.EndSpan(span, spanErr) }()

	o.sched.Cancel()

	if err := o.closeSegmentLocked(ctx); err != nil {
		spanErr = err
		return models.Segment{}, err
	}

	advance := !o.firstPending || o.cfg.AdvanceFirst
	var entry rotation.Entry
	if advance {
		entry = o.sched.Peek(1)[0]
	} else {
		entry = o.sched.Current()
	}

	number := 1
	if o.segment != nil {
		number = o.segment.SegmentNumber + 1
	}

	now := o.clock.Now()
	seg := models.Segment{
		ID:             uuid.NewString(),
		ShowID:         o.show.ID,
		SegmentNumber:  number,
		Kind:           entry.Kind,
		Status:         models.SegmentLive,
		StartedAt:      &now,
		PlannedSeconds: int(entry.Duration / time.Second),
	}
	if err := o.store.CreateSegment(ctx, &seg); err != nil {
		spanErr = o.fail(&TransitionError{Phase: PhaseCreateSegment, ShowID: o.show.ID, SegmentID: seg.ID, Err: err})
		return models.Segment{}, spanErr
	}

	if advance {
		o.sched.Advance()
	}
	o.firstPending = false
	o.segment = &seg
	o.publishSnapshotLocked()

	show := *o.show
	show.CurrentSegmentID = &seg.ID
	show.CurrentIndex = o.sched.Index()
	show.TotalSegmentsCompleted = number
	if err := o.store.UpdateShow(ctx, &show); err != nil {
		spanErr = o.fail(&TransitionError{Phase: PhaseUpdateShow, ShowID: show.ID, SegmentID: seg.ID, Err: err})
		return seg, spanErr
	}
	o.show = &show
	o.publishSnapshotLocked()

	span.SetAttributes(attribute.String("segment_id", seg.ID), attribute.String("kind", string(seg.Kind)))
	telemetry.SegmentTransitionsTotal.WithLabelValues(string(seg.Kind), trigger).Inc()
	o.logger.Info().
		Str("show_id", show.ID).
		Int("show_number", show.ShowNumber).
		Str("segment_id", seg.ID).
		Int("segment_number", seg.SegmentNumber).
		Str("kind", string(seg.Kind)).
		Dur("planned", entry.Duration).
		Str("trigger", trigger).
		Msg("segment started")
	o.bus.Publish(events.EventSegmentStart, events.Payload{
		"show_id":         show.ID,
		"segment_id":      seg.ID,
		"segment_number":  seg.SegmentNumber,
		"kind":            string(seg.Kind),
		"planned_seconds": seg.PlannedSeconds,
		"started_at":      now,
		"trigger":         trigger,
	})

	res := o.generateLocked(ctx, &show, &seg, entry)

	withContent := seg
	applyResult(&withContent, res)
	if err := o.store.UpdateSegment(ctx, &withContent); err != nil {
		spanErr = o.fail(&TransitionError{Phase: PhaseSaveContent, ShowID: show.ID, SegmentID: seg.ID, Err: err})
		return seg, spanErr
	}
	o.segment = &withContent
	o.halted = false
	o.publishSnapshotLocked()

	o.bus.Publish(events.EventSegmentContent, events.Payload{
		"show_id":        show.ID,
		"segment_id":     seg.ID,
		"kind":           string(seg.Kind),
		"speaker_notes":  withContent.SpeakerNotes,
		"visual_data":    withContent.Content.VisualData,
		"featured_items": withContent.Content.FeaturedItems,
		"degraded":       withContent.Degraded,
	})

	if show.AutoTransition {
		showID, segID := show.ID, seg.ID
		o.sched.Schedule(entry.Duration, func() { o.onTimer(showID, segID) })
		o.publishSnapshotLocked()
	}

	return withContent, nil
}

// closeSegmentLocked completes the live segment, if any.
func (o *Orchestrator) closeSegmentLocked(ctx context.Context) error {
	if o.segment == nil || o.segment.Status != models.SegmentLive {
		return nil
	}

	now := o.clock.Now()
	closed := *o.segment
	closeSegment(&closed, now)
	if err := o.store.UpdateSegment(ctx, &closed); err != nil {
		return o.fail(&TransitionError{Phase: PhaseCloseSegment, ShowID: o.show.ID, SegmentID: closed.ID, Err: err})
	}

	o.segment = &closed
	o.carry = &generator.Carry{
		SegmentID:     closed.ID,
		Kind:          closed.Kind,
		FeaturedItems: closed.Content.FeaturedItems,
		Metadata:      closed.Content.Metadata,
	}
	o.publishSnapshotLocked()

	o.logger.Info().
		Str("show_id", closed.ShowID).
		Str("segment_id", closed.ID).
		Int("segment_number", closed.SegmentNumber).
		Str("kind", string(closed.Kind)).
		Float64("actual_seconds", *closed.ActualSeconds).
		Msg("segment ended")
	o.bus.Publish(events.EventSegmentEnd, events.Payload{
		"show_id":        closed.ShowID,
		"segment_id":     closed.ID,
		"segment_number": closed.SegmentNumber,
		"kind":           string(closed.Kind),
		"actual_seconds": *closed.ActualSeconds,
		"ended_at":       now,
	})
	return nil
}

// generateLocked dispatches content generation for seg. It never fails.
func (o *Orchestrator) generateLocked(ctx context.Context, show *models.Show, seg *models.Segment, entry rotation.Entry) generator.Result {
	ctx, span := telemetry.StartSpan(ctx, "orchestrator.generate", attribute.String("kind", string(entry.Kind)))
	defer span.End()

	in := generator.Context{
		ShowID:            show.ID,
		ShowNumber:        show.ShowNumber,
		SegmentID:         seg.ID,
		SegmentNumber:     seg.SegmentNumber,
		Kind:              entry.Kind,
		Duration:          entry.Duration,
		Previous:          o.carry,
		FeaturedTokens:    o.cfg.FeaturedTokens,
		CommunityFeedback: o.feedbackLocked(ctx, show),
	}

	res := generator.Dispatch(ctx, o.registry, in, o.opts.GeneratorTimeout)

	outcome := "ok"
	switch {
	case res.Fallback:
		outcome = "fallback"
	case res.Degraded:
		outcome = "degraded"
		span.RecordError(res.Err)
		o.logger.Warn().
			Err(res.Err).
			Str("show_id", show.ID).
			Str("segment_id", seg.ID).
			Str("kind", string(entry.Kind)).
			Msg("generator failed, using degraded content")
	}
	telemetry.GeneratorOutcomesTotal.WithLabelValues(string(entry.Kind), outcome).Inc()
	telemetry.GeneratorDuration.WithLabelValues(string(entry.Kind)).Observe(res.Elapsed.Seconds())
	return res
}

// feedbackLocked summarizes audience input since the show started. A read
// failure only costs the generator its feedback.
func (o *Orchestrator) feedbackLocked(ctx context.Context, show *models.Show) map[string]any {
	items, err := o.store.ListInteractions(ctx, show.ID, *show.StartedAt)
	if err != nil {
		o.logger.Warn().Err(err).Str("show_id", show.ID).Msg("load community feedback")
		return nil
	}
	return SummarizeFeedback(items)
}

// onTimer is the automatic transition entry point. It runs the transition
// only if segmentID is still the live segment of showID.
func (o *Orchestrator) onTimer(showID, segmentID string) {
	o.mu.Lock()
	defer o.unlock()

	if o.show == nil || o.show.ID != showID || o.segment == nil ||
		o.segment.ID != segmentID || o.segment.Status != models.SegmentLive {
		telemetry.StaleTransitionsTotal.WithLabelValues(triggerTimer).Inc()
		o.logger.Debug().
			Str("show_id", showID).
			Str("segment_id", segmentID).
			Msg("ignoring stale transition timer")
		return
	}

	// Failures are logged and counted in fail; the show stays halted.
	_, _ = o.startNextLocked(context.Background(), triggerTimer)
}

// fail records a transition failure and halts automatic transitions.
func (o *Orchestrator) fail(terr *TransitionError) error {
	if o.show != nil {
		o.halted = true
		o.sched.Cancel()
		o.publishSnapshotLocked()
	}

	telemetry.TransitionFailuresTotal.WithLabelValues(terr.Phase).Inc()
	o.logger.Error().
		Err(terr.Err).
		Str("phase", terr.Phase).
		Str("show_id", terr.ShowID).
		Str("segment_id", terr.SegmentID).
		Msg("transition failed; automatic transitions halted")
	o.bus.Publish(events.EventTransitionFailed, events.Payload{
		"phase":      terr.Phase,
		"show_id":    terr.ShowID,
		"segment_id": terr.SegmentID,
		"error":      terr.Err.Error(),
	})
	return terr
}

// unlock releases o.mu after recording the settled segment id.
func (o *Orchestrator) unlock() {
	settled := ""
	if o.show != nil {
		settled = currentSegmentID(o.segment)
	}
	o.snapMu.Lock()
	o.settled = settled
	o.snapMu.Unlock()
	o.mu.Unlock()
}

func currentSegmentID(seg *models.Segment) string {
	if seg == nil {
		return ""
	}
	return seg.ID
}

func (o *Orchestrator) publishSnapshotLocked() {
	o.snapMu.Lock()
	o.snap = snapshot{
		show:    o.show,
		segment: o.segment,
		sched:   o.sched,
		halted:  o.halted,
	}
	o.snapMu.Unlock()
}

func closeSegment(seg *models.Segment, now time.Time) {
	actual := 0.0
	if seg.StartedAt != nil {
		actual = now.Sub(*seg.StartedAt).Seconds()
		if actual < 0 {
			actual = 0
		}
	}
	seg.Status = models.SegmentCompleted
	seg.EndedAt = &now
	seg.ActualSeconds = &actual
}

func applyResult(seg *models.Segment, res generator.Result) {
	out := res.Output
	seg.SpeakerNotes = out.SpeakerNotes
	seg.Content = models.SegmentContent{
		VisualData:    out.VisualData,
		Analyses:      out.Analyses,
		FeaturedItems: out.FeaturedItems,
		Metadata:      out.Metadata,
	}
	seg.Fallback = res.Fallback
	seg.Degraded = res.Degraded
	if res.Err != nil {
		seg.GenerationError = res.Err.Error()
	}
}
