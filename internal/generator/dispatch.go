package generator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

var (
	// ErrGeneratorPanic wraps a recovered generator panic.
	ErrGeneratorPanic = errors.New("generator panicked")
	// ErrGeneratorTimeout is reported when a generator overruns its budget.
	ErrGeneratorTimeout = errors.New("generator timed out")
	// ErrEmptyOutput is reported for a nil output or blank speaker notes.
	ErrEmptyOutput = errors.New("generator returned no speaker notes")
)

// Result is the outcome of one dispatch. Output is never nil.
type Result struct {
	Output   *Output
	Fallback bool
	Degraded bool
	Err      error
	Elapsed  time.Duration
}

// Dispatch runs the generator registered for in.Kind and never fails: a
// missing generator yields a synthesized output and any generator failure
// yields a degraded one. The generator runs on its own goroutine so a
// generator that ignores ctx cannot hold the caller past timeout.
func Dispatch(ctx context.Context, reg *Registry, in Context, timeout time.Duration) Result {
	started := time.Now()

	g, ok := reg.Lookup(in.Kind)
	if !ok {
		return Result{Output: FallbackOutput(in), Fallback: true, Elapsed: time.Since(started)}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		out *Output
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v\n%s", ErrGeneratorPanic, r, debug.Stack())}
			}
		}()
		out, err := g.Generate(ctx, in)
		done <- outcome{out: out, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-ctx.Done():
		res = outcome{err: fmt.Errorf("%w: %v", ErrGeneratorTimeout, ctx.Err())}
	}

	if res.err == nil && (res.out == nil || res.out.SpeakerNotes == "") {
		res.err = ErrEmptyOutput
	}
	if res.err != nil {
		return Result{Output: DegradedOutput(in, res.err), Degraded: true, Err: res.err, Elapsed: time.Since(started)}
	}
	return Result{Output: res.out, Elapsed: time.Since(started)}
}

// FallbackOutput is the content used when no generator is registered.
func FallbackOutput(in Context) *Output {
	return &Output{
		SpeakerNotes: fmt.Sprintf("Segment: %s\nDuration: %ds", in.Kind, int(in.Duration/time.Second)),
		Metadata:     map[string]any{"fallback": true},
	}
}

// DegradedOutput is the content used when a generator fails.
func DegradedOutput(in Context, err error) *Output {
	msg := firstLine(err.Error())
	return &Output{
		SpeakerNotes: fmt.Sprintf("Error generating content for %s: %s", in.Kind, msg),
		Metadata: map[string]any{
			"degraded": true,
			"error":    msg,
		},
	}
}

func firstLine(s string) string {
	before, _, _ := strings.Cut(s, "\n")
	return before
}
