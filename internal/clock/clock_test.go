package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceFiresDueTimersInOrder(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewFake(start)

	var order []string
	c.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	c.AfterFunc(time.Second, func() { order = append(order, "a") })
	c.AfterFunc(5*time.Second, func() { order = append(order, "c") })

	c.Advance(3 * time.Second)
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("unexpected fire order: %v", order)
	}
	if c.Pending() != 1 {
		t.Fatalf("expected 1 pending timer, got %d", c.Pending())
	}
	if !c.Now().Equal(start.Add(3 * time.Second)) {
		t.Fatalf("unexpected now: %v", c.Now())
	}
}

func TestFakeStop(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("expected first stop to report true")
	}
	if timer.Stop() {
		t.Fatal("expected second stop to report false")
	}
	c.Advance(time.Minute)
	if fired {
		t.Fatal("stopped timer fired")
	}
}

func TestFakeTimersArmedDuringFireWaitForNextAdvance(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	count := 0
	var arm func()
	arm = func() {
		count++
		c.AfterFunc(0, arm)
	}
	c.AfterFunc(0, arm)

	c.Advance(0)
	if count != 1 {
		t.Fatalf("expected 1 fire, got %d", count)
	}
	c.Advance(0)
	if count != 2 {
		t.Fatalf("expected 2 fires, got %d", count)
	}
}

func TestFakeStopAfterFireReportsFalse(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	timer := c.AfterFunc(time.Second, func() {})
	c.Advance(time.Second)
	if timer.Stop() {
		t.Fatal("expected stop after fire to report false")
	}
}

func TestFakeSetAndNextDeadline(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewFake(start)

	if _, ok := c.NextDeadline(); ok {
		t.Fatal("expected no deadline on a fresh clock")
	}

	fired := 0
	c.AfterFunc(10*time.Second, func() { fired++ })
	c.AfterFunc(4*time.Second, func() { fired++ })
	if d, ok := c.NextDeadline(); !ok || !d.Equal(start.Add(4*time.Second)) {
		t.Fatalf("unexpected next deadline: %v %v", d, ok)
	}

	c.Set(start.Add(5 * time.Second))
	if fired != 1 {
		t.Fatalf("expected 1 fire, got %d", fired)
	}

	c.Set(start)
	if !c.Now().Equal(start.Add(5 * time.Second)) {
		t.Fatalf("clock moved backwards to %v", c.Now())
	}
	if d, ok := c.NextDeadline(); !ok || !d.Equal(start.Add(10*time.Second)) {
		t.Fatalf("unexpected next deadline: %v %v", d, ok)
	}
}
