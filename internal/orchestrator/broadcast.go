package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/tokencast/internal/rotation"
	"github.com/friendsincode/tokencast/internal/telemetry"
)

// broadcastStartLocked announces the live show and what is coming up. The
// send happens on its own goroutine and never affects the show.
func (o *Orchestrator) broadcastStartLocked() {
	channels := o.cfg.BroadcastChannels
	if len(channels) == 0 {
		channels = o.opts.BroadcastChannels
	}
	if len(channels) == 0 {
		return
	}

	var current rotation.Kind
	if o.segment != nil {
		current = o.segment.Kind
	}
	text := FormatAnnouncement(o.show.ShowNumber, current, o.sched.Peek(o.opts.UpcomingCount))
	showID := o.show.ID
	channels = append([]string(nil), channels...)

	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.opts.BroadcastTimeout)
		defer cancel()

		if err := o.notifier.Notify(ctx, channels, text); err != nil {
			telemetry.BroadcastsTotal.WithLabelValues("error").Inc()
			o.logger.Warn().Err(err).Str("show_id", showID).Msg("show announcement failed")
			return
		}
		telemetry.BroadcastsTotal.WithLabelValues("ok").Inc()
		o.logger.Debug().Str("show_id", showID).Int("channels", len(channels)).Msg("show announced")
	}()
}

// FormatAnnouncement renders the show-start message.
func FormatAnnouncement(showNumber int, current rotation.Kind, upcoming []rotation.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TOKENCAST #%d is LIVE\n", showNumber)
	if current != "" {
		fmt.Fprintf(&b, "\nNow: %s\n", displayName(current))
	}
	if len(upcoming) > 0 {
		b.WriteString("\nUp next:\n")
		for i, e := range upcoming {
			fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, displayName(e.Kind), formatMinutes(e.Duration))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func displayName(k rotation.Kind) string {
	words := strings.Split(strings.ToLower(string(k)), "_")
	for i, w := range words {
		switch w {
		case "ai":
			words[i] = "AI"
		case "r3ll":
			words[i] = "R3LL"
		default:
			if w != "" {
				words[i] = strings.ToUpper(w[:1]) + w[1:]
			}
		}
	}
	return strings.Join(words, " ")
}

func formatMinutes(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d/time.Second))
	}
	return fmt.Sprintf("%d min", int(d/time.Minute))
}
