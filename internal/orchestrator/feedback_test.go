package orchestrator

import (
	"strings"
	"testing"
	"time"

	"github.com/friendsincode/tokencast/internal/models"
	"github.com/friendsincode/tokencast/internal/rotation"
)

func TestSummarizeFeedback(t *testing.T) {
	if got := SummarizeFeedback(nil); got != nil {
		t.Fatalf("expected nil summary for no input, got %v", got)
	}

	items := []models.CommunityInteraction{
		{Type: models.InteractionMention, Content: "$bonk to the moon"},
		{Type: models.InteractionMention, Content: "BONK"},
		{Type: models.InteractionMention, Content: "wif"},
		{Type: models.InteractionQuestion, Content: "first?"},
		{Type: models.InteractionQuestion, Content: "second?"},
		{Type: models.InteractionQuestion, Content: "third?"},
		{Type: models.InteractionQuestion, Content: "fourth?"},
		{Type: models.InteractionVote, Content: "Rock"},
		{Type: models.InteractionVote, Content: "rock"},
		{Type: models.InteractionComment, Content: "gm"},
	}

	got := SummarizeFeedback(items)
	if got["total"] != 10 || got["comments"] != 1 {
		t.Fatalf("unexpected counts: %v", got)
	}

	mentions := got["token_mentions"].([]map[string]any)
	if len(mentions) != 2 || mentions[0]["token"] != "BONK" || mentions[0]["count"] != 2 {
		t.Fatalf("unexpected mentions: %v", mentions)
	}

	questions := got["questions"].([]string)
	want := []string{"fourth?", "third?", "second?"}
	if len(questions) != len(want) {
		t.Fatalf("expected %d questions, got %v", len(want), questions)
	}
	for i := range want {
		if questions[i] != want[i] {
			t.Errorf("question %d: expected %q, got %q", i, want[i], questions[i])
		}
	}

	votes := got["votes"].(map[string]int)
	if votes["rock"] != 2 {
		t.Fatalf("unexpected votes: %v", votes)
	}
}

func TestFormatAnnouncement(t *testing.T) {
	tests := []struct {
		name     string
		current  rotation.Kind
		upcoming []rotation.Entry
		want     []string
		absent   []string
	}{
		{
			name:    "full",
			current: rotation.KindAIHostBreakdown,
			upcoming: []rotation.Entry{
				{Kind: rotation.KindR3llMusic, Duration: 5 * time.Minute},
				{Kind: rotation.KindIntermission, Duration: 30 * time.Second},
			},
			want: []string{"TOKENCAST #12 is LIVE", "Now: AI Host Breakdown", "1. R3LL Music (5 min)", "2. Intermission (30s)"},
		},
		{
			name:    "no upcoming",
			current: rotation.KindGamba,
			want:    []string{"Now: Gamba"},
			absent:  []string{"Up next"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := FormatAnnouncement(12, tt.current, tt.upcoming)
			for _, w := range tt.want {
				if !strings.Contains(text, w) {
					t.Errorf("missing %q in:\n%s", w, text)
				}
			}
			for _, a := range tt.absent {
				if strings.Contains(text, a) {
					t.Errorf("unexpected %q in:\n%s", a, text)
				}
			}
			if strings.HasSuffix(text, "\n") {
				t.Error("announcement has trailing newline")
			}
		})
	}
}
