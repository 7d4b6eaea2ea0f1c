package segments

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/friendsincode/tokencast/internal/generator"
)

// CommunityInteraction highlights audience feedback gathered during the show.
type CommunityInteraction struct{}

// Generate implements generator.Generator.
func (CommunityInteraction) Generate(ctx context.Context, in generator.Context) (*generator.Output, error) {
	fb := in.CommunityFeedback

	var b strings.Builder
	b.WriteString("=== COMMUNITY INTERACTION ===\n\nTime to hear from the community!\n\n")

	var featured []map[string]any
	if len(fb) == 0 {
		b.WriteString("No community feedback captured yet.\nDrop your questions and token mentions in the chat!\n")
	} else {
		b.WriteString("Community Highlights:\n")

		if mentions, _ := fb["token_mentions"].([]map[string]any); len(mentions) > 0 {
			b.WriteString("\nMost Mentioned Tokens:\n")
			for _, m := range mentions {
				fmt.Fprintf(&b, "  - $%v: %v mentions\n", m["token"], m["count"])
				featured = append(featured, map[string]any{"ticker": m["token"], "mentions": m["count"]})
			}
		}
		if questions, _ := fb["questions"].([]string); len(questions) > 0 {
			b.WriteString("\nTop Community Questions:\n")
			for i, q := range questions {
				fmt.Fprintf(&b, "  %d. %s\n", i+1, q)
			}
		}
		if votes, _ := fb["votes"].(map[string]int); len(votes) > 0 {
			b.WriteString("\nVotes:\n")
			for _, choice := range sortedKeys(votes) {
				fmt.Fprintf(&b, "  - %s: %d\n", choice, votes[choice])
			}
		}
	}
	b.WriteString("\nKeep engaging, your input shapes the show!")

	return &generator.Output{
		SpeakerNotes:  b.String(),
		FeaturedItems: featured,
		Metadata:      map[string]any{"has_feedback": len(fb) > 0},
	}, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] == m[keys[j]] {
			return keys[i] < keys[j]
		}
		return m[keys[i]] > m[keys[j]]
	})
	return keys
}
