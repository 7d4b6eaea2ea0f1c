package orchestrator

import (
	"sort"
	"strings"

	"github.com/friendsincode/tokencast/internal/models"
)

const (
	maxFeedbackMentions  = 5
	maxFeedbackQuestions = 3
)

// SummarizeFeedback condenses audience input into the map handed to
// generators: top token mentions, latest questions and vote tallies.
func SummarizeFeedback(items []models.CommunityInteraction) map[string]any {
	if len(items) == 0 {
		return nil
	}

	mentions := map[string]int{}
	votes := map[string]int{}
	var questions []string
	comments := 0

	for _, it := range items {
		switch it.Type {
		case models.InteractionMention:
			if tok := normalizeTicker(it.Content); tok != "" {
				mentions[tok]++
			}
		case models.InteractionQuestion:
			if q := strings.TrimSpace(it.Content); q != "" {
				questions = append(questions, q)
			}
		case models.InteractionVote:
			if v := strings.TrimSpace(it.Content); v != "" {
				votes[strings.ToLower(v)]++
			}
		default:
			comments++
		}
	}

	type count struct {
		Token string
		N     int
	}
	ranked := make([]count, 0, len(mentions))
	for tok, n := range mentions {
		ranked = append(ranked, count{tok, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].N == ranked[j].N {
			return ranked[i].Token < ranked[j].Token
		}
		return ranked[i].N > ranked[j].N
	})
	if len(ranked) > maxFeedbackMentions {
		ranked = ranked[:maxFeedbackMentions]
	}
	top := make([]map[string]any, 0, len(ranked))
	for _, c := range ranked {
		top = append(top, map[string]any{"token": c.Token, "count": c.N})
	}

	// Latest questions first.
	recent := make([]string, 0, maxFeedbackQuestions)
	for i := len(questions) - 1; i >= 0 && len(recent) < maxFeedbackQuestions; i-- {
		recent = append(recent, questions[i])
	}

	return map[string]any{
		"total":          len(items),
		"comments":       comments,
		"token_mentions": top,
		"questions":      recent,
		"votes":          votes,
	}
}

func normalizeTicker(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	if f := strings.Fields(s); len(f) > 0 {
		s = f[0]
	}
	return strings.ToUpper(s)
}
