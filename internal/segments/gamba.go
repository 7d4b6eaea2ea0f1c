package segments

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	mrand "math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/friendsincode/tokencast/internal/clock"
	"github.com/friendsincode/tokencast/internal/generator"
	"github.com/friendsincode/tokencast/internal/swarm"
)

// Choice is a rock-paper-scissors move.
type Choice string

const (
	Rock     Choice = "ROCK"
	Paper    Choice = "PAPER"
	Scissors Choice = "SCISSORS"
)

// Choices lists the valid moves.
var Choices = []Choice{Rock, Paper, Scissors}

// Outcome is a player's result against the house.
type Outcome string

const (
	Win  Outcome = "WIN"
	Tie  Outcome = "TIE"
	Loss Outcome = "LOSS"
)

// Payouts are bet multipliers per outcome.
var Payouts = map[Outcome]float64{Win: 2.0, Tie: 1.0, Loss: 0.0}

var (
	// ErrUnknownRound is returned for a round this process did not open.
	ErrUnknownRound = errors.New("unknown gamba round")
	// ErrBettingOpen is returned when revealing before betting closes.
	ErrBettingOpen = errors.New("betting is still open")
	// ErrInvalidChoice is returned for a move outside Choices.
	ErrInvalidChoice = errors.New("invalid choice")
)

const (
	maxBettingWindow = 240 * time.Second
	resolutionTime   = 60 * time.Second
	maxRounds        = 64
)

var taunts = []string{
	"Think you can outsmart the Eye? Let's see what you got, degens!",
	"Rock, paper, scissors... GIZMO knows all. Do you?",
	"I've analyzed 10,000 games. You've played... how many?",
	"My neural nets say ROCK... or do they?",
	"Feeling lucky, anon? GIZMO never loses... except when I do.",
	"You think this is random? Cute. Everything is signal, anon.",
	"GAMBA SZN! Let's get this bread, degenerates!",
}

// Round is one house commitment. Choice and Nonce stay private until the
// betting window closes.
type Round struct {
	ID         string    `json:"round_id"`
	ShowID     string    `json:"show_id"`
	Segment    int       `json:"segment_number"`
	Commitment string    `json:"commitment"`
	OpensAt    time.Time `json:"opens_at"`
	ClosesAt   time.Time `json:"closes_at"`
	Choice     Choice    `json:"house_choice,omitempty"`
	Nonce      string    `json:"nonce,omitempty"`
}

// Gamba runs a rock-paper-scissors round against the house. The house move
// is committed as a salted hash when the segment starts.
type Gamba struct {
	swarm swarm.Analyzer
	clock clock.Clock
	intn  func(n int) int

	mu     sync.Mutex
	rounds map[string]Round
	order  []string
}

// NewGamba creates the generator. swarm may be nil.
func NewGamba(analyzer swarm.Analyzer, clk clock.Clock) *Gamba {
	if clk == nil {
		clk = clock.Real()
	}
	return &Gamba{
		swarm:  analyzer,
		clock:  clk,
		intn:   mrand.IntN,
		rounds: make(map[string]Round),
	}
}

// Generate implements generator.Generator.
func (g *Gamba) Generate(ctx context.Context, in generator.Context) (*generator.Output, error) {
	choice := g.houseChoice(ctx, in)
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}

	window := in.Duration - resolutionTime
	if window > maxBettingWindow {
		window = maxBettingWindow
	}
	if window < 0 {
		window = 0
	}

	now := g.clock.Now()
	round := Round{
		ID:         fmt.Sprintf("rps_%s_%d", in.ShowID, in.SegmentNumber),
		ShowID:     in.ShowID,
		Segment:    in.SegmentNumber,
		Commitment: Commit(choice, nonce, in.ShowID, in.SegmentNumber),
		OpensAt:    now,
		ClosesAt:   now.Add(window),
		Choice:     choice,
		Nonce:      nonce,
	}
	g.remember(round)

	taunt := taunts[g.intn(len(taunts))]
	return &generator.Output{
		SpeakerNotes: formatGambaNotes(round, taunt, window),
		VisualData: map[string]any{
			"layout":    "gamba",
			"choices":   Choices,
			"closes_at": round.ClosesAt,
		},
		Metadata: map[string]any{
			"game_type":         "rock_paper_scissors",
			"round_id":          round.ID,
			"betting_closes_at": round.ClosesAt,
			"commitment":        round.Commitment,
			"payouts":           Payouts,
			"status":            "betting_open",
		},
	}, nil
}

// Reveal returns the round with the house move once betting has closed.
func (g *Gamba) Reveal(roundID string) (Round, error) {
	g.mu.Lock()
	r, ok := g.rounds[roundID]
	g.mu.Unlock()
	if !ok {
		return Round{}, ErrUnknownRound
	}
	if g.clock.Now().Before(r.ClosesAt) {
		r.Choice, r.Nonce = "", ""
		return r, ErrBettingOpen
	}
	return r, nil
}

// houseChoice asks SWARM for a move half the time and otherwise draws one.
func (g *Gamba) houseChoice(ctx context.Context, in generator.Context) Choice {
	if g.swarm != nil && g.intn(2) == 0 {
		q := fmt.Sprintf("Rock paper scissors choice for show %s segment %d. What's the move?", in.ShowID, in.SegmentNumber)
		if res, err := g.swarm.Query(ctx, q, "GAMBA"); err == nil {
			upper := strings.ToUpper(res.Response)
			for _, c := range Choices {
				if strings.Contains(upper, string(c)) {
					return c
				}
			}
		}
	}
	return Choices[g.intn(len(Choices))]
}

func (g *Gamba) remember(r Round) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.rounds[r.ID]; !exists {
		g.order = append(g.order, r.ID)
	}
	g.rounds[r.ID] = r
	if len(g.order) > maxRounds {
		delete(g.rounds, g.order[0])
		g.order = g.order[1:]
	}
}

// Commit hashes a house move so it can be verified after the reveal.
func Commit(c Choice, nonce, showID string, segment int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s:%d", c, nonce, showID, segment)))
	return hex.EncodeToString(sum[:])
}

// Resolve scores a player's move against the house.
func Resolve(player, house Choice) (Outcome, error) {
	beats := map[Choice]Choice{Rock: Scissors, Paper: Rock, Scissors: Paper}
	if _, ok := beats[player]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidChoice, player)
	}
	switch {
	case player == house:
		return Tie, nil
	case beats[player] == house:
		return Win, nil
	default:
		return Loss, nil
	}
}

// ParseChoice accepts a move in any case.
func ParseChoice(s string) (Choice, error) {
	c := Choice(strings.ToUpper(strings.TrimSpace(s)))
	for _, valid := range Choices {
		if c == valid {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidChoice, s)
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func formatGambaNotes(r Round, taunt string, window time.Duration) string {
	return fmt.Sprintf(`=== GAMBA: ROCK PAPER SCISSORS vs GIZMO ===

%s

HOW TO PLAY:
1. Pick your move: ROCK | PAPER | SCISSORS
2. Place your bet
3. Submit before the timer expires
4. GIZMO reveals its move
5. Winners get paid

PAYOUTS:
- Beat GIZMO: 2x your bet
- Tie with GIZMO: bet returned
- Lose to GIZMO: better luck next time

BETTING WINDOW: %d MINUTES

Round ID: %s
GIZMO's commitment: %s
(GIZMO's move is locked in and verifiable after the reveal.)

GET YOUR BETS IN NOW!`, taunt, int(window/time.Minute), r.ID, r.Commitment)
}
