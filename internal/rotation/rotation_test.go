package rotation

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name      string
		kinds     []Kind
		overrides map[Kind]time.Duration
		want      []Entry
		wantErr   error
	}{
		{
			name:    "empty",
			kinds:   nil,
			wantErr: ErrEmptyRotation,
		},
		{
			name:  "defaults",
			kinds: []Kind{KindGamba, KindIntermission},
			want: []Entry{
				{Kind: KindGamba, Duration: 360 * time.Second},
				{Kind: KindIntermission, Duration: 180 * time.Second},
			},
		},
		{
			name:      "override applies to every position of the kind",
			kinds:     []Kind{KindGamba, KindR3llMusic, KindGamba},
			overrides: map[Kind]time.Duration{KindGamba: 0},
			want: []Entry{
				{Kind: KindGamba, Duration: 0},
				{Kind: KindR3llMusic, Duration: 300 * time.Second},
				{Kind: KindGamba, Duration: 0},
			},
		},
		{
			name:    "unknown kind",
			kinds:   []Kind{"KARAOKE"},
			wantErr: ErrUnknownKind,
		},
		{
			name:      "negative duration",
			kinds:     []Kind{KindGamba},
			overrides: map[Kind]time.Duration{KindGamba: -time.Second},
			wantErr:   ErrNegativeDuration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Build(tt.kinds, tt.overrides)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d entries, got %d", len(tt.want), len(got))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("entry %d: expected %+v, got %+v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestDefaultRotation(t *testing.T) {
	entries := Default()
	if len(entries) != 8 {
		t.Fatalf("expected 8 entries, got %d", len(entries))
	}
	if entries[0].Kind != KindTokenLaunchLive || entries[7].Kind != KindNarrativeAlpha {
		t.Fatalf("unexpected order: %v", Kinds(entries))
	}
	if err := Validate(entries); err != nil {
		t.Fatalf("default rotation invalid: %v", err)
	}
}

func TestDefaultDurationFallback(t *testing.T) {
	if got := DefaultDuration("SOMETHING_NEW"); got != FallbackDuration {
		t.Fatalf("expected fallback duration, got %v", got)
	}
	if got := DefaultDuration(KindCryptoDeepDive); got != 600*time.Second {
		t.Fatalf("unexpected deep dive duration: %v", got)
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" meme_economy ")
	if err != nil {
		t.Fatalf("parse kind: %v", err)
	}
	if k != KindMemeEconomy {
		t.Fatalf("unexpected kind %q", k)
	}
	if _, err := ParseKind("nope"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	doc := `
rotation:
  - kind: TOKEN_LAUNCH_LIVE
  - kind: gamba
    seconds: 240
  - kind: SWARM_ANALYSIS
durations:
  SWARM_ANALYSIS: 600
`
	path := filepath.Join(t.TempDir(), "rotation.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	entries, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	want := []Entry{
		{Kind: KindTokenLaunchLive, Duration: 420 * time.Second},
		{Kind: KindGamba, Duration: 240 * time.Second},
		{Kind: KindSwarmAnalysis, Duration: 600 * time.Second},
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry %d: expected %+v, got %+v", i, want[i], entries[i])
		}
	}
}

func TestParseEmptyFile(t *testing.T) {
	if _, err := Parse([]byte("rotation: []\n")); !errors.Is(err, ErrEmptyRotation) {
		t.Fatalf("expected ErrEmptyRotation, got %v", err)
	}
}
