package rotation

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the on-disk rotation format.
//
//	rotation:
//	  - kind: TOKEN_LAUNCH_LIVE
//	  - kind: GAMBA
//	    seconds: 240
//	durations:
//	  SWARM_ANALYSIS: 600
type File struct {
	Rotation  []FileEntry    `yaml:"rotation"`
	Durations map[string]int `yaml:"durations"`
}

// FileEntry is one rotation position. Seconds overrides the per-kind duration
// for this position only.
type FileEntry struct {
	Kind    string `yaml:"kind"`
	Seconds *int   `yaml:"seconds,omitempty"`
}

// LoadFile reads a YAML rotation file.
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rotation file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML rotation document.
func Parse(data []byte) ([]Entry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode rotation: %w", err)
	}

	overrides := make(map[Kind]time.Duration, len(f.Durations))
	for name, secs := range f.Durations {
		k, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		overrides[k] = time.Duration(secs) * time.Second
	}

	kinds := make([]Kind, 0, len(f.Rotation))
	for _, fe := range f.Rotation {
		k, err := ParseKind(fe.Kind)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}

	entries, err := Build(kinds, overrides)
	if err != nil {
		return nil, err
	}
	for i, fe := range f.Rotation {
		if fe.Seconds == nil {
			continue
		}
		if *fe.Seconds < 0 {
			return nil, fmt.Errorf("position %d (%s): %w", i, entries[i].Kind, ErrNegativeDuration)
		}
		entries[i].Duration = time.Duration(*fe.Seconds) * time.Second
	}
	return entries, nil
}
