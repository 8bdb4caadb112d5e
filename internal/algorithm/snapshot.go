package algorithm

import (
	"encoding/json"
	"fmt"
)

// Snapshot is the full set of active parameters the feed engine consumes.
type Snapshot struct {
	Weights   ScoringWeights     `json:"weights"`
	Vibe      VibeMatrix         `json:"vibe"`
	Intent    IntentMatrix       `json:"intent"`
	Diversity DiversitySettings  `json:"diversity"`
	Versions  map[ConfigType]int `json:"versions,omitempty"` // 0 = built-in default
}

// Defaults returns the built-in parameters used until an admin saves a config of a type.
func Defaults() Snapshot {
	return Snapshot{
		Weights: ScoringWeights{Base: 0.4, Vibe: 0.25, Intent: 0.2, Social: 0.15},
		Vibe: VibeMatrix{
			VibeEnergetic:   {VibeEnergetic: 1, VibeChill: 0.2, VibeSocial: 0.7, VibeCreative: 0.4, VibeAdventurous: 0.8},
			VibeChill:       {VibeEnergetic: 0.2, VibeChill: 1, VibeSocial: 0.4, VibeCreative: 0.6, VibeAdventurous: 0.3},
			VibeSocial:      {VibeEnergetic: 0.7, VibeChill: 0.4, VibeSocial: 1, VibeCreative: 0.5, VibeAdventurous: 0.6},
			VibeCreative:    {VibeEnergetic: 0.4, VibeChill: 0.6, VibeSocial: 0.5, VibeCreative: 1, VibeAdventurous: 0.5},
			VibeAdventurous: {VibeEnergetic: 0.8, VibeChill: 0.3, VibeSocial: 0.6, VibeCreative: 0.5, VibeAdventurous: 1},
		},
		Intent: IntentMatrix{
			IntentMeetNew:             {IntentMeetNew: 1, IntentActivityPartner: 0.7, IntentFlirt: 0.6, IntentSeriousRelationship: 0.5},
			IntentActivityPartner:     {IntentMeetNew: 0.7, IntentActivityPartner: 1, IntentFlirt: 0.3, IntentSeriousRelationship: 0.3},
			IntentFlirt:               {IntentMeetNew: 0.6, IntentActivityPartner: 0.3, IntentFlirt: 1, IntentSeriousRelationship: 0.4},
			IntentSeriousRelationship: {IntentMeetNew: 0.4, IntentActivityPartner: 0.3, IntentFlirt: 0.2, IntentSeriousRelationship: 1},
		},
		Diversity: DiversitySettings{"photo": 10, "video": 6, "live": 3, "story": 4, "text": 5},
		Versions:  map[ConfigType]int{},
	}
}

// Apply replaces the parameter block matching cfg's type.
func (s *Snapshot) Apply(cfg Config, version int) {
	switch c := cfg.(type) {
	case ScoringWeights:
		s.Weights = c
	case VibeMatrix:
		s.Vibe = c
	case IntentMatrix:
		s.Intent = c
	case DiversitySettings:
		s.Diversity = c
	default:
		return
	}
	if s.Versions == nil {
		s.Versions = map[ConfigType]int{}
	}
	s.Versions[cfg.Type()] = version
}

// Get returns the parameter block of type t.
func (s Snapshot) Get(t ConfigType) (Config, error) {
	switch t {
	case TypeWeights:
		return s.Weights, nil
	case TypeVibe:
		return s.Vibe, nil
	case TypeIntent:
		return s.Intent, nil
	case TypeDiversity:
		return s.Diversity, nil
	}
	return nil, fmt.Errorf("%w: unknown config_type %q", ErrInvalidConfig, t)
}

// Validate checks all four parameter blocks.
func (s Snapshot) Validate() error {
	for _, t := range ConfigTypes {
		cfg, err := s.Get(t)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// DecodeSnapshot parses a full snapshot document, falling back to defaults for missing blocks.
func DecodeSnapshot(raw json.RawMessage) (Snapshot, error) {
	var parts map[string]json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return Snapshot{}, fmt.Errorf("%w: snapshot is not a JSON object: %v", ErrInvalidConfig, err)
	}
	snap := Defaults()
	for _, t := range ConfigTypes {
		block, ok := parts[string(t)]
		if !ok || string(block) == "null" {
			continue
		}
		cfg, err := Decode(t, block)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Apply(cfg, 0)
	}
	return snap, nil
}
