package algorithm

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// PageSize is the number of feed items a diversity cap is measured against.
const PageSize = 20

// WeightTolerance is the allowed deviation of the weight sum from 1.0.
const WeightTolerance = 0.01

// ErrInvalidConfig is wrapped by every validation failure so handlers can map it to 400.
var ErrInvalidConfig = errors.New("invalid algorithm config")

// ConfigType discriminates the shape of config_data.
type ConfigType string

const (
	TypeWeights   ConfigType = "weights"
	TypeVibe      ConfigType = "vibe"
	TypeIntent    ConfigType = "intent"
	TypeDiversity ConfigType = "diversity"
)

// ConfigTypes lists every config type in a stable order.
var ConfigTypes = []ConfigType{TypeWeights, TypeVibe, TypeIntent, TypeDiversity}

// ParseConfigType accepts a config_type string in any case.
func ParseConfigType(s string) (ConfigType, error) {
	t := ConfigType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ConfigTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown config_type %q", ErrInvalidConfig, s)
}

// Vibe is a self-reported mood category.
type Vibe string

const (
	VibeEnergetic   Vibe = "energetic"
	VibeChill       Vibe = "chill"
	VibeSocial      Vibe = "social"
	VibeCreative    Vibe = "creative"
	VibeAdventurous Vibe = "adventurous"
)

var Vibes = []Vibe{VibeEnergetic, VibeChill, VibeSocial, VibeCreative, VibeAdventurous}

func (v Vibe) Valid() bool { return contains(Vibes, v) }

// Intent is a self-reported dating goal.
type Intent string

const (
	IntentMeetNew             Intent = "meet_new"
	IntentActivityPartner     Intent = "activity_partner"
	IntentFlirt               Intent = "flirt"
	IntentSeriousRelationship Intent = "serious_relationship"
)

var Intents = []Intent{IntentMeetNew, IntentActivityPartner, IntentFlirt, IntentSeriousRelationship}

func (i Intent) Valid() bool { return contains(Intents, i) }

// Config is one decoded config_data payload.
type Config interface {
	Type() ConfigType
	Validate() error
}

// ScoringWeights are the linear multipliers of the four sub-scores.
type ScoringWeights struct {
	Base   float64 `json:"base"`
	Vibe   float64 `json:"vibe"`
	Intent float64 `json:"intent"`
	Social float64 `json:"social"`
}

func (ScoringWeights) Type() ConfigType { return TypeWeights }

func (w ScoringWeights) Sum() float64 { return w.Base + w.Vibe + w.Intent + w.Social }

// sumEpsilon absorbs float error at the tolerance boundary (0.26+0.25+0.25+0.25).
const sumEpsilon = 1e-9

// Validate enforces non-negative weights summing to 1 within WeightTolerance.
func (w ScoringWeights) Validate() error {
	parts := []struct {
		name string
		v    float64
	}{{"base", w.Base}, {"vibe", w.Vibe}, {"intent", w.Intent}, {"social", w.Social}}
	for _, p := range parts {
		if math.IsNaN(p.v) || math.IsInf(p.v, 0) {
			return fmt.Errorf("%w: weight %s is not a finite number", ErrInvalidConfig, p.name)
		}
		if p.v < 0 {
			return fmt.Errorf("%w: weight %s must be >= 0, got %v", ErrInvalidConfig, p.name, p.v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > WeightTolerance+sumEpsilon {
		return fmt.Errorf("%w: weights must sum to 1.0 (±%.2f), got %.4f", ErrInvalidConfig, WeightTolerance, sum)
	}
	return nil
}

// VibeMatrix maps viewer vibe -> item vibe -> compatibility in [0,1].
type VibeMatrix map[Vibe]map[Vibe]float64

func (VibeMatrix) Type() ConfigType { return TypeVibe }

func (m VibeMatrix) Validate() error { return validateMatrix(m, Vibes, "vibe") }

// Lookup returns the compatibility of viewer and item vibes.
func (m VibeMatrix) Lookup(viewer, item Vibe) (float64, bool) { return lookup(m, viewer, item) }

// IsSymmetric reports whether m[a][b] == m[b][a] for every pair.
func (m VibeMatrix) IsSymmetric() bool { return symmetric(m, Vibes) }

// IntentMatrix maps viewer intent -> creator intent -> compatibility in [0,1].
type IntentMatrix map[Intent]map[Intent]float64

func (IntentMatrix) Type() ConfigType { return TypeIntent }

func (m IntentMatrix) Validate() error { return validateMatrix(m, Intents, "intent") }

func (m IntentMatrix) Lookup(viewer, creator Intent) (float64, bool) {
	return lookup(m, viewer, creator)
}

func (m IntentMatrix) IsSymmetric() bool { return symmetric(m, Intents) }

// DiversitySettings caps how many items of a content type may appear on one page.
type DiversitySettings map[string]int

func (DiversitySettings) Type() ConfigType { return TypeDiversity }

// Validate enforces integer caps in [0, PageSize].
func (d DiversitySettings) Validate() error {
	for _, contentType := range d.ContentTypes() {
		if strings.TrimSpace(contentType) == "" {
			return fmt.Errorf("%w: diversity content type must not be empty", ErrInvalidConfig)
		}
		capacity := d[contentType]
		if capacity < 0 || capacity > PageSize {
			return fmt.Errorf("%w: diversity cap for %q must be between 0 and %d, got %d", ErrInvalidConfig, contentType, PageSize, capacity)
		}
	}
	return nil
}

// Cap returns the per-page limit for a content type. Unlisted types are uncapped.
func (d DiversitySettings) Cap(contentType string) int {
	if c, ok := d[contentType]; ok {
		return c
	}
	return PageSize
}

// ContentTypes returns the capped content types sorted by name.
func (d DiversitySettings) ContentTypes() []string {
	out := make([]string, 0, len(d))
	for k := range d {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func validateMatrix[K ~string](m map[K]map[K]float64, keys []K, name string) error {
	for row := range m {
		if !contains(keys, row) {
			return fmt.Errorf("%w: unknown %s %q in matrix", ErrInvalidConfig, name, row)
		}
	}
	for _, row := range keys {
		cols, ok := m[row]
		if !ok {
			return fmt.Errorf("%w: %s matrix missing row %q", ErrInvalidConfig, name, row)
		}
		for col := range cols {
			if !contains(keys, col) {
				return fmt.Errorf("%w: unknown %s %q in row %q", ErrInvalidConfig, name, col, row)
			}
		}
		for _, col := range keys {
			v, ok := cols[col]
			if !ok {
				return fmt.Errorf("%w: %s matrix missing cell %q/%q", ErrInvalidConfig, name, row, col)
			}
			if math.IsNaN(v) || v < 0 || v > 1 {
				return fmt.Errorf("%w: %s matrix cell %q/%q must be in [0,1], got %v", ErrInvalidConfig, name, row, col, v)
			}
		}
	}
	return nil
}

func lookup[K ~string](m map[K]map[K]float64, row, col K) (float64, bool) {
	cols, ok := m[row]
	if !ok {
		return 0, false
	}
	v, ok := cols[col]
	return v, ok
}

func symmetric[K ~string](m map[K]map[K]float64, keys []K) bool {
	for i, a := range keys {
		for _, b := range keys[i+1:] {
			ab, okA := lookup(m, a, b)
			ba, okB := lookup(m, b, a)
			if okA != okB || math.Abs(ab-ba) > 1e-9 {
				return false
			}
		}
	}
	return true
}

func contains[K comparable](list []K, v K) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
