package risk

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidPolicy is returned when a policy file fails validation.
var ErrInvalidPolicy = errors.New("invalid risk policy")

// Weights are the base contributions per event kind.
type Weights struct {
	TabSwitch         float64       `yaml:"tab_switch"`
	WindowBlurPerUnit float64       `yaml:"window_blur_per_unit"`
	WindowBlurUnit    time.Duration `yaml:"window_blur_unit"`
	CopyAttempt       float64       `yaml:"copy_attempt"`
	PasteAttempt      float64       `yaml:"paste_attempt"`
	RightClick        float64       `yaml:"right_click"`
	TimeAnomaly       float64       `yaml:"time_anomaly"`
}

// Thresholds are the lower bounds of each level above LOW.
type Thresholds struct {
	Medium   float64 `yaml:"medium"`
	High     float64 `yaml:"high"`
	Critical float64 `yaml:"critical"`
}

// Policy configures the scorer.
type Policy struct {
	Weights    Weights    `yaml:"weights"`
	Thresholds Thresholds `yaml:"thresholds"`
}

// DefaultPolicy is the starting policy used when no file is configured.
func DefaultPolicy() Policy {
	return Policy{
		Weights: Weights{
			TabSwitch:         10,
			WindowBlurPerUnit: 5,
			WindowBlurUnit:    10 * time.Second,
			CopyAttempt:       15,
			PasteAttempt:      15,
			RightClick:        2,
			TimeAnomaly:       20,
		},
		Thresholds: Thresholds{
			Medium:   25,
			High:     60,
			Critical: 100,
		},
	}
}

// LoadPolicy reads a YAML policy from path. Fields missing from the file keep
// their default values. An empty path yields DefaultPolicy.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read risk policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("parse risk policy %s: %w", path, err)
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

// Validate checks that weights are non-negative and thresholds ascend.
func (p Policy) Validate() error {
	w := p.Weights
	for name, v := range map[string]float64{
		"tab_switch":           w.TabSwitch,
		"window_blur_per_unit": w.WindowBlurPerUnit,
		"copy_attempt":         w.CopyAttempt,
		"paste_attempt":        w.PasteAttempt,
		"right_click":          w.RightClick,
		"time_anomaly":         w.TimeAnomaly,
	} {
		if v < 0 {
			return fmt.Errorf("%w: weight %s is negative", ErrInvalidPolicy, name)
		}
	}
	if w.WindowBlurUnit <= 0 {
		return fmt.Errorf("%w: window_blur_unit must be positive", ErrInvalidPolicy)
	}

	t := p.Thresholds
	if !(0 < t.Medium && t.Medium < t.High && t.High < t.Critical) {
		return fmt.Errorf("%w: thresholds must satisfy 0 < medium < high < critical", ErrInvalidPolicy)
	}
	return nil
}
