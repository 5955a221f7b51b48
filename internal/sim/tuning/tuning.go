package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds client-side knobs that never affect chain state.
type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	// Seconds added to wall time when asking for the displayed phase.
	LookaheadDelaySeconds int64 `yaml:"lookahead_delay_seconds"`

	WhirlpoolThreshold  int     `yaml:"whirlpool_threshold"`
	NoiseDenominator    int     `yaml:"noise_denominator"`
	WhirlpoolCacheCap   int     `yaml:"whirlpool_cache_cap"`
	FiringSpreadDegrees float64 `yaml:"firing_spread_degrees"`

	// AutoSettle copies backend shadows into local ones as soon as a
	// batch is reconciled (headless mode, no animation layer).
	AutoSettle bool `yaml:"auto_settle"`

	ConfigUnavailableWarnSeconds int `yaml:"config_unavailable_warn_seconds"`

	Reconnect Reconnect `yaml:"reconnect"`
}

type Reconnect struct {
	EverySeconds int `yaml:"every_seconds"`
	Burst        int `yaml:"burst"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:              "1.0",
		LookaheadDelaySeconds:        0,
		WhirlpoolThreshold:           26,
		NoiseDenominator:             20,
		WhirlpoolCacheCap:            1 << 16,
		FiringSpreadDegrees:          10,
		AutoSettle:                   false,
		ConfigUnavailableWarnSeconds: 15,
		Reconnect: Reconnect{
			EverySeconds: 2,
			Burst:        1,
		},
	}
}

// Load reads path over Defaults(); absent keys keep their default.
func Load(path string) (Tuning, error) {
	return LoadOver(Defaults(), path)
}

// LoadOver reads path over base, so a tool's own overrides survive
// unless the file sets the same keys.
func LoadOver(base Tuning, path string) (Tuning, error) {
	t := base
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.WhirlpoolThreshold <= 0 || t.WhirlpoolThreshold > 100 {
		return fmt.Errorf("whirlpool_threshold %d outside (0,100]", t.WhirlpoolThreshold)
	}
	if t.NoiseDenominator <= 0 {
		return fmt.Errorf("noise_denominator must be positive")
	}
	if t.FiringSpreadDegrees <= 0 || t.FiringSpreadDegrees >= 90 {
		return fmt.Errorf("firing_spread_degrees %v outside (0,90)", t.FiringSpreadDegrees)
	}
	if t.LookaheadDelaySeconds < 0 {
		return fmt.Errorf("lookahead_delay_seconds must not be negative")
	}
	return nil
}
