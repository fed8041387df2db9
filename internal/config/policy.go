package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Exam policy defaults.
const (
	DefaultMaxWarnings        = 3
	DefaultMinutesPerQuestion = 0.7
	DefaultNegativeMark       = 1.0 / 3.0
	DefaultPassPercentage     = 40.0
	DefaultSessionGrace       = 10 * time.Minute
)

// ErrInvalidPolicy is returned when a loaded policy is unusable.
var ErrInvalidPolicy = errors.New("invalid exam policy")

// Policy holds the rules applied to every attempt.
type Policy struct {
	// MaxWarnings is the violation count that force-submits an attempt.
	MaxWarnings int `mapstructure:"max_warnings"`
	// MinutesPerQuestion sizes the countdown: ceil(N * MinutesPerQuestion * 60) seconds.
	MinutesPerQuestion float64 `mapstructure:"minutes_per_question"`
	// NegativeMark is subtracted for every wrong answer, regardless of the
	// question's own negative_marks field.
	NegativeMark   float64 `mapstructure:"negative_mark"`
	PassPercentage float64 `mapstructure:"pass_percentage"`
	// FullscreenExitIsViolation counts leaving fullscreen like a window blur.
	FullscreenExitIsViolation bool `mapstructure:"fullscreen_exit_is_violation"`
	// ViolationDebounce ignores counted signals closer together than this.
	// Zero disables debouncing so every transition counts.
	ViolationDebounce time.Duration `mapstructure:"violation_debounce"`
	// SessionGrace keeps a submitted attempt in memory for late reads.
	SessionGrace time.Duration `mapstructure:"session_grace"`
}

// DefaultPolicy returns the built-in exam rules.
func DefaultPolicy() Policy {
	return Policy{
		MaxWarnings:               DefaultMaxWarnings,
		MinutesPerQuestion:        DefaultMinutesPerQuestion,
		NegativeMark:              DefaultNegativeMark,
		PassPercentage:            DefaultPassPercentage,
		FullscreenExitIsViolation: true,
		SessionGrace:              DefaultSessionGrace,
	}
}

// DurationSeconds returns the time allotted to an attempt of n questions.
func (p Policy) DurationSeconds(n int) int {
	if n <= 0 {
		return 0
	}
	// Round away float noise before the ceiling so 0.7*60 stays 42.
	secs := math.Round(float64(n)*p.MinutesPerQuestion*60*1e6) / 1e6
	return int(math.Ceil(secs))
}

// Validate rejects policies that would make attempts unscorable.
func (p Policy) Validate() error {
	switch {
	case p.MaxWarnings < 1:
		return fmt.Errorf("%w: max_warnings must be at least 1", ErrInvalidPolicy)
	case p.MinutesPerQuestion <= 0:
		return fmt.Errorf("%w: minutes_per_question must be positive", ErrInvalidPolicy)
	case p.NegativeMark < 0:
		return fmt.Errorf("%w: negative_mark must not be negative", ErrInvalidPolicy)
	case p.PassPercentage < 0 || p.PassPercentage > 100:
		return fmt.Errorf("%w: pass_percentage must be within 0..100", ErrInvalidPolicy)
	case p.ViolationDebounce < 0:
		return fmt.Errorf("%w: violation_debounce must not be negative", ErrInvalidPolicy)
	}
	return nil
}

// LoadPolicy reads the exam policy from an optional YAML file and EXAM_*
// environment variables. When path is empty, ./config/exam_policy.yaml is
// used if it exists.
func LoadPolicy(path string) (Policy, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("exam_policy")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
	}

	def := DefaultPolicy()
	v.SetDefault("max_warnings", def.MaxWarnings)
	v.SetDefault("minutes_per_question", def.MinutesPerQuestion)
	v.SetDefault("negative_mark", def.NegativeMark)
	v.SetDefault("pass_percentage", def.PassPercentage)
	v.SetDefault("fullscreen_exit_is_violation", def.FullscreenExitIsViolation)
	v.SetDefault("violation_debounce", def.ViolationDebounce)
	v.SetDefault("session_grace", def.SessionGrace)

	v.SetEnvPrefix("exam")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Policy{}, fmt.Errorf("read policy file: %w", err)
		}
	}

	var p Policy
	if err := v.Unmarshal(&p); err != nil {
		return Policy{}, fmt.Errorf("unmarshal policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}
