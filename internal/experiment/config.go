package experiment

import (
	"errors"
	"fmt"

	"github.com/nvandessel/admm-attack/internal/admm"
	"github.com/nvandessel/admm-attack/internal/attack"
	"github.com/nvandessel/admm-attack/internal/constants"
	"gonum.org/v1/gonum/floats"
)

// ErrInvalidSweep is returned for malformed problem or sweep settings.
var ErrInvalidSweep = errors.New("experiment: invalid sweep configuration")

// Problem describes the synthetic recovery problem.
type Problem struct {
	SignalDim      int     `json:"signal_dim" yaml:"signal_dim"`
	ObservationDim int     `json:"observation_dim" yaml:"observation_dim"`
	Sparsity       int     `json:"sparsity" yaml:"sparsity"`
	Amplitude      float64 `json:"amplitude" yaml:"amplitude"`
	NoiseStd       float64 `json:"noise_std" yaml:"noise_std"`
}

// Sweep describes the perturbation budgets and trial fan-out.
type Sweep struct {
	// Signals is the number of signals drawn; each is attacked at every budget.
	Signals int `json:"signals" yaml:"signals"`

	// EpsMin, EpsMax and EpsSteps define evenly spaced budgets, both ends included.
	EpsMin   float64 `json:"eps_min" yaml:"eps_min"`
	EpsMax   float64 `json:"eps_max" yaml:"eps_max"`
	EpsSteps int     `json:"eps_steps" yaml:"eps_steps"`

	// Workers bounds the number of signals processed concurrently.
	Workers int `json:"workers" yaml:"workers"`

	// Seed drives the operator and all generated signals.
	Seed uint64 `json:"seed" yaml:"seed"`
}

// Config is a full experiment definition.
type Config struct {
	Problem Problem        `json:"problem" yaml:"problem"`
	Solver  admm.Config    `json:"solver" yaml:"solver"`
	Attack  attack.Options `json:"attack" yaml:"attack"`
	Sweep   Sweep          `json:"sweep" yaml:"sweep"`
}

// DefaultConfig returns the reference experiment.
func DefaultConfig() Config {
	return Config{
		Problem: Problem{
			SignalDim:      constants.DefaultSignalDim,
			ObservationDim: constants.DefaultObservationDim,
			Sparsity:       constants.DefaultSparsity,
			Amplitude:      constants.DefaultAmplitude,
			NoiseStd:       constants.DefaultNoiseStd,
		},
		Solver: admm.DefaultConfig(),
		Attack: attack.DefaultOptions(),
		Sweep: Sweep{
			Signals:  constants.DefaultSignals,
			EpsMin:   constants.DefaultEpsMin,
			EpsMax:   constants.DefaultEpsMax,
			EpsSteps: constants.DefaultEpsSteps,
			Workers:  1,
			Seed:     constants.DefaultSeed,
		},
	}
}

// Validate checks every section of the experiment.
func (c Config) Validate() error {
	p := c.Problem
	if p.SignalDim <= 0 || p.ObservationDim <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got signal=%d observation=%d",
			ErrInvalidSweep, p.SignalDim, p.ObservationDim)
	}
	if p.Sparsity < 0 || p.Sparsity > p.SignalDim {
		return fmt.Errorf("%w: sparsity %d outside [0, %d]", ErrInvalidSweep, p.Sparsity, p.SignalDim)
	}
	if p.NoiseStd < 0 {
		return fmt.Errorf("%w: noise_std must be non-negative", ErrInvalidSweep)
	}
	if err := c.Solver.Validate(); err != nil {
		return err
	}
	if err := c.Attack.Validate(); err != nil {
		return err
	}

	s := c.Sweep
	if s.Signals <= 0 {
		return fmt.Errorf("%w: signals must be positive, got %d", ErrInvalidSweep, s.Signals)
	}
	if s.EpsSteps <= 0 {
		return fmt.Errorf("%w: eps_steps must be positive, got %d", ErrInvalidSweep, s.EpsSteps)
	}
	if s.EpsMin < 0 || s.EpsMax < s.EpsMin {
		return fmt.Errorf("%w: need 0 <= eps_min <= eps_max, got [%v, %v]", ErrInvalidSweep, s.EpsMin, s.EpsMax)
	}
	if s.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative", ErrInvalidSweep)
	}
	return nil
}

// Radii returns the swept budgets.
func (s Sweep) Radii() []float64 {
	if s.EpsSteps <= 1 {
		return []float64{s.EpsMin}
	}
	r := make([]float64, s.EpsSteps)
	floats.Span(r, s.EpsMin, s.EpsMax)
	return r
}
