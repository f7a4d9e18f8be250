package admm

import (
	"fmt"

	"github.com/nvandessel/admm-attack/internal/constants"
)

// Config holds the solver hyperparameters. All values must be strictly positive.
type Config struct {
	// StepSize is the dual ascent rate (mu) of the u-update.
	StepSize float64 `json:"step_size" yaml:"step_size"`

	// Penalty is the coupling weight (rho) between s and v. It also shifts
	// the Gram matrix of the closed-form s-update.
	Penalty float64 `json:"penalty" yaml:"penalty"`

	// Regularization is the L1 sparsity weight (lambda).
	Regularization float64 `json:"regularization" yaml:"regularization"`

	// MaxIter caps the number of iterations of a single Solve.
	MaxIter int `json:"max_iter" yaml:"max_iter"`

	// Tolerance ends a Solve once ||s - s_prev||_1 falls to or below it.
	Tolerance float64 `json:"tolerance" yaml:"tolerance"`
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		StepSize:       constants.DefaultStepSize,
		Penalty:        constants.DefaultPenalty,
		Regularization: constants.DefaultRegularization,
		MaxIter:        constants.DefaultMaxIter,
		Tolerance:      constants.DefaultTolerance,
	}
}

// Validate rejects non-positive (or NaN) hyperparameters.
func (c Config) Validate() error {
	if !(c.StepSize > 0) {
		return fmt.Errorf("%w: step_size must be positive, got %v", ErrInvalidConfiguration, c.StepSize)
	}
	if !(c.Penalty > 0) {
		return fmt.Errorf("%w: penalty must be positive, got %v", ErrInvalidConfiguration, c.Penalty)
	}
	if !(c.Regularization > 0) {
		return fmt.Errorf("%w: regularization must be positive, got %v", ErrInvalidConfiguration, c.Regularization)
	}
	if c.MaxIter <= 0 {
		return fmt.Errorf("%w: max_iter must be positive, got %d", ErrInvalidConfiguration, c.MaxIter)
	}
	if !(c.Tolerance > 0) {
		return fmt.Errorf("%w: tolerance must be positive, got %v", ErrInvalidConfiguration, c.Tolerance)
	}
	return nil
}

// Threshold is the shrinkage threshold penalty/(2·lambda) of the v-update.
func (c Config) Threshold() float64 {
	return c.Penalty / (2 * c.Regularization)
}
