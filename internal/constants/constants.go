// Package constants provides named constants used throughout the admm-attack codebase.
// This centralizes the reference experiment configuration and numeric guard rails.
package constants

// Reference solver configuration.
const (
	// DefaultStepSize is the dual ascent rate (mu) of the ADMM u-update.
	DefaultStepSize = 0.00005

	// DefaultPenalty is the coupling weight (rho) between s and v.
	DefaultPenalty = 0.01

	// DefaultRegularization is the L1 sparsity weight (lambda).
	DefaultRegularization = 12.5

	// DefaultMaxIter caps the number of ADMM iterations per solve.
	DefaultMaxIter = 10000

	// DefaultTolerance is the L1 threshold on ||s - s_prev|| that ends a solve.
	DefaultTolerance = 1e-3
)

// Numeric guard rails for the closed-form s-update.
const (
	// PenaltyWarnThreshold is the penalty below which the solver logs a
	// warning: HᵀH + rho·I approaches singularity for rank-deficient H.
	PenaltyWarnThreshold = 1e-6

	// MaxConditionNumber is the largest accepted condition number of
	// HᵀH + rho·I. Larger values are rejected as ill-conditioned.
	MaxConditionNumber = 1e12
)

// Reference attack configuration.
const (
	// DefaultAttackAlpha is the per-step magnitude of the sign-gradient step.
	DefaultAttackAlpha = 0.01

	// DefaultAttackSteps is the number of BIM inner steps.
	DefaultAttackSteps = 5
)

// Reference problem and sweep configuration.
const (
	// DefaultSignalDim is the length of the sparse signal.
	DefaultSignalDim = 256

	// DefaultObservationDim is the length of the observation.
	DefaultObservationDim = 1000

	// DefaultSparsity is the number of non-zero entries of a generated signal.
	DefaultSparsity = 5

	// DefaultAmplitude scales the Gaussian values on the signal support.
	DefaultAmplitude = 0.5

	// DefaultNoiseStd is the standard deviation of the observation noise.
	DefaultNoiseStd = 0.01

	// DefaultSignals is the number of signals drawn per sweep.
	DefaultSignals = 100

	// DefaultEpsMin and DefaultEpsMax bound the swept perturbation budgets.
	DefaultEpsMin = 0.005
	DefaultEpsMax = 0.05

	// DefaultEpsSteps is the number of budgets between EpsMin and EpsMax.
	DefaultEpsSteps = 40

	// DefaultSeed seeds the sweep's random source.
	DefaultSeed = 0

	// DefaultLandscapeSteps is the resolution of a sampled loss landscape.
	DefaultLandscapeSteps = 50
)
