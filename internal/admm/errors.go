package admm

import "errors"

var (
	// ErrInvalidConfiguration covers non-positive hyperparameters and
	// mismatched dimensions. It is raised before any factorisation.
	ErrInvalidConfiguration = errors.New("admm: invalid configuration")

	// ErrIllConditioned is returned when HᵀH + rho·I cannot be factorised
	// or its condition number exceeds constants.MaxConditionNumber.
	ErrIllConditioned = errors.New("admm: ill-conditioned operator")

	// ErrNoTape is returned by Gradient when no solve has been recorded
	// since construction or the last Reset.
	ErrNoTape = errors.New("admm: no recorded solve to differentiate")
)
