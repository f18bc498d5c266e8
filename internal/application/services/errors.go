package services

import "errors"

// ErrValidation marks a request that passed binding but breaks a business
// rule, such as an unknown role or status.
var ErrValidation = errors.New("validation failed")

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

// round2 rounds money to cents.
func round2(v float64) float64 {
	if v < 0 {
		return -round2(-v)
	}
	return float64(int64(v*100+0.5)) / 100
}
