// Package fgerr classifies the errors that cross the rebalancer and
// materialiser boundary into the four kinds spec.md §7 names, so callers
// can branch on Kind() instead of matching error strings — grounded on the
// backend scheduler's fmt.Errorf("...: %w", err) wrapping style, layered
// with a typed Kind the teacher itself doesn't need because it has no
// retry/degrade distinction of its own.
package fgerr

import "errors"

// ErrTransient, ErrConfig, ErrInvariant and ErrFatal are sentinel errors
// wrapped with %w so errors.Is still matches after fmt.Errorf wrapping.
var (
	// ErrTransient marks a failure the controller should retry on its next
	// tick (e.g. the ASIC southbound binding returned a resource-exhausted
	// error that may clear).
	ErrTransient = errors.New("transient failure")
	// ErrConfig marks a bad operator input; the event is dropped and
	// logged at warn level, no retry.
	ErrConfig = errors.New("configuration error")
	// ErrInvariant marks an internal invariant violation; the rebalance
	// call fails and the group is left in its prior state.
	ErrInvariant = errors.New("invariant violation")
	// ErrFatal marks an unrecoverable failure; the group is torn down and
	// the failure is reported to the caller of SetRoute.
	ErrFatal = errors.New("fatal failure")
)

// Kind names one of the four error categories spec.md §7 defines.
type Kind int

const (
	KindNone Kind = iota
	KindTransient
	KindConfig
	KindInvariant
	KindFatal
)

// ClassOf inspects err for one of the four sentinels via errors.Is and
// reports its Kind, or KindNone if err doesn't wrap any of them.
func ClassOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrConfig):
		return KindConfig
	case errors.Is(err, ErrInvariant):
		return KindInvariant
	case errors.Is(err, ErrFatal):
		return KindFatal
	default:
		return KindNone
	}
}
