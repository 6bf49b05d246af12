// Package scanner gates stored files on an external malware scan.
package scanner

import (
	"context"
	"fmt"
)

// Verdict is the outcome of a scan.
type Verdict int

const (
	// Unavailable means the scanner could not give an answer. Callers must
	// treat it as a failure.
	Unavailable Verdict = iota
	Clean
	Infected
)

func (v Verdict) String() string {
	switch v {
	case Clean:
		return "clean"
	case Infected:
		return "infected"
	default:
		return "unavailable"
	}
}

// Result carries the verdict and, when infected, the raw scanner report.
type Result struct {
	Verdict Verdict
	Report  string
}

// Scanner inspects a complete file on disk.
type Scanner interface {
	// Scan returns Clean or Infected with a nil error, or Unavailable with the
	// reason the scanner could not be consulted.
	Scan(ctx context.Context, path string) (Result, error)
}

// Disabled is used when scanning is switched off by policy. Every file is
// reported clean without contacting anything.
type Disabled struct{}

func (Disabled) Scan(context.Context, string) (Result, error) {
	return Result{Verdict: Clean}, nil
}

// ErrUnavailable wraps the cause of an Unavailable verdict.
type ErrUnavailable struct {
	Cause error
}

func (e *ErrUnavailable) Error() string {
	return fmt.Sprintf("scanner unavailable: %v", e.Cause)
}

func (e *ErrUnavailable) Unwrap() error { return e.Cause }

func unavailable(format string, args ...any) (Result, error) {
	return Result{Verdict: Unavailable}, &ErrUnavailable{Cause: fmt.Errorf(format, args...)}
}
