package domain

import (
	"errors"
	"fmt"
)

var (
	ErrProjectNotFound    = errors.New("project not found")
	ErrReportNotFound     = errors.New("report not found")
	ErrCircuitOpen        = errors.New("circuit open for domain")
	ErrCaptureTimeout     = errors.New("capture timed out")
	ErrScraperUnavailable = errors.New("scraper unavailable")
	ErrNotReady           = errors.New("project is missing required entities")
)

// FailureKind is the taxonomy of generation failures.
type FailureKind string

const (
	FailureReadiness   FailureKind = "readiness"
	FailureCollection  FailureKind = "collection"
	FailureAssembly    FailureKind = "assembly"
	FailurePersistence FailureKind = "persistence"
	FailureTerminal    FailureKind = "terminal"
)

// StageError tags an error with the stage and failure kind it came from.
type StageError struct {
	Kind  FailureKind
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failure in %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err unless it is nil.
func NewStageError(kind FailureKind, stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Kind: kind, Stage: stage, Err: err}
}

// FailureKindOf extracts the outermost failure kind from err.
func FailureKindOf(err error) (FailureKind, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}
