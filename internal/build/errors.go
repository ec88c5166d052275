package build

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownItem is returned for a task key with no registered declaration.
var ErrUnknownItem = errors.New("no declaration registered")

// ItemBuildError wraps any failure while loading, building or syncing one
// item. It is the error surface callers of the orchestrator see.
type ItemBuildError struct {
	// ItemType is the item kind, "model" or "block".
	ItemType string

	ItemName string
	Cause    error
}

// Error implements the error interface.
func (e *ItemBuildError) Error() string {
	return fmt.Sprintf("build %s %s: %v", e.ItemType, e.ItemName, e.Cause)
}

func (e *ItemBuildError) Unwrap() error {
	return e.Cause
}

// IsItemBuildError returns true if err wraps an ItemBuildError.
func IsItemBuildError(err error) bool {
	var be *ItemBuildError
	return errors.As(err, &be)
}

// DependencyCycleError reports items whose declarations wait on each other.
type DependencyCycleError struct {
	// Path lists task keys from the waiting item around to itself, e.g.
	// ["model:A", "block:B", "model:A"].
	Path []string
}

// Error implements the error interface.
func (e *DependencyCycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

// IsDependencyCycle returns true if err wraps a DependencyCycleError.
func IsDependencyCycle(err error) bool {
	var ce *DependencyCycleError
	return errors.As(err, &ce)
}
