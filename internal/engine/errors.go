package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/schemasync/internal/resolve"
)

// Op identifies the remote operation a SyncError came from.
type Op string

const (
	OpList   Op = "list"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// SyncError reports a failure while reconciling one field (or, for OpList,
// the whole item). Operations applied before the failure are not rolled
// back.
type SyncError struct {
	// ItemName is the item being synced.
	ItemName string

	// Op is the failed operation.
	Op Op

	// FieldAPIKey is empty for OpList.
	FieldAPIKey string

	// FieldID is the remote field id, when one exists.
	FieldID string

	Cause error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	switch {
	case e.FieldAPIKey == "":
		return fmt.Sprintf("sync %s: %s fields: %v", e.ItemName, e.Op, e.Cause)
	case e.FieldID != "":
		return fmt.Sprintf("sync %s: %s field %s (id=%s): %v", e.ItemName, e.Op, e.FieldAPIKey, e.FieldID, e.Cause)
	default:
		return fmt.Sprintf("sync %s: %s field %s: %v", e.ItemName, e.Op, e.FieldAPIKey, e.Cause)
	}
}

func (e *SyncError) Unwrap() error {
	return e.Cause
}

// IsSyncError returns true if err wraps a SyncError.
func IsSyncError(err error) bool {
	var se *SyncError
	return errors.As(err, &se)
}

// IsCircularReference returns true if err wraps a circular field reference.
func IsCircularReference(err error) bool {
	return resolve.IsCircularReference(err)
}

// IsUnresolvedReference returns true if err wraps a reference whose target
// did not exist when it was resolved.
func IsUnresolvedReference(err error) bool {
	var ue *resolve.UnresolvedReferenceError
	return errors.As(err, &ue)
}
