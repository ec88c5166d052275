// Package remote defines the schema service the engine reconciles against
// and an HTTP adapter for it.
//
// The engine only sees the Service interface. Transient failures are retried
// inside the adapter; everything that reaches the engine is terminal.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/schemasync/internal/ir"
)

// ItemType is a remote item type (model or block).
type ItemType struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	APIKey       string `json:"api_key"`
	ModularBlock bool   `json:"modular_block"`
}

// Field is a remote field.
type Field struct {
	ID         string `json:"id"`
	ItemTypeID string `json:"item_type_id"`
	APIKey     string `json:"api_key"`
	Label      string `json:"label"`
	FieldType  string `json:"field_type"`
	Position   int    `json:"position"`

	// Validators is the payload the field was last written with. Only the
	// memory service fills it. Remote validators are never decoded: they
	// may hold floats, and the engine diffs by api key alone.
	Validators ir.IRObject `json:"-"`
}

// Service is the remote schema service.
type Service interface {
	ListItemTypes(ctx context.Context) ([]ItemType, error)
	FindItemType(ctx context.Context, id string) (ItemType, error)
	CreateItemType(ctx context.Context, body ir.IRObject) (ItemType, error)
	UpdateItemType(ctx context.Context, id string, body ir.IRObject) (ItemType, error)

	ListFields(ctx context.Context, itemTypeID string) ([]Field, error)
	CreateField(ctx context.Context, itemTypeID string, body ir.IRObject) (Field, error)
	UpdateField(ctx context.Context, fieldID string, body ir.IRObject) (Field, error)
	DestroyField(ctx context.Context, fieldID string) error
}

// Error is a terminal failure returned by the remote service.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote error %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("remote error %d: %s", e.Status, e.Message)
}

// ErrNotFound is returned (wrapped in *Error or directly) for missing resources.
var ErrNotFound = errors.New("not found")

// Is makes errors.Is(err, ErrNotFound) true for 404 responses.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTransient reports whether err is a remote failure worth retrying:
// rate limiting and server-side errors.
func IsTransient(err error) bool {
	var re *Error
	if !errors.As(err, &re) {
		return false
	}
	return transientStatus(re.Status)
}

func transientStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
