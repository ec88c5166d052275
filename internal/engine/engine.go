package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/schemasync/internal/ir"
	"github.com/roach88/schemasync/internal/remote"
	"github.com/roach88/schemasync/internal/resolve"
	"github.com/roach88/schemasync/internal/schema"
)

// FieldService is the subset of remote.Service the engine uses.
type FieldService interface {
	ListFields(ctx context.Context, itemTypeID string) ([]remote.Field, error)
	CreateField(ctx context.Context, itemTypeID string, body ir.IRObject) (remote.Field, error)
	UpdateField(ctx context.Context, fieldID string, body ir.IRObject) (remote.Field, error)
	DestroyField(ctx context.Context, fieldID string) error
}

// Policy controls which mutations a sync may perform.
type Policy struct {
	// OverwriteExisting allows updating and deleting fields that already
	// exist remotely. Without it only missing fields are created.
	OverwriteExisting bool

	// SkipDeletion keeps remote fields that are no longer declared.
	// Only meaningful with OverwriteExisting.
	SkipDeletion bool
}

// Engine syncs item fields. Safe for concurrent use across items.
type Engine struct {
	fields FieldService
	policy Policy
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy sets the mutation policy. The default creates only.
func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine over fields.
func New(fields FieldService, opts ...Option) *Engine {
	e := &Engine{
		fields: fields,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Changes is the partition of desired fields against remote fields.
type Changes struct {
	// Create holds desired fields missing remotely, in declared order.
	Create []schema.FieldDefinition

	// Update holds desired fields that exist remotely, in declared order.
	Update []schema.FieldDefinition

	// Delete holds remote fields with no desired counterpart, in remote
	// order.
	Delete []remote.Field
}

// String renders c as "+create ~update -delete" counts.
func (c Changes) String() string {
	return fmt.Sprintf("+%d ~%d -%d", len(c.Create), len(c.Update), len(c.Delete))
}

// Diff partitions desired against existing by api key. It ignores policy.
func Diff(existing []remote.Field, desired []schema.FieldDefinition) Changes {
	remoteKeys := make(map[string]bool, len(existing))
	for _, f := range existing {
		remoteKeys[f.APIKey] = true
	}

	var c Changes
	desiredKeys := make(map[string]bool, len(desired))
	for _, f := range desired {
		desiredKeys[f.APIKey] = true
		if remoteKeys[f.APIKey] {
			c.Update = append(c.Update, f)
		} else {
			c.Create = append(c.Create, f)
		}
	}
	for _, f := range existing {
		if !desiredKeys[f.APIKey] {
			c.Delete = append(c.Delete, f)
		}
	}
	return c
}

// Sync reconciles the fields of the remote item type itemRemoteID with
// desired and returns itemRemoteID. itemName only labels errors and logs.
//
// desired must not repeat an api key.
func (e *Engine) Sync(ctx context.Context, itemName, itemRemoteID string, desired []schema.FieldDefinition) (string, error) {
	if err := checkUnique(itemName, desired); err != nil {
		return "", err
	}

	existing, err := e.fields.ListFields(ctx, itemRemoteID)
	if err != nil {
		return "", &SyncError{ItemName: itemName, Op: OpList, Cause: err}
	}

	snap := ir.NewSnapshot()
	remoteByKey := make(map[string]remote.Field, len(existing))
	for _, f := range existing {
		snap = snap.With(f.APIKey, f.ID)
		remoteByKey[f.APIKey] = f
	}

	changes := Diff(existing, desired)
	res := resolve.New()

	snap, err = e.create(ctx, itemName, itemRemoteID, changes.Create, snap, res)
	if err != nil {
		return "", err
	}

	if !e.policy.OverwriteExisting {
		e.logger.Debug("sync complete",
			"item", itemName,
			"created", len(changes.Create),
			"overwrite", false,
		)
		return itemRemoteID, nil
	}

	var result *multierror.Error
	result = multierror.Append(result, e.update(ctx, itemName, changes.Update, remoteByKey, snap, res))
	if !e.policy.SkipDeletion {
		result = multierror.Append(result, e.destroy(ctx, itemName, changes.Delete))
	}
	if err := result.ErrorOrNil(); err != nil {
		return "", err
	}

	e.logger.Debug("sync complete",
		"item", itemName,
		"created", len(changes.Create),
		"updated", len(changes.Update),
		"deleted", len(changes.Delete),
		"skip_deletion", e.policy.SkipDeletion,
	)
	return itemRemoteID, nil
}

func checkUnique(itemName string, desired []schema.FieldDefinition) error {
	seen := make(map[string]bool, len(desired))
	for _, f := range desired {
		if seen[f.APIKey] {
			return &schema.ValidationError{Item: itemName, Field: f.APIKey, Message: "duplicate field api key"}
		}
		seen[f.APIKey] = true
	}
	return nil
}

// create creates fields sequentially and returns the grown snapshot.
//
// Every pending field is checked for cycles first, so a cycle anywhere in
// the batch fails before the first write.
func (e *Engine) create(
	ctx context.Context,
	itemName, itemRemoteID string,
	toCreate []schema.FieldDefinition,
	snap ir.Snapshot,
	res *resolve.Resolver,
) (ir.Snapshot, error) {
	pending := make(map[string][]string, len(toCreate))
	for _, f := range toCreate {
		pending[f.APIKey] = f.References()
	}
	for _, f := range toCreate {
		if err := resolve.DetectCycle(f.APIKey, pending, snap); err != nil {
			return snap, &SyncError{ItemName: itemName, Op: OpCreate, FieldAPIKey: f.APIKey, Cause: err}
		}
	}

	for _, f := range toCreate {
		body, err := res.ResolveObject(f.APIKey, f.Body(), snap)
		if err != nil {
			return snap, &SyncError{ItemName: itemName, Op: OpCreate, FieldAPIKey: f.APIKey, Cause: err}
		}

		created, err := e.fields.CreateField(ctx, itemRemoteID, body)
		if err != nil {
			return snap, &SyncError{ItemName: itemName, Op: OpCreate, FieldAPIKey: f.APIKey, Cause: err}
		}

		e.logger.Debug("field created", "item", itemName, "field", f.APIKey, "id", created.ID)
		snap = snap.With(f.APIKey, created.ID)
	}
	return snap, nil
}

// update updates fields concurrently against the final snapshot. Every
// failure is collected; none cancels the others.
func (e *Engine) update(
	ctx context.Context,
	itemName string,
	toUpdate []schema.FieldDefinition,
	remoteByKey map[string]remote.Field,
	snap ir.Snapshot,
	res *resolve.Resolver,
) error {
	var (
		mu     sync.Mutex
		result *multierror.Error
		wg     sync.WaitGroup
	)

	for _, f := range toUpdate {
		id := remoteByKey[f.APIKey].ID
		forked := res.Fork()

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := e.updateOne(ctx, itemName, f, id, snap, forked)
			if err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return result.ErrorOrNil()
}

func (e *Engine) updateOne(
	ctx context.Context,
	itemName string,
	f schema.FieldDefinition,
	id string,
	snap ir.Snapshot,
	res *resolve.Resolver,
) error {
	body, err := res.ResolveObject(f.APIKey, f.Body(), snap)
	if err != nil {
		return &SyncError{ItemName: itemName, Op: OpUpdate, FieldAPIKey: f.APIKey, FieldID: id, Cause: err}
	}
	if _, err := e.fields.UpdateField(ctx, id, body); err != nil {
		return &SyncError{ItemName: itemName, Op: OpUpdate, FieldAPIKey: f.APIKey, FieldID: id, Cause: err}
	}
	e.logger.Debug("field updated", "item", itemName, "field", f.APIKey, "id", id)
	return nil
}

// destroy deletes fields concurrently, collecting every failure.
func (e *Engine) destroy(ctx context.Context, itemName string, toDelete []remote.Field) error {
	var (
		mu     sync.Mutex
		result *multierror.Error
		wg     sync.WaitGroup
	)

	for _, f := range toDelete {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.fields.DestroyField(ctx, f.ID); err != nil {
				mu.Lock()
				result = multierror.Append(result, &SyncError{
					ItemName:    itemName,
					Op:          OpDelete,
					FieldAPIKey: f.APIKey,
					FieldID:     f.ID,
					Cause:       err,
				})
				mu.Unlock()
				return
			}
			e.logger.Debug("field deleted", "item", itemName, "field", f.APIKey, "id", f.ID)
		}()
	}
	wg.Wait()

	return result.ErrorOrNil()
}
