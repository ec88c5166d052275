// Package engine reconciles the desired fields of one item type against the
// fields the remote service already has.
//
// A sync runs in three phases:
//
//  1. Create. Fields missing remotely are created one at a time in declared
//     order. Each creation resolves references against the snapshot of
//     fields that exist at that moment, then adds the new field to it, so a
//     field may reference one declared earlier but not one declared later.
//  2. Update. With Policy.OverwriteExisting, fields present on both sides
//     are updated concurrently against the final snapshot.
//  3. Delete. With Policy.OverwriteExisting and without Policy.SkipDeletion,
//     remote fields with no desired counterpart are destroyed concurrently.
//
// Before anything is written, the pending creations are checked for
// reference cycles. A cycle fails the sync with zero remote mutations.
//
// Failures are returned as *SyncError values; concurrent failures are all
// collected. Nothing is retried or rolled back here: a rerun diffs against
// whatever was applied and continues from there.
package engine
