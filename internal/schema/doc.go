// Package schema defines the desired-state value objects: item types
// (models and blocks) and their fields and validators.
//
// Everything here is pure data shaping. Builders collect ValidationErrors
// and report them from Build so a declaration fails before any remote call.
// Validators may embed ir.Reference values where a remote id is not known
// at declaration time; resolution happens in the engine.
package schema
