// Package ir provides the payload value model shared by every schemasync
// package.
//
// Item and field bodies, validators and appearance settings are all built
// from the sealed IRValue variants defined here. The same values are sent to
// the remote schema service (after reference resolution) and fed to
// MarshalCanonical for fingerprinting, so a payload has exactly one
// serialized identity.
//
// Key constraints:
//   - No float types; numbers are int64 so canonical output is stable
//   - Reference is the only deferred variant; it serializes canonically
//     through its static description and must be resolved before it can be
//     sent anywhere
//   - ir imports nothing internal
package ir
