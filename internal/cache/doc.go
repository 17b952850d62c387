// Package cache reuses populated work directories keyed by archive fingerprint.
//
// The fingerprint covers archive path, size and modification time only; two
// rebuilds inside one timestamp tick with equal size share a key. Old
// fingerprints are never purged here, and concurrent processes on one
// fingerprint are not locked against each other.
package cache
