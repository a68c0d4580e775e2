// Package idgen wraps the UUID generator used for message and snapshot
// identifiers so that it can be stubbed in tests. Identifiers are opaque
// strings.
package idgen
