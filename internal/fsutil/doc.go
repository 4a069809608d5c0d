// Package fsutil provides file system helpers shared by the builder, the
// state store and the repository synchronizer.
package fsutil
