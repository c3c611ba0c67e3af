// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the task pipeline, so dispatchers and workers depend only on the
// operations they need and never on a specific database technology.
package store
