// Package storage provides utilities shared across storage adapter
// implementations, including sentinel errors and the ordering rules every
// adapter follows.
//
// Adapters (memory, postgres, sqlite) implement snapshot.Store and
// exercise.GenerationStore, defined next to their consumers in pkg/snapshot
// and pkg/exercise. This package contains only shared types and helpers,
// not the interfaces themselves.
package storage
