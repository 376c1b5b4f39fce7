// Package storage implements the durable key/collection store (spec C1)
// that backs job specs, execution records, sessions, configuration, and
// history. Two interchangeable implementations are provided: FileStore (a
// single JSON document per user) and RelationalStore (a database/sql
// backed store with one table per collection).
package storage

import (
	"context"
	"errors"

	"github.com/gwicho38/lsh-sub006/l3"
)

var logger = l3.Get()

// Collection names one of the named record sets the backend persists.
type Collection string

const (
	CollectionJobs       Collection = "jobs"
	CollectionExecutions Collection = "executions"
	CollectionSessions   Collection = "sessions"
	CollectionConfig     Collection = "config"
	CollectionAliases    Collection = "aliases"
	CollectionFunctions  Collection = "functions"
	CollectionHistory    Collection = "history"
)

// ErrNotFound is returned by Get/Delete when no record with the given id
// exists in the collection.
var ErrNotFound = errors.New("storage: not found")

// Backend is the capability set both storage implementations provide:
// upsert/read/delete of typed collections plus ordered listing. Every
// operation returns an explicit error; callers never retry inside a
// Backend implementation (spec §4.1).
type Backend interface {
	// Upsert inserts or replaces the record identified by (collection, id).
	// doc is marshaled with encoding/json; it is the caller's
	// responsibility to pass a value, not a pointer-to-pointer, so the
	// stored snapshot is independent of further caller mutation.
	Upsert(ctx context.Context, collection Collection, id string, doc any) error

	// Get decodes the record identified by (collection, id) into out (a
	// pointer). It reports false, nil if no such record exists.
	Get(ctx context.Context, collection Collection, id string, out any) (bool, error)

	// Delete removes the record identified by (collection, id). It
	// returns ErrNotFound if no such record exists.
	Delete(ctx context.Context, collection Collection, id string) error

	// List decodes every record in collection, in ascending insertion
	// order, into out (a pointer to a slice).
	List(ctx context.Context, collection Collection, out any) error

	// ListRecent decodes the n most recently inserted/updated records in
	// collection, most recent first, into out (a pointer to a slice).
	ListRecent(ctx context.Context, collection Collection, n int, out any) error

	// Close releases any resources held by the backend (file handles,
	// connections).
	Close() error
}
