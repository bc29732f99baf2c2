// Package storage provides the key/value persistence used for requests, transaction
// records, accounts and encrypted keystores.
package storage

import (
	"github.com/pkg/errors"
)

// ErrKeyNotFound is returned by Get when the key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix in key order.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

const (
	DriverBadger   = "badger"
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Options selects and configures a storage driver.
type Options struct {
	Driver string
	Path   string
	DSN    string
}

// Open returns the DB for the configured driver.
//
//nolint:ireturn
func Open(opts Options) (DB, error) {
	switch opts.Driver {
	case DriverBadger:
		return NewBadger(opts.Path)
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverPostgres:
		return NewPostgres(opts.DSN)
	default:
		return nil, errors.Errorf("unknown storage driver %q", opts.Driver)
	}
}
