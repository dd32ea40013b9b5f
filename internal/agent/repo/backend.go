// Package repo holds the storage media behind the memory store. Every backend
// persists opaque JSON records addressed by kind and id.
package repo

import (
	"context"
	"errors"
	"strings"
)

// Kind is the record namespace.
type Kind string

const (
	KindSession Kind = "sessions"
	KindUser    Kind = "users"
)

// ErrEmptyID is returned for blank record ids.
var ErrEmptyID = errors.New("empty record id")

// Backend is a key-value medium for JSON records.
// Get returns an error matching errx.ErrNotFound when the record is absent.
type Backend interface {
	Get(ctx context.Context, kind Kind, id string) ([]byte, error)
	Put(ctx context.Context, kind Kind, id string, body []byte) error
	List(ctx context.Context, kind Kind) ([]string, error)
	Close() error
}

func checkID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyID
	}
	return nil
}
