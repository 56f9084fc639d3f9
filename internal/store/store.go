// Package store talks to the remote object store assets are published to.
package store

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"
)

var ErrInvalidKey = errors.New("invalid key")

// Store is the part of an object store the sync pipeline relies on.
type Store interface {
	// Exists reports whether an object is stored under key. A missing object
	// is (false, nil); every other failure is returned as an error.
	Exists(ctx context.Context, key string) (bool, error)

	// Put writes an object, replacing any existing one under the same key.
	Put(ctx context.Context, params *PutParams) (*PutResult, error)
}

type PutParams struct {
	Key          string
	Body         io.Reader
	Size         int64
	ContentType  string
	CacheControl string
}

type PutResult struct {
	Key     string
	ETag    string
	Version string
	Size    int64
}

// ValidateKey checks that key is usable both as an S3 key and as a relative
// slash separated path.
func ValidateKey(key string) bool {
	if len(key) == 0 || len(key) > 1024 {
		return false
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return utf8.ValidString(key)
}
