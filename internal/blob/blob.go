// Package blob defines the storage targets that backups are written to and
// restored from: the local filesystem and S3 compatible object stores.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	// DriverFilesystem represents the local filesystem implementation.
	DriverFilesystem Driver = "fs"
	// DriverS3 represents an S3 / MinIO compatible implementation.
	DriverS3 Driver = "s3"
)

// Info describes a stored blob.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Store is a minimal put/get abstraction. Put overwrites an existing blob.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) (Info, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Driver() Driver
}

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("blob: not found")

// Target is a parsed backup location
type Target struct {
	Driver Driver
	Bucket string // s3 only
	Key    string
}

// String renders the target back into its location form
func (t Target) String() string {
	if t.Driver == DriverS3 {
		return "s3://" + t.Bucket + "/" + t.Key
	}
	return t.Key
}

// ParseTarget splits a location into a Target. "s3://bucket/key" selects
// the S3 driver; anything else is a local filesystem path.
func ParseTarget(location string) (Target, error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		if location == "" {
			return Target{}, fmt.Errorf("empty location")
		}
		return Target{Driver: DriverFilesystem, Key: location}, nil
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return Target{}, fmt.Errorf("invalid s3 location %q: want s3://bucket/key", location)
	}
	return Target{Driver: DriverS3, Bucket: bucket, Key: key}, nil
}
