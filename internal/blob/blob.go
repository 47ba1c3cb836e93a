// Package blob stores raw artefacts (archived mail, uploaded sheet photos,
// exported workbooks) behind one small interface with fs, s3 and memory
// drivers.
package blob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quickestimate/internal/config"
)

type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

var ErrNotFound = errors.New("blob: not found")

type Info struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Store is a flat key/value object store. Put replaces an existing key.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (Info, error)
	Get(ctx context.Context, key string) (Info, []byte, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// Open builds the store selected by BLOB_DRIVER.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	driver := Driver(cfg.BlobDriver)
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.BlobFSRoot)
	case DriverS3:
		return NewS3(ctx, S3Config{
			Bucket:          cfg.BlobS3Bucket,
			Region:          cfg.BlobS3Region,
			Endpoint:        cfg.BlobS3Endpoint,
			AccessKeyID:     cfg.BlobS3AccessKeyID,
			SecretAccessKey: cfg.BlobS3SecretAccessKey,
			PathStyle:       cfg.BlobS3PathStyle,
		})
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
