package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/forest6511/skm/internal/remote"
)

// archivePerm is the mode of archive files written locally.
const archivePerm = 0o600

// objectStore is the part of remote.Store used by the CLI.
type objectStore interface {
	Put(ctx context.Context, loc remote.Location, data []byte) error
	Get(ctx context.Context, loc remote.Location) ([]byte, error)
}

// newObjectStore is replaced in tests.
var newObjectStore = func(ctx context.Context) (objectStore, error) {
	return remote.NewS3Store(ctx, remote.Options{
		Region:    cfg.S3.Region,
		Endpoint:  cfg.S3.Endpoint,
		PathStyle: cfg.S3.PathStyle,
	})
}

// writeArchive stores data at a local path or an s3:// location. Local files
// are written with mode 0600 and are not replaced unless force is set.
func writeArchive(ctx context.Context, location string, data []byte, force bool) error {
	if remote.IsRemote(location) {
		loc, err := remote.ParseLocation(location)
		if err != nil {
			return err
		}
		store, err := newObjectStore(ctx)
		if err != nil {
			return err
		}
		return store.Put(ctx, loc, data)
	}

	if !force {
		if _, err := os.Stat(location); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", location)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if dir := filepath.Dir(location); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(location, data, archivePerm); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(location, archivePerm); err != nil {
		return fmt.Errorf("failed to set archive permissions: %w", err)
	}
	return nil
}

// readArchive loads an archive from a local path or an s3:// location.
func readArchive(ctx context.Context, location string) ([]byte, error) {
	if remote.IsRemote(location) {
		loc, err := remote.ParseLocation(location)
		if err != nil {
			return nil, err
		}
		store, err := newObjectStore(ctx)
		if err != nil {
			return nil, err
		}
		return store.Get(ctx, loc)
	}

	info, err := os.Stat(location)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	if info.Size() > remote.MaxObjectSize {
		return nil, fmt.Errorf("%s is too large to be an archive", location)
	}
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	return data, nil
}
