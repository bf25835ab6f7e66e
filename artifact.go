package rknnconvert

import (
	"context"
	"fmt"
	"github.com/viant/afs"
	"os"
)

// EnsureDir creates dir if it does not already exist. Calling it on an
// existing directory is a no-op and leaves its contents untouched.
func EnsureDir(ctx context.Context, fs afs.Service, dir string) error {

	exists, err := fs.Exists(ctx, dir)

	if err != nil {
		return fmt.Errorf("error checking directory %s: %w", dir, err)
	}

	if exists {
		return nil
	}

	if err := fs.Create(ctx, dir, os.ModePerm, true); err != nil {
		return fmt.Errorf("error creating directory %s: %w", dir, err)
	}

	return nil
}
