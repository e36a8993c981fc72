// Package atomicfile publishes files through a temporary sibling and a rename.
package atomicfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/verte-zerg/thermopack/internal/model"
)

// Write streams fill into a temporary file next to path and renames it onto
// path once fill, flush, sync and close all succeed. Readers of path see the
// previous content or the complete new content, never a partial file. It
// returns the number of bytes published.
func Write(path string, fill func(w io.Writer) error) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("%w: failed to create %s: %v", model.ErrIOFailure, dir, err)
	}
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create temp file: %v", model.ErrIOFailure, err)
	}
	tmpPath := tmpFile.Name()
	published := false
	defer func() {
		if published {
			return
		}
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	counter := &countingWriter{w: tmpFile}
	writer := bufio.NewWriter(counter)
	if err := fill(writer); err != nil {
		return 0, err
	}
	if err := writer.Flush(); err != nil {
		return 0, fmt.Errorf("%w: failed to flush %s: %v", model.ErrIOFailure, path, err)
	}
	if err := tmpFile.Sync(); err != nil {
		return 0, fmt.Errorf("%w: failed to sync %s: %v", model.ErrIOFailure, path, err)
	}
	if err := tmpFile.Close(); err != nil {
		return 0, fmt.Errorf("%w: failed to close %s: %v", model.ErrIOFailure, path, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return 0, fmt.Errorf("%w: failed to chmod %s: %v", model.ErrIOFailure, path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("%w: failed to publish %s: %v", model.ErrIOFailure, path, err)
	}
	published = true
	return counter.n, nil
}

// WriteBytes publishes data at path.
func WriteBytes(path string, data []byte) (int64, error) {
	return Write(path, func(w io.Writer) error {
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("%w: %v", model.ErrIOFailure, err)
		}
		return nil
	})
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
