// Package fileutil reads size-limited policy and context inputs and writes
// reports atomically.
package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
)

// Stdin is the path that selects standard input in ReadInput.
const Stdin = "-"

type tempFile interface {
	Name() string
	Chmod(os.FileMode) error
	Write([]byte) (int, error)
	Sync() error
	Close() error
}

type fsOps struct {
	createTemp func(dir, pattern string) (tempFile, error)
	rename     func(oldpath, newpath string) error
	remove     func(path string) error
}

func defaultFSOps() fsOps {
	return fsOps{
		createTemp: func(dir, pattern string) (tempFile, error) {
			return os.CreateTemp(dir, pattern)
		},
		rename: os.Rename,
		remove: os.Remove,
	}
}

// ReadInput reads path, or stdin when path is "-", up to maxSize bytes.
func ReadInput(path string, stdin io.Reader, maxSize int64) ([]byte, error) {
	const op = "fileutil.ReadInput"

	if path == Stdin {
		if stdin == nil {
			return nil, dekeerrors.IO(op, "standard input is not available")
		}
		return readLimited(op, "standard input", stdin, maxSize)
	}

	data, err := ReadFileLimited(path, maxSize)
	if err != nil {
		return nil, dekeerrors.IOWrap(err, op, "read "+path)
	}
	return data, nil
}

// ReadFileLimited reads a file up to maxSize bytes.
// Returns an error if the file exceeds the maximum size.
func ReadFileLimited(path string, maxSize int64) ([]byte, error) {
	f, err := os.Open(path) // #nosec G304 -- caller is responsible for path validation
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxSize {
		return nil, fmt.Errorf("file size %d exceeds maximum allowed size %d", info.Size(), maxSize)
	}

	return readLimited("fileutil.ReadFileLimited", path, f, maxSize)
}

func readLimited(op, name string, r io.Reader, maxSize int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, dekeerrors.IOWrap(err, op, "read "+name)
	}
	if int64(len(data)) > maxSize {
		return nil, dekeerrors.IO(op, fmt.Sprintf("%s exceeds maximum allowed size %d", name, maxSize))
	}
	return data, nil
}

// WriteOutput writes data to path atomically, or to stdout when path is "-"
// or empty.
func WriteOutput(path string, stdout io.Writer, data []byte) error {
	if path == "" || path == Stdin {
		if _, err := stdout.Write(data); err != nil {
			return dekeerrors.IOWrap(err, "fileutil.WriteOutput", "write output")
		}
		return nil
	}
	if err := AtomicWriteFile(path, data, 0o644); err != nil {
		return dekeerrors.IOWrap(err, "fileutil.WriteOutput", "write "+path)
	}
	return nil
}

// AtomicWriteFile writes data to a temp file and renames it over path, so
// readers never see a partially written file.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return atomicWriteFile(path, data, perm, defaultFSOps())
}

func atomicWriteFile(path string, data []byte, perm os.FileMode, ops fsOps) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	// Same directory, so the rename stays on one filesystem.
	tmpFile, err := ops.createTemp(dir, base+".tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			_ = tmpFile.Close()
			_ = ops.remove(tmpPath)
		}
	}()

	if err := tmpFile.Chmod(perm); err != nil {
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	tmpFile = nil

	if err := ops.rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
