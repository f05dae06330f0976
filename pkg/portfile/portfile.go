// Package portfile implements the filesystem fallback announcement channel.
//
// A worker writes its port, as a decimal UTF-8 string, to a well-known file in the
// system temp directory. A reader that finds the file missing, empty or half-written
// reports domain.ErrPortNotKnown rather than failing.
package portfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aretw0/sidecar/pkg/domain"
)

// DefaultFileName is the fixed name of the port file inside the temp directory.
const DefaultFileName = "tauri-sidecar.port"

// DefaultPath returns the platform temp directory joined with DefaultFileName.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), DefaultFileName)
}

// File implements ports.RecordStore on top of a single file.
type File struct {
	path string
}

// New creates a File for path. An empty path selects DefaultPath().
func New(path string) *File {
	if path == "" {
		path = DefaultPath()
	}
	return &File{path: path}
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

// Publish writes rec.Port. The value is written to a sibling temp file and renamed
// into place so readers never observe a partial value on platforms with atomic rename.
func (f *File) Publish(ctx context.Context, rec domain.PortRecord) error {
	if err := domain.ValidatePort(rec.Port); err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("%w: create temp port file: %v", domain.ErrAnnouncementFailure, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(strconv.Itoa(rec.Port)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write port file: %v", domain.ErrAnnouncementFailure, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close port file: %v", domain.ErrAnnouncementFailure, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: chmod port file: %v", domain.ErrAnnouncementFailure, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename port file: %v", domain.ErrAnnouncementFailure, err)
	}
	return nil
}

// ReadRecord returns the port and the file's modification time as WrittenAt.
func (f *File) ReadRecord(ctx context.Context) (domain.PortRecord, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.PortRecord{}, domain.ErrPortNotKnown
		}
		return domain.PortRecord{}, fmt.Errorf("stat port file: %w", err)
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.PortRecord{}, domain.ErrPortNotKnown
		}
		return domain.PortRecord{}, fmt.Errorf("read port file: %w", err)
	}

	port, err := domain.ParsePort(string(data))
	if err != nil {
		// Possibly caught mid-write by a writer without atomic rename.
		return domain.PortRecord{}, fmt.Errorf("%w: %v", domain.ErrPortNotKnown, err)
	}

	return domain.PortRecord{
		Port:      port,
		WrittenAt: info.ModTime(),
		Source:    "file",
	}, nil
}

// Clear removes the file if it still contains port.
func (f *File) Clear(ctx context.Context, port int) error {
	rec, err := f.ReadRecord(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrPortNotKnown) {
			return nil
		}
		return err
	}
	if rec.Port != port {
		return nil
	}
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove port file: %w", err)
	}
	return nil
}
