//go:build unix

package dlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"cachetier/internal/metrics"
)

const (
	backendFile    = "file"
	lockFileSuffix = ".lock"
)

// errBusy means another handle holds the flock; errStale means the locked
// file was unlinked by a releasing holder. Both are retried.
var (
	errBusy  = errors.New("lock file busy")
	errStale = errors.New("lock file replaced")
)

// File is a Locker backed by exclusive flocks on files in a directory.
// The directory may live on a shared filesystem that honours flock.
type File struct {
	dir  string
	opts options
}

// NewFile creates the lock directory if needed.
func NewFile(dir string, opts ...Option) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrFilesystem, dir, err)
	}
	return &File{dir: dir, opts: buildOptions(opts)}, nil
}

// Path returns the lock file used for key.
func (f *File) Path(key string) string {
	return filepath.Join(f.dir, SanitizeFileName(key)+lockFileSuffix)
}

// Acquire polls for the flock on key's file every retry delay until it is
// held or ctx is done.
func (f *File) Acquire(ctx context.Context, key string) (Handle, error) {
	start := time.Now()
	path := f.Path(key)

	for {
		if ctx.Err() != nil {
			f.opts.metrics.LockAcquire(backendFile, metrics.LockCanceled, time.Since(start))
			return nil, canceled(ctx)
		}

		fh, err := tryFlock(path)
		switch {
		case err == nil:
			f.opts.metrics.LockAcquire(backendFile, metrics.LockAcquired, time.Since(start))
			f.opts.logger.WithFields(logrus.Fields{"backend": backendFile, "path": path}).Debug("lock acquired")
			return &fileHandle{fh: fh, path: path, logger: f.opts.logger}, nil
		case errors.Is(err, errStale):
			continue
		case errors.Is(err, errBusy):
		default:
			f.opts.metrics.LockAcquire(backendFile, metrics.LockError, time.Since(start))
			return nil, fmt.Errorf("%w: %s: %w", ErrFilesystem, path, err)
		}

		if err := sleep(ctx, f.opts.retryDelay); err != nil {
			f.opts.metrics.LockAcquire(backendFile, metrics.LockCanceled, time.Since(start))
			return nil, err
		}
	}
}

// tryFlock opens path and takes a non-blocking exclusive flock on it. The
// returned file is locked and is still the file named by path.
func tryFlock(path string) (*os.File, error) {
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	fd := int(fh.Fd())

	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		fh.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, errBusy
		}
		return nil, err
	}

	// A releasing holder unlinks the file before closing it. If that
	// happened between our open and our flock, we locked an orphan inode.
	var held, named unix.Stat_t
	if err := unix.Fstat(fd, &held); err != nil {
		fh.Close()
		return nil, err
	}
	if err := unix.Stat(path, &named); err != nil {
		fh.Close()
		if errors.Is(err, unix.ENOENT) {
			return nil, errStale
		}
		return nil, err
	}
	if held.Dev != named.Dev || held.Ino != named.Ino {
		fh.Close()
		return nil, errStale
	}
	return fh, nil
}

// SanitizeFileName replaces characters that are not valid in a file name.
func SanitizeFileName(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return '_'
		case strings.ContainsRune(`/\<>:"|?*`, r):
			return '_'
		}
		return r
	}, key)
}

type fileHandle struct {
	fh     *os.File
	path   string
	logger logrus.FieldLogger
	once   sync.Once
}

// Release removes the lock file while still holding the flock, then closes
// the handle. Failure to remove the file is ignored: exclusion comes from the
// flock, not from the file existing.
func (h *fileHandle) Release() error {
	var err error
	h.once.Do(func() {
		if rerr := os.Remove(h.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			h.logger.WithError(rerr).WithField("path", h.path).Debug("lock file not removed")
		}
		if cerr := h.fh.Close(); cerr != nil {
			err = fmt.Errorf("%w: close %s: %w", ErrFilesystem, h.path, cerr)
		}
	})
	return err
}
