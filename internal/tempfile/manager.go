// Package tempfile allocates collision-free scratch paths for invocations and
// cleans them up again.
//
// Every allocated name embeds a process-wide sequence number together with a
// random UUID, and the file is reserved with O_EXCL on creation. The sequence
// rules out collisions inside one process; the exclusive create rules them out
// between processes sharing a scratch root.
package tempfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vk/udo/internal/ctxlog"
)

// Prefix starts every name the manager hands out; Sweep only touches files
// carrying it.
const Prefix = "udo-"

// maxReserveAttempts bounds retries when an exclusive create hits an
// existing file left by another process.
const maxReserveAttempts = 8

// Manager allocates and releases scratch artifacts. The zero value is not
// usable; call New.
type Manager struct {
	seq  atomic.Uint64
	mu   sync.Mutex
	live map[string]struct{}
}

// New returns an empty manager.
func New() *Manager {
	return &Manager{live: make(map[string]struct{})}
}

// Token returns a fresh identifier that is unique for the life of the
// process and collision-resistant across processes.
func (m *Manager) Token() string {
	n := m.seq.Add(1)
	return uuid.NewString() + "-" + strconv.FormatUint(n, 10)
}

// Allocate reserves a new empty file under root with the given extension and
// returns its path. Root is created when missing.
func (m *Manager) Allocate(root, ext string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", errors.New("tempfile: scratch root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("tempfile: create scratch root %s: %w", root, err)
	}
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")

	var lastErr error
	for range maxReserveAttempts {
		name := Prefix + m.Token()
		if ext != "" {
			name += "." + ext
		}
		path := filepath.Join(root, name)

		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			lastErr = err
			continue
		}
		if err != nil {
			return "", fmt.Errorf("tempfile: reserve %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("tempfile: reserve %s: %w", path, err)
		}

		m.mu.Lock()
		m.live[path] = struct{}{}
		m.mu.Unlock()
		return path, nil
	}
	return "", fmt.Errorf("tempfile: could not reserve a unique name under %s: %w", root, lastErr)
}

// Release deletes path. Failures are logged and swallowed; a missing file is
// not a failure.
func (m *Manager) Release(ctx context.Context, path string) {
	if path == "" {
		return
	}
	m.mu.Lock()
	delete(m.live, path)
	m.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		ctxlog.FromContext(ctx).Warn("Failed to release scratch artifact.", "path", path, "error", err)
		return
	}
	ctxlog.FromContext(ctx).Debug("Released scratch artifact.", "path", path)
}

// Live returns the number of allocations not yet released.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Owns reports whether path is a live allocation of this manager.
func (m *Manager) Owns(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live[path]
	return ok
}

// Sweep removes files under root carrying the manager prefix whose
// modification time is older than olderThan. It is meant for artifacts left
// by abandoned invocations and skips anything this manager still tracks as
// live. It returns how many files were removed.
func (m *Manager) Sweep(ctx context.Context, root string, olderThan time.Duration) (int, error) {
	logger := ctxlog.FromContext(ctx)
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("tempfile: sweep %s: %w", root, err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), Prefix) {
			continue
		}
		path := filepath.Join(root, entry.Name())
		if m.Owns(path) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Sweep could not remove stale artifact.", "path", path, "error", err)
			continue
		}
		removed++
	}
	logger.Debug("Scratch sweep finished.", "root", root, "removed", removed)
	return removed, nil
}
