package tempfile

import (
	"context"
	"slices"
	"sync"
)

// Scope tracks the allocations made on behalf of one invocation so they can
// be released together when it ends. It implements udo.Scratch.
type Scope struct {
	ctx   context.Context
	mgr   *Manager
	root  string
	mu    sync.Mutex
	paths []string
}

// Scope binds a new allocation scope to root.
func (m *Manager) Scope(ctx context.Context, root string) *Scope {
	return &Scope{ctx: ctx, mgr: m, root: root}
}

// Root returns the scratch root the scope allocates under.
func (s *Scope) Root() string { return s.root }

// Allocate reserves a path under the scope's root.
func (s *Scope) Allocate(ext string) (string, error) {
	path, err := s.mgr.Allocate(s.root, ext)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.paths = append(s.paths, path)
	s.mu.Unlock()
	return path, nil
}

// Release frees one path early. Releasing a path twice is harmless.
func (s *Scope) Release(path string) {
	s.mu.Lock()
	s.paths = slices.DeleteFunc(s.paths, func(p string) bool { return p == path })
	s.mu.Unlock()
	s.mgr.Release(s.ctx, path)
}

// Paths returns the paths still held by the scope.
func (s *Scope) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.paths)
}

// ReleaseAllExcept releases every held path not listed in keep. Kept paths
// leave the scope and become the caller's to clean up.
func (s *Scope) ReleaseAllExcept(keep ...string) {
	s.mu.Lock()
	held := s.paths
	s.paths = nil
	s.mu.Unlock()

	for _, p := range held {
		if slices.Contains(keep, p) {
			s.mgr.forget(p)
			continue
		}
		s.mgr.Release(s.ctx, p)
	}
}

// forget drops path from the live set without deleting it.
func (m *Manager) forget(path string) {
	m.mu.Lock()
	delete(m.live, path)
	m.mu.Unlock()
}
