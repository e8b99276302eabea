// Package lifecycle coordinates graceful shutdown of long-lived resources:
// the HTTP server, the job runner, and the database pool all register here
// and are closed in reverse order on exit.
package lifecycle

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"
)

// Manager closes registered resources LIFO, so dependents shut down before
// what they depend on.
type Manager struct {
	mu      sync.Mutex
	entries []entry
}

type entry struct {
	name   string
	closer io.Closer
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a resource to close on shutdown.
func (m *Manager) Register(name string, closer io.Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry{name: name, closer: closer})
}

// RegisterFunc registers a plain cleanup function.
func (m *Manager) RegisterFunc(name string, fn func() error) {
	m.Register(name, closerFunc(fn))
}

// Close closes every registered resource in reverse registration order. A
// failure does not stop the remaining closes; all failures are joined into
// the returned error.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if err := e.closer.Close(); err != nil {
			log.Error().Err(err).Str("resource", e.name).Msg("resource close failed")
			errs = append(errs, fmt.Errorf("close %s: %w", e.name, err))
		}
	}
	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
