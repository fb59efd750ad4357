package synth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/PabloGalante/travel-agent/internal/domain"
)

// Workspace is the private scratch directory of one turn.
type Workspace struct {
	dir  string
	once sync.Once
	err  error
}

// NewWorkspace creates a unique directory under base (os.TempDir() when empty).
// Concurrent turns on the same session never share a directory.
func NewWorkspace(base string, sessionID domain.SessionID) (*Workspace, error) {
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace base: %w", err)
	}
	dir, err := os.MkdirTemp(base, sanitize(string(sessionID))+"-*")
	if err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

func (w *Workspace) Dir() string { return w.dir }

// Path returns name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, filepath.Base(name))
}

// Cleanup removes the workspace and everything in it. Only the first call
// does any work; later calls return the first result.
func (w *Workspace) Cleanup() error {
	w.once.Do(func() {
		w.err = os.RemoveAll(w.dir)
	})
	return w.err
}

// sanitize keeps session IDs from escaping the base directory.
func sanitize(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= 64 {
			break
		}
	}
	if b.Len() == 0 {
		return "session"
	}
	return b.String()
}
