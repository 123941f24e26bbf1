// Package diag provides the structured diagnostic stream shared by every
// simfs component. The façade and managers log here instead of returning
// free-form text; callers still get a *fserrors.Error back.
package diag

import (
	"log/slog"
	"os"
	"sync"
)

var (
	mu     sync.Mutex
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
)

// SetLogger replaces the package-level logger, e.g. to redirect tests to a
// buffer or to raise the level for a stress run.
func SetLogger(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// Logger returns the current package-level logger.
func Logger() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// WithComponent returns a logger tagged with the emitting component, e.g.
// "blockdev", "inode", "fsys", "dispatch", "stress".
func WithComponent(name string) *slog.Logger {
	return Logger().With("component", name)
}
