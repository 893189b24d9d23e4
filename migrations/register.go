package migrations

import (
	"io/fs"
	"strings"
	"sync"
)

// CoreSource names the referral tables shipped with this module.
const CoreSource = "referrals"

// Source is a named migration filesystem laid out as <dialect>/<version>_<name>.{up,down}.sql.
type Source struct {
	Name string
	FS   fs.FS
}

var (
	mu      sync.RWMutex
	sources []Source
)

// Register adds a migration source. Registering a name twice replaces the
// earlier filesystem so a host can override the core referral tables.
func Register(name string, fsys fs.FS) {
	name = strings.TrimSpace(name)
	if fsys == nil || name == "" {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	for i := range sources {
		if sources[i].Name == name {
			sources[i].FS = fsys
			return
		}
	}
	sources = append(sources, Source{Name: name, FS: fsys})
}

// Sources returns the registered sources in registration order.
func Sources() []Source {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Source, len(sources))
	copy(out, sources)
	return out
}

// Filesystems returns the registered filesystems in registration order.
func Filesystems() []fs.FS {
	registered := Sources()
	out := make([]fs.FS, 0, len(registered))
	for _, source := range registered {
		out = append(out, source.FS)
	}
	return out
}
