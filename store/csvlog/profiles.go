package csvlog

import (
	"log/slog"
	"sync"

	"github.com/hrygo/fitcoach/store"
)

var profileColumns = map[string]bool{"id": true, "name": true, "age": true, "height": true, "gender": true}

// ProfileTable is the read-only user profile table, loaded once.
type ProfileTable struct {
	file   *File
	logger *slog.Logger

	mu       sync.RWMutex
	profiles map[string]*store.UserProfile
}

func NewProfileTable(path string, logger *slog.Logger) *ProfileTable {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileTable{
		file:   NewFile(path, []string{"id", "name", "age", "height", "gender"}),
		logger: logger,
	}
}

// Reload reads the profile file. A missing file leaves the table empty.
func (t *ProfileTable) Reload() error {
	rows, err := t.file.ReadAll()
	if err != nil {
		return err
	}
	if rows == nil {
		t.logger.Warn("profile table is empty", "path", t.file.Path())
	}

	profiles := make(map[string]*store.UserProfile, len(rows))
	for _, row := range rows {
		p := &store.UserProfile{
			ID:     row["id"],
			Name:   row["name"],
			Age:    row["age"],
			Height: row["height"],
			Gender: row["gender"],
		}
		for k, v := range row {
			if profileColumns[k] {
				continue
			}
			if p.Extra == nil {
				p.Extra = make(map[string]string)
			}
			p.Extra[k] = v
		}
		if _, ok := profiles[p.ID]; !ok {
			profiles[p.ID] = p
		}
	}

	t.mu.Lock()
	t.profiles = profiles
	t.mu.Unlock()
	return nil
}

func (t *ProfileTable) Invalidate() {
	t.mu.Lock()
	t.profiles = nil
	t.mu.Unlock()
}

// Get returns the profile of a user. The first row wins on duplicate ids.
func (t *ProfileTable) Get(id string) (*store.UserProfile, bool) {
	t.mu.RLock()
	loaded := t.profiles != nil
	t.mu.RUnlock()
	if !loaded {
		if err := t.Reload(); err != nil {
			t.logger.Error("failed to load profiles", "error", err)
			return nil, false
		}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.profiles[id]
	return p, ok
}
