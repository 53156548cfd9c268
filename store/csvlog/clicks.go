package csvlog

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// ErrInvalidSession is returned for session ids that are unsafe as file names.
var ErrInvalidSession = errors.New("invalid session id")

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ClickEvent is one UI interaction reported by the frontend.
type ClickEvent struct {
	SessionID string `json:"session_id"`
	EventType string `json:"event_type"`
	Component string `json:"component"`
}

// ClickLog writes one CSV file per session.
type ClickLog struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	files map[string]*File
}

func NewClickLog(dir string) *ClickLog {
	return &ClickLog{dir: dir, now: time.Now, files: make(map[string]*File)}
}

func (c *ClickLog) Log(ctx context.Context, event ClickEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !sessionIDPattern.MatchString(event.SessionID) {
		return ErrInvalidSession
	}
	return c.file(event.SessionID).Append([]string{
		formatTimestamp(c.now()), Sanitize(event.EventType), Sanitize(event.Component),
	})
}

// Path returns the file of a session.
func (c *ClickLog) Path(sessionID string) string {
	return filepath.Join(c.dir, "clicks_"+sessionID+".csv")
}

func (c *ClickLog) file(sessionID string) *File {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.files[sessionID]
	if !ok {
		f = NewFile(c.Path(sessionID), []string{"timestamp", "event_type", "component"})
		c.files[sessionID] = f
	}
	return f
}
