package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileTrail appends events to a JSON-lines file. Writes are serialized and
// synchronous so an event is durable once Record returns.
type FileTrail struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder

	maxSize int64
	path    string
	now     func() time.Time
}

// FileTrailConfig configures the file trail
type FileTrailConfig struct {
	// Path is the audit log file. Parent directories are created.
	Path string

	// MaxSize rotates the file once it grows past this many bytes.
	// Zero disables rotation.
	MaxSize int64
}

// NewFileTrail opens (or creates) the audit log in append mode.
func NewFileTrail(config FileTrailConfig) (*FileTrail, error) {
	if dir := filepath.Dir(config.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating audit log directory: %w", err)
		}
	}

	t := &FileTrail{
		maxSize: config.MaxSize,
		path:    config.Path,
		now:     time.Now,
	}
	if err := t.open(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *FileTrail) open() error {
	file, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	t.file = file
	t.encoder = json.NewEncoder(file)
	return nil
}

// Record appends the event as one JSON line.
func (t *FileTrail) Record(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = t.now().UTC()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file == nil {
		return fmt.Errorf("audit trail is closed")
	}
	if err := t.rotateIfNeeded(); err != nil {
		return err
	}
	if err := t.encoder.Encode(&event); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// rotateIfNeeded renames the current file aside once it exceeds MaxSize.
// Caller holds the lock.
func (t *FileTrail) rotateIfNeeded() error {
	if t.maxSize <= 0 {
		return nil
	}
	info, err := t.file.Stat()
	if err != nil || info.Size() < t.maxSize {
		return nil
	}

	t.file.Close()
	rotated := fmt.Sprintf("%s.%s", t.path, t.now().UTC().Format("20060102T150405"))
	if err := os.Rename(t.path, rotated); err != nil {
		return fmt.Errorf("rotating audit log: %w", err)
	}
	return t.open()
}

// Close flushes and closes the trail. Record fails afterwards.
func (t *FileTrail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}
