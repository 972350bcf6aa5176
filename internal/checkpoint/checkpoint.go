// Package checkpoint persists the orchestrator's RunState to a single
// JSON file after every transition, so an interrupted run can resume
// at its last-written phase boundary.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pnupu/auto-updater/internal/domain"
)

// DefaultFileName is the checkpoint file's name in the project root.
const DefaultFileName = ".devpost-upgrade-state.json"

// Record is one entry in the checkpoint file: a thread's state as of
// the last transition it wrote. Older records for the same thread id
// are overwritten in place, not appended.
type Record struct {
	ThreadID  string          `json:"threadId"`
	Phase     domain.Phase    `json:"phase"`
	State     domain.RunState `json:"state"`
	Timestamp time.Time       `json:"timestamp"`
}

// Checkpointer reads and writes the checkpoint file at path.
type Checkpointer struct {
	path string
}

// New returns a Checkpointer backed by the file at path.
func New(path string) *Checkpointer {
	return &Checkpointer{path: path}
}

// NewThreadID generates a fresh thread id for a new run.
func NewThreadID() string {
	return uuid.NewString()
}

// Has reports whether a checkpoint file exists.
func (c *Checkpointer) Has() bool {
	_, err := os.Stat(c.path)
	return err == nil
}

// Load returns the stored RunState for threadID, or false if no
// record for that thread exists.
func (c *Checkpointer) Load(threadID string) (domain.RunState, bool, error) {
	records, err := c.readAll()
	if err != nil {
		return domain.RunState{}, false, err
	}
	for _, r := range records {
		if r.ThreadID == threadID {
			return r.State, true, nil
		}
	}
	return domain.RunState{}, false, nil
}

// LoadLatest returns the most recently written record, used when the
// caller does not already know the thread id (e.g. `--resume` without
// one explicitly supplied).
func (c *Checkpointer) LoadLatest() (Record, bool, error) {
	records, err := c.readAll()
	if err != nil {
		return Record{}, false, err
	}
	if len(records) == 0 {
		return Record{}, false, nil
	}
	latest := records[0]
	for _, r := range records[1:] {
		if r.Timestamp.After(latest.Timestamp) {
			latest = r
		}
	}
	return latest, true, nil
}

// Save writes state for threadID, overwriting any prior record for
// the same thread, atomically (temp file + rename) so a crash mid-write
// never leaves a truncated or corrupt checkpoint on disk.
func (c *Checkpointer) Save(threadID string, state domain.RunState) error {
	records, err := c.readAll()
	if err != nil {
		records = nil
	}

	record := Record{ThreadID: threadID, Phase: state.Phase, State: state, Timestamp: state.UpdatedAt}
	if record.Timestamp.IsZero() {
		record.Timestamp = state.UpdatedAt
	}

	replaced := false
	for i, r := range records {
		if r.ThreadID == threadID {
			records[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, record)
	}

	return c.writeAll(records)
}

// Clear deletes the checkpoint file. A missing file is not an error.
func (c *Checkpointer) Clear() error {
	err := os.Remove(c.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

func (c *Checkpointer) readAll() ([]Record, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	return records, nil
}

func (c *Checkpointer) writeAll(records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp checkpoint: %w", err)
	}

	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp checkpoint: %w", err)
	}
	return nil
}
