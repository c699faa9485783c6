package engine

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mohaanymo/streamprobe/internal/models"
)

// CheckpointSuffix is appended to a base name to form the checkpoint file.
const CheckpointSuffix = ".streamprobe.json"

// Checkpoint tracks finished probes for resume capability.
type Checkpoint struct {
	Results   map[string]*models.Result `json:"results"` // normalized URL -> result
	CreatedAt time.Time                 `json:"created_at"`
	UpdatedAt time.Time                 `json:"updated_at"`
	mu        sync.Mutex
}

// CheckpointPath returns the checkpoint file path for a base name.
func CheckpointPath(base string) string {
	if base == "" {
		base = "batch"
	}
	if strings.HasSuffix(base, CheckpointSuffix) {
		return base
	}
	return base + CheckpointSuffix
}

// LoadCheckpoint loads a checkpoint from disk if it exists.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil // No checkpoint exists
		}
		return nil, err
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	if cp.Results == nil {
		cp.Results = make(map[string]*models.Result)
	}
	for _, res := range cp.Results {
		for _, t := range res.Tracks() {
			if t.Width > 0 || t.Height > 0 {
				t.Resolution = models.Resolution{Width: t.Width, Height: t.Height}
			}
		}
	}
	return &cp, nil
}

// NewCheckpoint creates an empty checkpoint.
func NewCheckpoint() *Checkpoint {
	now := time.Now()
	return &Checkpoint{
		Results:   make(map[string]*models.Result),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Save writes the checkpoint to disk atomically.
func (c *Checkpoint) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, path)
}

// MarkDone records a finished result under its normalized URL.
func (c *Checkpoint) MarkDone(key string, res *models.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Results[key] = res
}

// Done returns the recorded result for key, if any.
func (c *Checkpoint) Done(key string) (*models.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.Results[key]
	return res, ok
}

// Len returns the number of recorded results.
func (c *Checkpoint) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Results)
}

// Delete removes the checkpoint file. A missing file is not an error.
func (c *Checkpoint) Delete(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// isFinal reports whether a result is final. Fetch failures and
// in-flight collisions are retried on the next run.
func isFinal(res *models.Result) bool {
	if res == nil {
		return false
	}
	switch res.Status {
	case models.StatusFetchFailed, models.StatusProcessing:
		return false
	}
	return true
}
