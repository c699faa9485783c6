package engine

import (
	"context"

	"github.com/mohaanymo/streamprobe/internal/models"
)

// Parser is what the engine runs for each URL. parser.Registry satisfies it.
type Parser interface {
	Parse(ctx context.Context, url string, headers map[string]string) *models.Result
}

// ProgressUpdate reports one finished job.
type ProgressUpdate struct {
	JobID     string
	URL       string
	Status    models.Status
	Resumed   bool
	Completed bool
	Error     error
	Done      int
	Total     int
}

// Job is one URL in a batch run.
type Job struct {
	ID      string         `json:"id"`
	URL     string         `json:"url"`
	Result  *models.Result `json:"result"`
	Resumed bool           `json:"resumed,omitempty"`
}

// ContainerFormat represents output container formats.
type ContainerFormat string

const (
	FormatMP4  ContainerFormat = "mp4"
	FormatMKV  ContainerFormat = "mkv"
	FormatTS   ContainerFormat = "ts"
	FormatWebM ContainerFormat = "webm"
	FormatM4A  ContainerFormat = "m4a"
)
