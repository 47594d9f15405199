package ingestion

import (
	"time"

	"github.com/poiesic/ragstudio/core"
)

// Monitor observes completed file ingestions.
type Monitor interface {
	FileIngested(result core.IngestResult, elapsed time.Duration, err error)
}

type noopMonitor struct{}

func (noopMonitor) FileIngested(core.IngestResult, time.Duration, error) {}
