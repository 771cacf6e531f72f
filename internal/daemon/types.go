package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/janekbaraniewski/usagebar/internal/core"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultFetchTimeout = 20 * time.Second
)

var (
	ErrUnknownProvider      = errors.New("unknown provider")
	ErrCredentialNotManaged = errors.New("provider manages its own credentials")
)

type Config struct {
	PollInterval time.Duration
	UsageTTL     time.Duration
	FetchTimeout time.Duration
	Verbose      bool
}

// Result is one provider's outcome within a RefreshAll. Exactly one of
// Snapshot (with Err nil) or Err is meaningful.
type Result struct {
	ProviderID string
	Snapshot   core.UsageSnapshot
	Err        error
}

func (r Result) Status() core.Status {
	if r.Err != nil {
		return core.StatusForError(r.Err)
	}
	return r.Snapshot.Status()
}

// Recorder persists successful snapshots. *history.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, snap core.UsageSnapshot) error
}

type SnapshotHandler func([]Result)
