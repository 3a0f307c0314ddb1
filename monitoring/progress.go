package monitoring

import (
	"encoding/json"
	"sync"
	"time"
)

// ProgressState is a copy of a progress bar at one point in time.
type ProgressState struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	InProgress uint64    `json:"in_progress"`
	Finished   uint64    `json:"finished"`
	Failed     uint64    `json:"failed"`
}

// A ProgressBar follows a batch of engine operations, such as the channels
// opened by `grsim serve`.
type ProgressBar struct {
	lock  sync.Mutex
	state ProgressState
}

// ID returns the identifier the web page tracks the bar with.
func (b *ProgressBar) ID() string {
	return b.state.ID
}

// Start marks n operations as running.
func (b *ProgressBar) Start(n uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.state.InProgress += n
}

// Finish moves n running operations to finished.
func (b *ProgressBar) Finish(n uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.state.InProgress -= min(n, b.state.InProgress)
	b.state.Finished += n
}

// Fail moves n running operations to failed.
func (b *ProgressBar) Fail(n uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.state.InProgress -= min(n, b.state.InProgress)
	b.state.Failed += n
}

// Done tells if every operation has either finished or failed.
func (b *ProgressBar) Done() bool {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.state.Finished+b.state.Failed >= b.state.Total
}

// State returns a copy of the counters.
func (b *ProgressBar) State() ProgressState {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.state
}

// MarshalJSON encodes the current state.
func (b *ProgressBar) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.State())
}
