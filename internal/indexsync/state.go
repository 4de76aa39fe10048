// Package indexsync keeps the vector index in step with the scenario store: a paged bulk load
// at startup followed by live application of change notifications.
package indexsync

// State is the synchronizer lifecycle.
type State int32

const (
	StateNotStarted State = iota
	StateBulkLoading
	StateLive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateBulkLoading:
		return "bulk_loading"
	case StateLive:
		return "live"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats counts what the synchronizer has done since it started.
type Stats struct {
	// Loaded is the number of records added during the bulk load.
	Loaded int64 `json:"loaded"`
	// Skipped is the number of bulk load records that could not be encoded or added.
	Skipped int64 `json:"skipped"`
	// Applied is the number of live notifications and hook calls added to the index.
	Applied int64 `json:"applied"`
	// Dropped is the number of live notifications discarded as undecodable or rejected by the index.
	Dropped int64 `json:"dropped"`
	// Ignored counts DELETE notifications.
	Ignored int64 `json:"ignored"`
}
