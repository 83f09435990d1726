package manager

import (
	"sync"
	"time"
)

// SyncError reports a remote write that failed after the local cart had
// already changed. The local state is not rolled back.
type SyncError struct {
	UserID    string    `json:"user_id"`
	LineID    string    `json:"line_id"`
	ProductID string    `json:"product_id"`
	Op        string    `json:"op"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

type Notifier interface {
	Notify(e SyncError)
}

// SyncErrorLog keeps the most recent sync errors per user until they are
// drained by the client.
type SyncErrorLog struct {
	mu      sync.Mutex
	max     int
	pending map[string][]SyncError
}

func NewSyncErrorLog(maxPerUser int) *SyncErrorLog {
	if maxPerUser <= 0 {
		maxPerUser = 50
	}
	return &SyncErrorLog{
		max:     maxPerUser,
		pending: make(map[string][]SyncError),
	}
}

func (l *SyncErrorLog) Notify(e SyncError) {
	l.mu.Lock()
	defer l.mu.Unlock()
	errs := append(l.pending[e.UserID], e)
	if len(errs) > l.max {
		errs = errs[len(errs)-l.max:]
	}
	l.pending[e.UserID] = errs
}

// Drain returns and forgets the pending errors of userID, oldest first.
func (l *SyncErrorLog) Drain(userID string) []SyncError {
	l.mu.Lock()
	defer l.mu.Unlock()
	errs := l.pending[userID]
	delete(l.pending, userID)
	if errs == nil {
		return []SyncError{}
	}
	return errs
}
