// Package store defines the persistence contract for the blocklist, the
// blocking toggle and method, settings, and statistics.
package store

import "github.com/haukened/dontvisit/internal/blocker/domain"

// Persistence keys. Values are JSON encoded.
const (
	KeyBlockedSites    = "blockedSites"
	KeyBlockingEnabled = "blockingEnabled"
	KeyBlockingMethod  = "blockingMethod"
	KeySettings        = "settings"
	KeyStatistics      = "statistics"
)

// Store is the only owner of persisted state. Every method is a single
// transaction; there are no cross-call transactions.
type Store interface {
	// Init writes install-time defaults for any key that is missing.
	Init() error
	// Snapshot reads list, toggle, method and settings together.
	Snapshot() (domain.Snapshot, error)
	BlockList() (domain.BlockList, error)
	// UpdateBlockList applies fn to the current list and persists its result
	// in the same transaction. An error from fn aborts the write.
	UpdateBlockList(fn func(domain.BlockList) (domain.BlockList, error)) (domain.BlockList, error)
	SetEnabled(enabled bool) error
	SetMethod(m domain.BlockingMethod) error
	Settings() (domain.Settings, error)
	PutSettings(s domain.Settings) error
	Statistics() (domain.Statistics, error)
	// RecordBlock increments the total and the per-host counter.
	RecordBlock(host string) error
	Close() error
}

// Defaults returns the install-time snapshot.
func Defaults() domain.Snapshot {
	return domain.Snapshot{
		BlockList: domain.BlockList{},
		Enabled:   true,
		Method:    domain.DefaultBlockingMethod,
		Settings:  domain.DefaultSettings(),
	}
}
