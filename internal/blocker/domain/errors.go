package domain

import "errors"

// Error taxonomy. Callers wrap these with context and test with errors.Is.
var (
	// ErrMalformedInput covers unparsable URLs and empty or invalid entries.
	ErrMalformedInput = errors.New("malformed input")
	// ErrDuplicateEntry is returned when adding an entry already on the list.
	ErrDuplicateEntry = errors.New("site already blocked")
	// ErrMissingEntry is returned when removing an entry that is not on the list.
	ErrMissingEntry = errors.New("site not found in blocked list")
	// ErrChannelUnavailable means no in-page agent answered for the tab.
	ErrChannelUnavailable = errors.New("page channel unavailable")
	// ErrStoreUnavailable wraps persistence read/write failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)
