package domain

// Settings are the user toggles read once per navigation check.
type Settings struct {
	BlockSubdomains   bool `json:"blockSubdomains"`
	CaseSensitive     bool `json:"caseSensitive"`
	ShowNotifications bool `json:"showNotifications"`
}

// DefaultSettings are written at install time.
func DefaultSettings() Settings {
	return Settings{
		BlockSubdomains:   true,
		CaseSensitive:     false,
		ShowNotifications: true,
	}
}

// Snapshot is everything a navigation check needs, read in one store round-trip.
type Snapshot struct {
	BlockList BlockList
	Enabled   bool
	Method    BlockingMethod
	Settings  Settings
}
