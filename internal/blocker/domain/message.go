package domain

// Action names of the request vocabulary. Values match what browser-side
// clients already send.
const (
	ActionAddBlockedSite     = "addBlockedSite"
	ActionRemoveBlockedSite  = "removeBlockedSite"
	ActionGetBlockedSites    = "getBlockedSites"
	ActionToggleBlocking     = "toggleBlocking"
	ActionGetStatistics      = "getStatistics"
	ActionSetBlockingMethod  = "setBlockingMethod"
	ActionUpdateSettings     = "updateSettings"
	ActionClearBlockedSites  = "clearBlockedSites"
	ActionLogActivity        = "logActivity"
	ActionURLChanged         = "urlChanged"
	ActionContentReady       = "contentScriptReady"
	ActionGetCurrentTabInfo  = "getCurrentTabInfo"
	ActionShowWarning        = "showBlockingWarning"
	ActionHideWarning        = "hideBlockingWarning"
	ErrTextUnknownAction     = "Unknown action"
	ErrTextGenericStoreError = "Storage error"
)

// Request is one inbound message. Only the fields relevant to Action are read.
type Request struct {
	Action     string          `json:"action"`
	Site       string          `json:"site,omitempty"`
	Enabled    *bool           `json:"enabled,omitempty"`
	Method     string          `json:"method,omitempty"`
	Settings   *Settings       `json:"settings,omitempty"`
	TabID      TabID           `json:"tabId,omitempty"`
	URL        string          `json:"url,omitempty"`
	NewURL     string          `json:"newUrl,omitempty"`
	BlockedURL string          `json:"blockedUrl,omitempty"`
	Data       *ActivityReport `json:"data,omitempty"`
}

// ActivityReport is the payload of logActivity.
type ActivityReport struct {
	Type ActivityType `json:"type"`
	URL  string       `json:"url"`
}

// Response is the result object every request resolves to.
type Response struct {
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Sites      []string       `json:"sites,omitempty"`
	Enabled    *bool          `json:"enabled,omitempty"`
	Method     BlockingMethod `json:"method,omitempty"`
	Settings   *Settings      `json:"settings,omitempty"`
	Statistics *Statistics    `json:"statistics,omitempty"`
	Handled    *bool          `json:"handled,omitempty"`
	Tab        *TabInfo       `json:"tab,omitempty"`
}

// Failure builds an unsuccessful response.
func Failure(msg string) Response { return Response{Success: false, Error: msg} }

// HandledResponse builds the reply for page-side warning requests.
func HandledResponse(handled bool) Response {
	return Response{Success: handled, Handled: &handled}
}
