package domain

// TabID identifies a navigation target. For the CDP controller it is the
// target id; for HTTP and page-channel clients it is whatever the client sends.
type TabID string

// LifecycleStage is the navigation phase that produced an event.
type LifecycleStage string

const (
	StageCreated    LifecycleStage = "created"
	StageLoading    LifecycleStage = "loading"
	StageComplete   LifecycleStage = "complete"
	StageURLChanged LifecycleStage = "urlChanged"
)

// Checked reports whether events of this stage are evaluated against the list.
func (s LifecycleStage) Checked() bool {
	switch s {
	case StageCreated, StageLoading, StageComplete, StageURLChanged:
		return true
	}
	return false
}

// NavigationEvent is produced once per navigation stage and never stored.
type NavigationEvent struct {
	TabID TabID          `json:"tabId"`
	URL   string         `json:"url"`
	Stage LifecycleStage `json:"stage"`
	// Reload marks a new document for the URL the tab was already on.
	Reload bool `json:"reload,omitempty"`
}

// TabInfo describes an open tab.
type TabInfo struct {
	ID    TabID  `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}
