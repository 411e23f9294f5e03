package domain

// BlockOutcome reports what the dispatcher actually did for one blocked
// navigation.
type BlockOutcome struct {
	TabID     TabID
	URL       string
	Requested BlockingMethod
	Applied   string   // strategy that succeeded, empty if all failed
	Tried     []string // strategies attempted, in order
	FellBack  bool     // true when Applied is not the first planned strategy
	Err       error    // aggregated failure when nothing could be applied
}

// OK reports whether some strategy was applied.
func (o BlockOutcome) OK() bool { return o.Applied != "" }
