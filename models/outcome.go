package models

// LoadStatus is the result of the initial navigation.
type LoadStatus int

const (
	LoadSuccess LoadStatus = iota
	LoadFail
)

func (s LoadStatus) String() string {
	if s == LoadSuccess {
		return "success"
	}
	return "fail"
}

// OutcomeKind tags the variant of an Outcome.
type OutcomeKind int

const (
	Succeeded OutcomeKind = iota
	LoadFailed
	TimedOut
)

func (k OutcomeKind) String() string {
	switch k {
	case Succeeded:
		return "succeeded"
	case LoadFailed:
		return "load_failed"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Signal is the decoded completion value published by the page.
type Signal struct {
	StatusCode int
}

// Outcome is the single terminal result of a render.
type Outcome struct {
	Kind OutcomeKind

	// Markup is the serialized document; set only when Kind is Succeeded.
	Markup string

	// StatusCode is the status reported by the page's completion signal.
	// Nil in fixed-mode.
	StatusCode *int
}

// Err converts a failed outcome into the matching RenderError.
// It returns nil for Succeeded.
func (o *Outcome) Err() error {
	switch o.Kind {
	case LoadFailed:
		return NewRenderError(ErrCodeNavigation, "Request failed", nil)
	case TimedOut:
		return NewRenderError(ErrCodeTimeout, "Page did not report success within timeout", nil)
	default:
		return nil
	}
}
