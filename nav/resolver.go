// Package nav resolves settled drag gestures into page navigation actions.
// Resolution is a pure function: no I/O, no hidden state, same input always
// yields the same action.
package nav

// DefaultVelocityThreshold is in viewport widths per second. Comparison
// against it is strict: a fling exactly at the threshold settles instead of
// advancing.
const DefaultVelocityThreshold = 0.5

// Input captures one settled drag against the current page geometry.
type Input struct {
	StartPage   int     // page the drag started on
	CurrentPage int     // page under the finger when it lifted
	TotalPages  int     // pages in the current spine item
	Velocity    float64 // signed, viewport widths per second; positive is forward
	SpineIndex  int     // current spine item
	TotalSpines int     // spine items in the book
}

// Action is the resolved navigation outcome. Page is only meaningful for
// ActionKindSnap.
type Action struct {
	Kind ActionKind
	Page int
}

// ActionKind classifies the resolved outcome of a drag.
// ENUM(snap, forward, backward, bounce)
type ActionKind int

func snap(page int) Action {
	return Action{Kind: ActionKindSnap, Page: page}
}

// Resolve maps a settled drag to a navigation action. A threshold of zero or
// less falls back to DefaultVelocityThreshold.
func Resolve(in Input, threshold float64) Action {
	if threshold <= 0 {
		threshold = DefaultVelocityThreshold
	}

	maxPage := in.TotalPages - 1
	if maxPage < 0 {
		maxPage = 0
	}

	switch {
	case in.Velocity > threshold:
		if in.StartPage >= maxPage {
			if in.SpineIndex < in.TotalSpines-1 {
				return Action{Kind: ActionKindForward}
			}
			return Action{Kind: ActionKindBounce}
		}
		next := in.StartPage + 1
		if next > maxPage {
			next = maxPage
		}
		return snap(next)

	case in.Velocity < -threshold:
		if in.StartPage <= 0 {
			if in.SpineIndex > 0 {
				return Action{Kind: ActionKindBackward}
			}
			return Action{Kind: ActionKindBounce}
		}
		prev := in.StartPage - 1
		if prev < 0 {
			prev = 0
		}
		return snap(prev)
	}

	// Slow drag: settle at the page under the finger to avoid overshoot.
	page := in.CurrentPage
	if page < 0 {
		page = 0
	}
	if page > maxPage {
		page = maxPage
	}
	return snap(page)
}
