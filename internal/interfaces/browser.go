package interfaces

import (
	"context"
	"time"
)

// Key is a keyboard key understood by Page.PressKey
type Key string

const (
	KeyArrowDown Key = "ArrowDown"
	KeyEnter     Key = "Enter"
)

// Page is one browser tab. Selectors starting with "/" or "(" are XPath, anything else is CSS.
type Page interface {
	Navigate(ctx context.Context, url string) error

	// WaitVisible blocks until sel is visible or timeout elapses
	WaitVisible(ctx context.Context, sel string, timeout time.Duration) error

	Count(ctx context.Context, sel string) (int, error)

	// Text returns the inner text of the first match
	Text(ctx context.Context, sel string) (string, error)

	// Texts returns the inner text of every match in document order
	Texts(ctx context.Context, sel string) ([]string, error)

	// Attributes returns attribute values of every match that carries it
	Attributes(ctx context.Context, sel, name string) ([]string, error)

	Click(ctx context.Context, sel string) error

	// ClickVisible clicks each currently visible match, pausing between clicks, and returns how many were clicked
	ClickVisible(ctx context.Context, sel string, pause time.Duration) (int, error)

	Fill(ctx context.Context, sel, value string) error
	PressKey(ctx context.Context, key Key) error

	// Wheel dispatches a mouse wheel event over sel, or over the viewport when sel is empty
	Wheel(ctx context.Context, sel string, deltaY float64) error

	// ScrollPosition returns scrollTop of sel, or window.scrollY when sel is empty or absent
	ScrollPosition(ctx context.Context, sel string) (float64, error)

	Content(ctx context.Context) (string, error)

	// OpenFrameLinks clicks every itemSel inside the frameSel iframe one at a time,
	// records the URL of each popup it opens and closes the popup again
	OpenFrameLinks(ctx context.Context, frameSel, itemSel string) ([]string, error)
}

// SessionPool hands out pages on the shared rendering engine, bounded in number
type SessionPool interface {
	// Acquire blocks until a session slot is free. release must always be called.
	Acquire(ctx context.Context) (Page, func(), error)
}
