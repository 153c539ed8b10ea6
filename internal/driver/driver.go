package driver

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by locate calls when the target is absent from the
// current screen.
var ErrNotFound = errors.New("element not found")

// Rect is an on-screen bounding region in pixels.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func (r Rect) Center() (int, int) {
	return r.X + r.W/2, r.Y + r.H/2
}

// Element is a locate result. Image matches carry an agent element handle;
// hierarchy matches carry only a bounding region and are tapped by
// coordinates.
type Element struct {
	ID     string
	Bounds Rect
}

func (e Element) String() string {
	if e.ID != "" {
		return fmt.Sprintf("element(%s)", e.ID)
	}
	return fmt.Sprintf("region(%d,%d %dx%d)", e.Bounds.X, e.Bounds.Y, e.Bounds.W, e.Bounds.H)
}

// Session is the capability surface the automation agent exposes. The core
// depends only on this interface, never on a specific automation backend.
type Session interface {
	// LocateByImage finds a region matching a named image signature, or
	// ErrNotFound.
	LocateByImage(ctx context.Context, asset string) (Element, error)
	// LocateByText finds an element whose visible text or accessibility
	// label equals text, or ErrNotFound.
	LocateByText(ctx context.Context, text string) (Element, error)
	Tap(ctx context.Context, el Element) error
	Clear(ctx context.Context, el Element) error
	Type(ctx context.Context, el Element, text string) error
	// CurrentScreen returns the agent's UI hierarchy dump for the live
	// screen, as an opaque document.
	CurrentScreen(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}
