package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Locator finds a UI target on the live screen. Callers never branch on the
// locator variant; selection between image and text matching happens behind
// Locate.
type Locator interface {
	Describe() string
	Locate(ctx context.Context, s Session) (Element, error)
}

// ImageLocator matches a cached image signature asset.
type ImageLocator struct {
	Asset string
}

func (l ImageLocator) Describe() string {
	return "image:" + l.Asset
}

func (l ImageLocator) Locate(ctx context.Context, s Session) (Element, error) {
	return s.LocateByImage(ctx, l.Asset)
}

// TextLocator matches visible text or an accessibility label.
type TextLocator struct {
	Text string
}

func (l TextLocator) Describe() string {
	return "text:" + l.Text
}

func (l TextLocator) Locate(ctx context.Context, s Session) (Element, error) {
	return s.LocateByText(ctx, l.Text)
}

type fallbackLocator struct {
	chain []Locator
}

// Fallback tries each locator in the given order and returns the first match.
// All locators missing yields ErrNotFound; any other failure aborts the
// chain.
func Fallback(chain ...Locator) Locator {
	return fallbackLocator{chain: chain}
}

func (l fallbackLocator) Describe() string {
	parts := make([]string, len(l.chain))
	for i, c := range l.chain {
		parts[i] = c.Describe()
	}
	return strings.Join(parts, "|")
}

func (l fallbackLocator) Locate(ctx context.Context, s Session) (Element, error) {
	for _, c := range l.chain {
		el, err := c.Locate(ctx, s)
		if err == nil {
			return el, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Element{}, fmt.Errorf("locator %s failed: %w", c.Describe(), err)
		}
	}
	return Element{}, ErrNotFound
}
