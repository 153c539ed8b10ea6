package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed taxonomy of failures this system produces. Every
// call site handles or propagates a known kind; nothing leaks raw driver or
// parser errors past these types.
type ErrorKind string

const (
	KindActionExhausted  ErrorKind = "action_exhausted"
	KindUnresolvedPopup  ErrorKind = "unresolved_popup"
	KindNavigation       ErrorKind = "navigation"
	KindMalformedProduct ErrorKind = "malformed_product"
	KindAPIFailure       ErrorKind = "api_failure"
)

// ActionExhaustedError means a transient UI action never succeeded within its
// retry budget. Recoverable at the driver level; fatal only during mandatory
// setup.
type ActionExhaustedError struct {
	Action   string
	Attempts int
	Last     error
}

func (e *ActionExhaustedError) Error() string {
	return fmt.Sprintf("action %q exhausted after %d attempts: %v", e.Action, e.Attempts, e.Last)
}

func (e *ActionExhaustedError) Unwrap() error { return e.Last }

func (e *ActionExhaustedError) Kind() ErrorKind { return KindActionExhausted }

// UnresolvedPopupError means an interstitial could not be cleared within the
// resolver's bounded rounds.
type UnresolvedPopupError struct {
	Rounds    int
	LastState UIState
}

func (e *UnresolvedPopupError) Error() string {
	return fmt.Sprintf("popup still unresolved after %d rounds (last state %s)", e.Rounds, e.LastState)
}

func (e *UnresolvedPopupError) Kind() ErrorKind { return KindUnresolvedPopup }

// NavigationError means a target UI surface was unreachable within the
// timeout. Recoverable by skipping the current keyword.
type NavigationError struct {
	Target string
	Reason error
}

func (e *NavigationError) Error() string {
	if e.Reason == nil {
		return fmt.Sprintf("navigation to %q failed", e.Target)
	}
	return fmt.Sprintf("navigation to %q failed: %v", e.Target, e.Reason)
}

func (e *NavigationError) Unwrap() error { return e.Reason }

func (e *NavigationError) Kind() ErrorKind { return KindNavigation }

// MalformedProductError means a single product entry could not be extracted.
// Only that record is skipped, never the batch.
type MalformedProductError struct {
	ProductID string
	Field     string
	Value     string
}

func (e *MalformedProductError) Error() string {
	return fmt.Sprintf("malformed product %q: field %s has unusable value %q", e.ProductID, e.Field, e.Value)
}

func (e *MalformedProductError) Kind() ErrorKind { return KindMalformedProduct }

// APIError means a replayed product API request failed outright.
type APIError struct {
	URL    string
	Status int
	Reason error
}

func (e *APIError) Error() string {
	if e.Reason != nil {
		return fmt.Sprintf("product API request to %s failed: %v", e.URL, e.Reason)
	}
	return fmt.Sprintf("product API request to %s failed with status %d", e.URL, e.Status)
}

func (e *APIError) Unwrap() error { return e.Reason }

func (e *APIError) Kind() ErrorKind { return KindAPIFailure }

type kinder interface {
	Kind() ErrorKind
}

// KindOf reports the taxonomy kind of err, walking the wrap chain.
func KindOf(err error) (ErrorKind, bool) {
	var k kinder
	if errors.As(err, &k) {
		return k.Kind(), true
	}
	return "", false
}
