package domain

import "time"

// SearchTerm is one keyword to search for.
type SearchTerm string

func (t SearchTerm) String() string {
	return string(t)
}

// SearchOutcome reports a submitted search. Results are never read from the
// UI; they arrive through the capture stream opened at SubmittedAt.
type SearchOutcome struct {
	Term        SearchTerm `json:"term"`
	SubmittedAt time.Time  `json:"submitted_at"`
	Success     bool       `json:"success"`
}

// KeywordStatus is the per-keyword verdict in a run summary.
type KeywordStatus string

const (
	KeywordSucceeded KeywordStatus = "success"
	KeywordFailed    KeywordStatus = "failed"
	KeywordSkipped   KeywordStatus = "skipped"
)

type KeywordResult struct {
	Term      SearchTerm    `json:"term"`
	Status    KeywordStatus `json:"status"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Records   int           `json:"records"`
}

// RunSummary is the per-run report persisted next to the catalog.
type RunSummary struct {
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	Keywords       []KeywordResult `json:"keywords"`
	TotalMerged    int             `json:"total_merged"`
	NewRecords     int             `json:"new_records"`
	UpdatedRecords int             `json:"updated_records"`
}

// UIState classifies what the popup resolver sees on the live screen. It is
// inferred per check and never persisted.
type UIState string

const (
	UIStateClean          UIState = "clean"
	UIStateAgreeDialog    UIState = "agree_dialog"
	UIStateLocationPicker UIState = "location_picker"
	UIStateStoreSelector  UIState = "store_selector"
	UIStateGenericPopup   UIState = "generic_popup"
	UIStateUnknown        UIState = "unknown"
)
