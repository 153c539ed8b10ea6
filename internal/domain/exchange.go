package domain

import (
	"strings"
	"time"
)

// Exchange is one request/response pair recorded in a capture session. It is a
// read-only view; nothing in this system mutates a captured exchange.
type Exchange struct {
	Method         string            `json:"method"`
	URL            string            `json:"url"`
	RequestHeaders map[string]string `json:"request_headers,omitempty"`
	RequestBody    string            `json:"request_body,omitempty"`
	Status         int               `json:"status"`
	ResponseBody   string            `json:"response_body,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

// APIPattern identifies the exchanges that carry product data. The URL
// fragment has to be specific enough to miss telemetry and other unrelated
// endpoints; an empty fragment therefore matches nothing.
type APIPattern struct {
	URLFragment string
	Method      string
}

func (p APIPattern) Matches(method, url string) bool {
	if p.URLFragment == "" {
		return false
	}
	if !strings.Contains(url, p.URLFragment) {
		return false
	}
	return p.Method == "" || strings.EqualFold(p.Method, method)
}
