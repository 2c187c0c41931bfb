package model

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Response is the standard API response envelope.
type Response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error"`
}

// Pagination describes one page of a list response.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// Status reports one file written by the templating commands.
type Status struct {
	Status string `json:"status"` // "created" or "updated"
	Type   string `json:"type"`   // "file" or "directory"
	Path   string `json:"path"`
}

// PluginSummary is the listing entry for a registered plugin.
type PluginSummary struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Actions []string `json:"actions"`
}

// CheckResult is the outcome of validating a job configuration against the
// rendered form.
type CheckResult struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// ListOptions configures list queries with pagination and filtering.
type ListOptions struct {
	Limit    int
	Offset   int
	PluginID string // Optional plugin filter
	Stage    Stage  // Optional final-stage filter
}

// DefaultListOptions returns sensible defaults.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 20, Offset: 0}
}

// ParseListOptions reads limit, offset, plugin and stage from a query
// string. Malformed numbers keep their defaults; the result is clamped.
func ParseListOptions(q url.Values) ListOptions {
	opts := DefaultListOptions()
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		opts.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		opts.Offset = v
	}
	opts.PluginID = strings.TrimSpace(q.Get("plugin"))
	opts.Stage = Stage(strings.ToUpper(strings.TrimSpace(q.Get("stage"))))
	opts.Clamp()
	return opts
}

// Page describes the page of n items returned for o out of total matches.
func (o ListOptions) Page(total, n int) *Pagination {
	return &Pagination{
		Total:   total,
		Limit:   o.Limit,
		Offset:  o.Offset,
		HasMore: o.Offset+n < total,
	}
}

// Clamp enforces limits (max 100, min 1).
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}
