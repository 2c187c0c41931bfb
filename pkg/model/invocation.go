package model

import "time"

// Invocation is one run of a plugin action by the tool runner.
type Invocation struct {
	ID          string         `json:"id"`
	PluginID    string         `json:"plugin_id"`
	ActionID    string         `json:"action_id"`
	Stage       Stage          `json:"stage"`
	Inputs      map[string]any `json:"inputs"`
	ErrorKind   ErrorKind      `json:"error_kind,omitempty"`
	Error       string         `json:"error,omitempty"`
	Results     []ResultRecord `json:"results,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at"`
}

// ResultRecord is one artifact saved by an invocation.
type ResultRecord struct {
	ID           string    `json:"id"`
	InvocationID string    `json:"invocation_id"`
	Name         string    `json:"name"`
	UUID         string    `json:"uuid"`
	Type         string    `json:"type"`
	Format       string    `json:"format"`
	Path         string    `json:"path"`
	Size         uint64    `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}
