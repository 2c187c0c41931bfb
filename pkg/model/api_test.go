package model

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseListOptions(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  ListOptions
	}{
		{"empty", "", ListOptions{Limit: 20}},
		{"paging", "limit=50&offset=10", ListOptions{Limit: 50, Offset: 10}},
		{"limit over max", "limit=500", ListOptions{Limit: 100}},
		{"negative values", "limit=-5&offset=-3", ListOptions{Limit: 20}},
		{"malformed numbers", "limit=ten&offset=x", ListOptions{Limit: 20}},
		{"plugin filter", "plugin=mystery_stew", ListOptions{Limit: 20, PluginID: "mystery_stew"}},
		{"stage filter", "stage=failed", ListOptions{Limit: 20, Stage: StageFailed}},
		{
			"all filters", "plugin=%20dada2%20&stage=DONE&limit=5",
			ListOptions{Limit: 5, PluginID: "dada2", Stage: StageDone},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("ParseQuery(%q): %v", tt.query, err)
			}
			assert.Equal(t, tt.want, ParseListOptions(q))
		})
	}
}

func TestListOptionsPage(t *testing.T) {
	opts := ListOptions{Limit: 2, Offset: 2, PluginID: "p", Stage: StageDone}

	assert.Equal(t, &Pagination{Total: 5, Limit: 2, Offset: 2, HasMore: true}, opts.Page(5, 2))
	assert.Equal(t, &Pagination{Total: 4, Limit: 2, Offset: 2, HasMore: false}, opts.Page(4, 2))
	assert.False(t, opts.Page(0, 0).HasMore)
}
