package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/me/q2galaxy/internal/cases"
	"github.com/me/q2galaxy/internal/plugin"
	"github.com/me/q2galaxy/internal/toolxml"
	"github.com/me/q2galaxy/internal/usage"
	"github.com/me/q2galaxy/pkg/model"
)

type actionSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ToolID      string `json:"tool_id"`
	Description string `json:"description,omitempty"`
}

type pluginDetail struct {
	model.PluginSummary
	Package     string          `json:"package,omitempty"`
	Website     string          `json:"website,omitempty"`
	Description string          `json:"description,omitempty"`
	Actions     []actionSummary `json:"actions"`
	Types       []string        `json:"types"`
	Formats     []string        `json:"formats"`
}

func summarize(p *plugin.Plugin) model.PluginSummary {
	ids := make([]string, 0, len(p.Actions))
	for _, a := range p.Actions {
		ids = append(ids, a.ID)
	}
	return model.PluginSummary{ID: p.ID, Name: p.Name, Version: p.Version, Actions: ids}
}

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	plugins := s.registry.Plugins()
	out := make([]model.PluginSummary, 0, len(plugins))
	for _, p := range plugins {
		out = append(out, summarize(p))
	}
	respondOK(w, reqID, out)
}

func (s *Server) handleGetPlugin(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	p, err := s.registry.Plugin(chi.URLParam(r, "plugin"))
	if err != nil {
		respondLookupError(w, reqID, err)
		return
	}

	detail := pluginDetail{
		PluginSummary: summarize(p),
		Package:       p.Package,
		Website:       p.Website,
		Description:   p.Description,
		Actions:       make([]actionSummary, 0, len(p.Actions)),
		Types:         []string{},
		Formats:       []string{},
	}
	for _, a := range p.Actions {
		detail.Actions = append(detail.Actions, actionSummary{
			ID:          a.ID,
			Name:        a.Name,
			ToolID:      usage.ToolID(p.ID, a.ID),
			Description: a.Description,
		})
	}
	for _, t := range p.Types {
		detail.Types = append(detail.Types, t.Name)
	}
	for _, f := range p.Formats {
		detail.Formats = append(detail.Formats, f.Name)
	}
	sort.Strings(detail.Types)
	sort.Strings(detail.Formats)
	respondOK(w, reqID, detail)
}

func (s *Server) lookup(r *http.Request) (*plugin.Plugin, *plugin.Action, error) {
	p, err := s.registry.Plugin(chi.URLParam(r, "plugin"))
	if err != nil {
		return nil, nil, err
	}
	a, err := s.registry.Action(p.ID, chi.URLParam(r, "action"))
	if err != nil {
		return nil, nil, err
	}
	return p, a, nil
}

func (s *Server) handleToolXML(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	p, a, err := s.lookup(r)
	if err != nil {
		respondLookupError(w, reqID, err)
		return
	}
	tool, err := toolxml.MakeTool(p, a)
	if err != nil {
		respondLookupError(w, reqID, err)
		return
	}
	writeXML(w, tool)
}

func (s *Server) handleBuiltinXML(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	tool, err := toolxml.MakeBuiltin(s.registry, chi.URLParam(r, "action"))
	if err != nil {
		respondLookupError(w, reqID, err)
		return
	}
	writeXML(w, tool)
}

func writeXML(w http.ResponseWriter, tool *toolxml.Node) {
	var buf bytes.Buffer
	tool.WriteTo(&buf)
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	_, a, err := s.lookup(r)
	if err != nil {
		respondLookupError(w, reqID, err)
		return
	}
	respondOK(w, reqID, cases.Form(a.Signature))
}

// handleCheck validates a job configuration as the tool runner would
// write it for the action's form.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	_, a, err := s.lookup(r)
	if err != nil {
		respondLookupError(w, reqID, err)
		return
	}

	var cfg map[string]any
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}
	respondOK(w, reqID, s.checker.Check(cases.Form(a.Signature), cfg))
}
