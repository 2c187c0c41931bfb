package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/me/q2galaxy/internal/toolxml"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Plugins   int    `json:"plugins"`
	Index     string `json:"index"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	index := "disabled"
	if s.store != nil {
		index = "enabled"
	}
	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   toolxml.Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Plugins:   len(s.registry.Plugins()),
		Index:     index,
	})
}
