package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "q2galaxy API",
		Version:     "v1",
		Description: "Preview of the Galaxy tools generated for QIIME 2 plugins",
		Endpoints: []endpointInfo{
			{"/api/v1/plugins", []string{"GET"}, "Registered plugins and their actions"},
			{"/api/v1/plugins/{plugin}", []string{"GET"}, "Single plugin with actions, types and formats"},
			{"/api/v1/plugins/{plugin}/actions/{action}/tool.xml", []string{"GET"}, "Galaxy tool descriptor of an action"},
			{"/api/v1/plugins/{plugin}/actions/{action}/schema", []string{"GET"}, "Input form of an action as JSON"},
			{"/api/v1/plugins/{plugin}/actions/{action}/check", []string{"POST"}, "Validate a job configuration against the input form"},
			{"/api/v1/builtins/{action}/tool.xml", []string{"GET"}, "Import and export tool descriptors"},
			{"/api/v1/invocations", []string{"GET"}, "Indexed tool invocations, newest first"},
			{"/api/v1/invocations/{id}", []string{"GET"}, "Single invocation with its saved results"},
			{"/api/v1/results/{uuid}", []string{"GET"}, "Saved result by artifact UUID"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
