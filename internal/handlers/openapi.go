package handlers

import (
	"encoding/json"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// OpenAPIHandler serves the OpenAPI document as YAML or JSON
type OpenAPIHandler struct {
	fs   afero.Fs
	name string
}

// NewOpenAPIHandler serves openAPIPath from fs. Reads are confined to the
// document's directory and are read-only.
func NewOpenAPIHandler(fs afero.Fs, openAPIPath string) *OpenAPIHandler {
	dir, name := filepath.Split(filepath.Clean(openAPIPath))
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &OpenAPIHandler{
		fs:   afero.NewReadOnlyFs(afero.NewBasePathFs(fs, dir)),
		name: name,
	}
}

// RegisterRoutes registers OpenAPI routes
func (h *OpenAPIHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/openapi.yaml", h.ServeYAML).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/openapi.json", h.ServeJSON).Methods(http.MethodGet)
}

func (h *OpenAPIHandler) read() ([]byte, error) {
	return afero.ReadFile(h.fs, h.name)
}

// ServeYAML serves the OpenAPI document as YAML
func (h *OpenAPIHandler) ServeYAML(w http.ResponseWriter, _ *http.Request) {
	data, err := h.read()
	if err != nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "OpenAPI specification not found")
		return
	}

	w.Header().Set("Content-Type", "application/x-yaml")
	_, _ = w.Write(data)
}

// ServeJSON serves the OpenAPI document converted to JSON
func (h *OpenAPIHandler) ServeJSON(w http.ResponseWriter, _ *http.Request) {
	data, err := h.read()
	if err != nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "OpenAPI specification not found")
		return
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to parse OpenAPI specification")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		http.Error(w, "Failed to encode JSON response", http.StatusInternalServerError)
	}
}
