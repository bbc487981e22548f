package varsync

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Server exposes a Source over HTTP. Routes:
//
//	GET /variables    query names=a,b; returns {"name": [Variable...]}
//	GET /healthz
func Server(source Source) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/variables", func(w http.ResponseWriter,
		r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		query := r.URL.Query().Get("names")
		if query == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		variables, err := source.GetVariables(strings.Split(query, ","))
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(variables); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	return mux
}

// HTTPSource is a Source backed by a remote variable server.
type HTTPSource struct {
	base string
	http *http.Client
}

// NewHTTPSource returns a source for the variable server at baseURL.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{base: baseURL, http: &http.Client{}}
}

// GetVariables fetches the named collections from the remote server.
func (s *HTTPSource) GetVariables(names []string) (map[string][]Variable,
	error) {
	url := fmt.Sprintf("%v/variables?names=%v", s.base,
		strings.Join(names, ","))
	resp, err := s.http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("getvariables: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("getvariables: server returned %v",
			resp.StatusCode)
	}
	var variables map[string][]Variable
	if err := json.NewDecoder(resp.Body).Decode(&variables); err != nil {
		return nil, fmt.Errorf("getvariables: could not decode response: %v",
			err)
	}
	return variables, nil
}
