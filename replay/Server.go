package replay

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// serverWait caps how long one sample request is held open before the
// client is told to retry. Long-polling keeps the blocking-sample
// semantics across the network without pinning handlers forever.
const serverWait = 10 * time.Second

// Server exposes a Table over HTTP. Routes:
//
//	POST /insert        body InsertRequest
//	GET  /sample        query batch_size; long-polls the rate limiter
//	GET  /stats         current counters
//	GET  /healthz
func Server(table *Table) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(table.Stats()); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("/insert", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req InsertRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, wt := range req.Transitions {
			if err := table.Insert(fromWire(wt)); err != nil {
				if IsClosed(err) {
					w.WriteHeader(http.StatusGone)
					return
				}
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/sample", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		batch := 1
		if value := r.URL.Query().Get("batch_size"); value != "" {
			parsed, err := strconv.Atoi(value)
			if err != nil || parsed < 1 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			batch = parsed
		}

		transitions, err := table.SampleTimeout(batch, serverWait)
		if err != nil {
			switch {
			case IsClosed(err):
				w.WriteHeader(http.StatusGone)
			case IsTimeout(err):
				// Not admitted yet; the client should retry.
				w.WriteHeader(http.StatusServiceUnavailable)
			default:
				w.WriteHeader(http.StatusInternalServerError)
			}
			return
		}

		resp := SampleResponse{
			Transitions: make([]wireTransition, len(transitions)),
		}
		for i, t := range transitions {
			resp.Transitions[i] = toWire(t)
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	return mux
}
