package main

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type paramRequest struct {
	Value *float64 `json:"value"`
}

type paramResponse struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type loadResponse struct {
	DurationMs float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// newControlHandler exposes pipeline state and script parameters over HTTP.
func newControlHandler(a *app) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, a.snapshot())
	})

	mux.HandleFunc("GET /params", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, a.params.Snapshot())
	})

	mux.HandleFunc("GET /params/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		v, ok := a.params.Get(name)
		if !ok {
			http.Error(w, "parameter not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, paramResponse{Name: name, Value: v})
	})

	mux.HandleFunc("PUT /params/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		var req paramRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Value == nil || math.IsNaN(*req.Value) || math.IsInf(*req.Value, 0) {
			http.Error(w, "value required", http.StatusBadRequest)
			return
		}
		if err := a.params.Set(name, *req.Value); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		a.logger.Debug("parameter set", zap.String("name", name), zap.Float64("value", *req.Value))
		writeJSON(w, http.StatusOK, paramResponse{Name: name, Value: *req.Value})
	})

	mux.HandleFunc("DELETE /params/{name}", func(w http.ResponseWriter, r *http.Request) {
		if !a.params.Delete(r.PathValue("name")) {
			http.Error(w, "parameter not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /load", func(w http.ResponseWriter, r *http.Request) {
		if a.load == nil {
			http.Error(w, "script not loaded", http.StatusServiceUnavailable)
			return
		}
		start := time.Now()
		// A client hanging up must not cancel the script: the wasm runtime
		// closes the module when a call's context ends.
		err := a.load.Tick(a.life)
		resp := loadResponse{DurationMs: float64(time.Since(start).Microseconds()) / 1000}
		status := http.StatusOK
		if err != nil {
			resp.Error = err.Error()
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, resp)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// serveControl runs srv until it is shut down.
func serveControl(srv *http.Server, logger *zap.Logger) error {
	logger.Info("control server listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
