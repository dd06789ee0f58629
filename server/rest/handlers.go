package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mediadl/mediadl/server/internal/engine"
	"github.com/mediadl/mediadl/server/internal/process"
	"github.com/mediadl/mediadl/server/internal/queue"
	"github.com/mediadl/mediadl/server/internal/release"
	"github.com/mediadl/mediadl/server/updater"
)

type Handler struct {
	service *Service
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, engine.ErrEngineNotFound),
		errors.Is(err, queue.ErrNoSuchTask),
		errors.Is(err, release.ErrNoAsset):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrProbeProcessFailed),
		errors.Is(err, engine.ErrMalformedProbeOutput),
		errors.Is(err, process.ErrSpawnFailed):
		return http.StatusBadGateway
	case errors.Is(err, updater.ErrNotUpdatable), errors.Is(err, errNoPluginPath):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.Any("err", err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusOf(err))
}

func decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return v, false
	}
	return v, true
}

func (h *Handler) Engines() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.service.Engines())
	}
}

func (h *Handler) Engine() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := h.service.Engine(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func (h *Handler) LatestRelease() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rel, err := h.service.LatestRelease(r.Context(), chi.URLParam(r, "name"), r.URL.Query().Get("mirror"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rel)
	}
}

func (h *Handler) InstallEngine() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		res, err := h.service.InstallEngine(
			r.Context(),
			chi.URLParam(r, "name"),
			query.Get("platform"),
			query.Get("mirror"),
		)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *Handler) UpdateEngine() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.service.UpdateEngine(r.Context(), chi.URLParam(r, "name")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) Probe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decode[ProbeRequest](w, r)
		if !ok {
			return
		}

		streams, err := h.service.Probe(r.Context(), req)
		if err != nil {
			slog.Error("probe failed", slog.String("url", req.URL), slog.Any("err", err))
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, streams)
	}
}

func (h *Handler) Tasks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.service.Tasks())
	}
}

func (h *Handler) Task() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		row, err := h.service.Task(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, row)
	}
}

func (h *Handler) Add() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decode[AddRequest](w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusCreated, CountResponse{Count: h.service.Add(req.Streams)})
	}
}

func (h *Handler) Start() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sel, ok := decode[Selection](w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, CountResponse{Count: h.service.Start(sel)})
	}
}

func (h *Handler) Stop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sel, ok := decode[Selection](w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, CountResponse{Count: h.service.Stop(sel)})
	}
}

func (h *Handler) Remove() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sel, ok := decode[Selection](w, r)
		if !ok {
			return
		}

		n, err := h.service.Remove(sel)
		if err != nil {
			writeJSON(w, statusOf(err), CountResponse{Count: n, Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, CountResponse{Count: n})
	}
}
