package manifest

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tams-hls-gateway/internal/platform/metrics"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// genericFailure is the only detail an end client sees for a failed
// generation; the cause is logged server-side.
const genericFailure = "Unable to generate HLS manifest, check server logs for details.\n"

// Handler exposes the playlist endpoints using go-chi.
type Handler struct {
	svc     *Service
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler that uses the given Service, Logger, and
// optional Metrics. Metrics may be nil to disable metric recording (e.g. in
// tests).
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, log: log, metrics: m}
}

// GetSourceManifest handles GET /sources/{sourceId}/output.m3u8.
func (h *Handler) GetSourceManifest(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceId")
	if _, err := uuid.Parse(sourceID); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	playlist, err := h.svc.SourceManifest(r.Context(), sourceID)
	if err != nil {
		h.fail(w, err, "source", sourceID)
		return
	}

	h.ok(w, playlist, true)
}

// GetFlowManifest handles GET /flows/{flowId}/output.m3u8.
func (h *Handler) GetFlowManifest(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "flowId")
	if _, err := uuid.Parse(flowID); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	playlist, err := h.svc.FlowManifest(r.Context(), flowID)
	if err != nil {
		h.fail(w, err, "flow", flowID)
		return
	}

	h.ok(w, playlist, false)
}

func (h *Handler) ok(w http.ResponseWriter, playlist string, master bool) {
	w.Header().Set("Content-Type", playlistContentType)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(playlist))
	if h.metrics != nil {
		if master {
			h.metrics.IncMasterManifests()
		} else {
			h.metrics.IncMediaManifests()
		}
	}
}

// fail maps generation errors to responses. Exclusion is a policy decision
// surfaced with its own status and message; every other cause is hidden
// behind a generic 500.
func (h *Handler) fail(w http.ResponseWriter, err error, kind, id string) {
	if errors.Is(err, ErrExcluded) {
		h.log.Info("manifest refused",
			slog.String(kind+"_id", id),
			slog.String("reason", err.Error()))
		w.WriteHeader(http.StatusNotAcceptable)
		w.Write([]byte(err.Error() + "\n"))
		return
	}

	h.log.Warn("manifest generation failed",
		slog.String(kind+"_id", id),
		slog.String("error", err.Error()))
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(genericFailure))
}
