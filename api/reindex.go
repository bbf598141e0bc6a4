package api

import (
	"log/slog"
	"net/http"
)

type reindexResponse struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}

type reindexHandler struct {
	pipeline Reindexer
	logger   *slog.Logger
}

// run handles POST /api/v1/reindex. The rebuild is synchronous; the old
// index generation keeps serving queries until the new one is accepted,
// so a long-running rebuild never degrades answering.
func (h *reindexHandler) run(w http.ResponseWriter, r *http.Request) {
	stats, err := h.pipeline.Run(r.Context())
	if err != nil {
		h.logger.Error("reindex failed", "error", err)
		writeError(w, http.StatusInternalServerError, "reindex_failed", "index rebuild failed; previous index remains active")
		return
	}
	writeJSON(w, http.StatusOK, reindexResponse{Documents: stats.Documents, Chunks: stats.Chunks})
}
