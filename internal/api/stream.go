// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/broadcast"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/log"
)

// handleStatus streams position updates for one visitor as server-sent
// events until the client disconnects or the visitor leaves both queues.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	visitorID := chi.URLParam(r, "visitorID")
	logger := log.WithComponentFromContext(r.Context(), "status-stream")

	groupID, err := s.resolveGroupID(r, visitorID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeDomainError(w, r, errStreamingUnsupported)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	writeEvent := func(update broadcast.Update) bool {
		data, err := json.Marshal(update)
		if err != nil {
			logger.Error().Err(err).Msg("status update encode failed")
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if s.cfg.BroadcastMode == "poll" {
		for update := range s.broadcaster.Poll(r.Context(), groupID, visitorID) {
			if !writeEvent(update) || !update.Found {
				return
			}
		}
		return
	}

	sub := s.broadcaster.Subscribe(groupID, visitorID)
	// Close frees the sink as soon as the connection goes away, not on the
	// next tick that happens to notice.
	defer sub.Close()

	for {
		select {
		case <-r.Context().Done():
			return
		case update := <-sub.C:
			if !writeEvent(update) {
				return
			}
			if !update.Found {
				return
			}
		}
	}
}
