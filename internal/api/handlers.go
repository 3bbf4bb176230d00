// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/core"
)

// enterRequest is the optional JSON body of a check-or-enter call. Request
// parameters feed rule matching; the ticket field is an alternative to the
// Authorization header.
type enterRequest struct {
	DestinationURL string            `json:"destinationUrl,omitempty"`
	Params         map[string]string `json:"params,omitempty"`
	Ticket         string            `json:"ticket,omitempty"`
}

// extractTicket retrieves a presented ticket, preferring the Authorization
// header over the body field.
func extractTicket(r *http.Request, body *enterRequest) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if body != nil && body.Ticket != "" {
		return body.Ticket
	}
	return ""
}

func (s *Server) handleEnter(w http.ResponseWriter, r *http.Request) {
	actionID := chi.URLParam(r, "actionID")

	var body enterRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeDomainError(w, r, fmt.Errorf("decode body: %w", core.ErrBadRequest))
			return
		}
	}

	// Query parameters participate in rule matching alongside body params,
	// so rules like utm_source=... work for plain link navigation.
	params := body.Params
	if q := r.URL.Query(); len(q) > 0 {
		if params == nil {
			params = make(map[string]string, len(q))
		}
		for k, vs := range q {
			if _, ok := params[k]; !ok && len(vs) > 0 {
				params[k] = vs[0]
			}
		}
	}

	decision, err := s.controller.CheckOrEnter(r.Context(), actionID, body.DestinationURL, extractTicket(r, &body), params)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	visitorID := chi.URLParam(r, "visitorID")

	verification, err := s.controller.Verify(r.Context(), visitorID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verification)
}

// snapshotResponse is the edge-cacheable config view.
type snapshotResponse struct {
	SystemStatus string        `json:"systemStatus"`
	Version      string        `json:"version"`
	Actions      []core.Action `json:"actions"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	knownVersion := r.URL.Query().Get("version")

	version, err := s.configStore.Version(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if knownVersion != "" && knownVersion == version {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	actions, err := s.configStore.Actions(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshotResponse{
		SystemStatus: "active",
		Version:      version,
		Actions:      actions,
	})
}

// resolveGroupID maps a visitor id onto its owning action group.
func (s *Server) resolveGroupID(r *http.Request, rawVisitorID string) (string, error) {
	visitorID, err := core.ParseVisitorID(rawVisitorID)
	if err != nil {
		return "", err
	}
	action, err := s.configs.Action(r.Context(), visitorID.ActionID)
	if err != nil {
		return "", err
	}
	return action.ActionGroupID, nil
}

var errStreamingUnsupported = errors.New("response writer does not support streaming")
