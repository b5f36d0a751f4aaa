package server

import (
	"errors"
	"net/http"

	"github.com/certen/statechain-entity/pkg/sceerr"
)

// writeErr maps any error returned by an engine call to the JSON error
// envelope of §7. A *sceerr.Error carries its own Kind/Code; anything
// else is reported as an unclassified StoreError, since every
// store/engine call that can fail for a reason a client should see
// already returns a *sceerr.Error or a sentinel the caller wraps as
// one (see pkg/store's entity-not-found sentinels).
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	var scErr *sceerr.Error
	if errors.As(err, &scErr) {
		s.writeJSON(w, scErr.Code, map[string]interface{}{
			"error": map[string]string{
				"code":    string(scErr.Kind),
				"message": scErr.Message,
			},
		})
		return
	}
	s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]string{
			"code":    "StoreError",
			"message": err.Error(),
		},
	})
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := decodeJSONBody(r, v); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return false
	}
	return true
}
