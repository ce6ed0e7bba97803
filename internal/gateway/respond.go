package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nexar-labs/nexar/internal/agent"
	"github.com/nexar-labs/nexar/internal/terminal"
	"github.com/nexar-labs/nexar/internal/tools"
	"github.com/nexar-labs/nexar/internal/workspace"
)

// maxBodySize bounds request bodies.
const maxBodySize = 20 << 20 // 20MB

// errorBody is the uniform error envelope.
type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// decodeBody parses the JSON request body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeMappedError translates engine errors onto the HTTP surface.
func (s *Server) writeMappedError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workspace.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, agent.ErrRunNotFound), errors.Is(err, terminal.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case agent.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		if te, ok := tools.IsToolError(err); ok {
			switch te.Kind {
			case tools.KindPathEscape:
				writeError(w, http.StatusBadRequest, "path escape")
			case tools.KindNotFound:
				writeError(w, http.StatusNotFound, te.Error())
			case tools.KindInvalidInput:
				writeError(w, http.StatusBadRequest, te.Error())
			default:
				writeError(w, http.StatusInternalServerError, te.Error())
			}
			return
		}
		if s.metrics != nil {
			s.metrics.RecordError("gateway", "internal")
		}
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
