package gateway

import (
	"net/http"

	"github.com/nexar-labs/nexar/pkg/models"
)

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.router.List())
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.AIRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required")
		return
	}
	resp, err := s.runs.Chat(&req)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRunStart(w http.ResponseWriter, r *http.Request) {
	var req models.AIRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required")
		return
	}
	runID := s.runs.Start(&req)
	writeJSON(w, http.StatusOK, map[string]string{"run_id": runID})
}

func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	info, err := s.runs.Get(r.PathValue("id"))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleRunContinue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	info, err := s.runs.Get(id)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	if info.Status.Terminal() {
		writeError(w, http.StatusConflict, "run is terminal")
		return
	}
	resp, err := s.runs.Continue(id)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRunReply(w http.ResponseWriter, r *http.Request) {
	var req models.ReplyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	resp, err := s.runs.Reply(r.PathValue("id"), req.Message)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRunPause(w http.ResponseWriter, r *http.Request) {
	info, err := s.runs.Pause(r.PathValue("id"))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleRunResume(w http.ResponseWriter, r *http.Request) {
	info, err := s.runs.Resume(r.PathValue("id"))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleRunCancel(w http.ResponseWriter, r *http.Request) {
	info, err := s.runs.Cancel(r.PathValue("id"))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
