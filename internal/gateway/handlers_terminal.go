package gateway

import (
	"net/http"

	"github.com/nexar-labs/nexar/pkg/models"
)

func (s *Server) handleTerminalCreate(w http.ResponseWriter, r *http.Request) {
	var req models.TerminalCreateRequest
	if r.ContentLength != 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}
	info, err := s.terminals.Create(&req)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleTerminalInput(w http.ResponseWriter, r *http.Request) {
	var req models.TerminalInputRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.terminals.Write(r.PathValue("id"), req.Data); err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.OKResponse{Success: true})
}

func (s *Server) handleTerminalOutput(w http.ResponseWriter, r *http.Request) {
	out, err := s.terminals.Read(r.PathValue("id"))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTerminalResize(w http.ResponseWriter, r *http.Request) {
	var req models.TerminalResizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Cols <= 0 || req.Rows <= 0 {
		writeError(w, http.StatusBadRequest, "cols and rows must be positive")
		return
	}
	if err := s.terminals.Resize(r.PathValue("id"), req.Cols, req.Rows); err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.OKResponse{Success: true})
}

func (s *Server) handleTerminalClose(w http.ResponseWriter, r *http.Request) {
	if err := s.terminals.Close(r.PathValue("id")); err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.OKResponse{Success: true})
}
