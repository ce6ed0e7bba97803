package gateway

import (
	"net/http"

	"github.com/nexar-labs/nexar/pkg/models"
)

func (s *Server) handleFileTree(w http.ResponseWriter, r *http.Request) {
	items, err := s.files.Tree(r.URL.Query().Get("path"))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleFileRead(w http.ResponseWriter, r *http.Request) {
	content, err := s.files.Read(r.URL.Query().Get("path"))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (s *Server) handleFileWrite(w http.ResponseWriter, r *http.Request) {
	var req models.FileWriteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	content, err := s.files.Write(req.Path, req.Content)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (s *Server) handleFileWriteRange(w http.ResponseWriter, r *http.Request) {
	var req models.FileWriteRangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	content, err := s.files.WriteRange(&req)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (s *Server) handleFileCreate(w http.ResponseWriter, r *http.Request) {
	var req models.FileCreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.files.Create(&req); err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.OKResponse{Success: true})
}

func (s *Server) handleFileDelete(w http.ResponseWriter, r *http.Request) {
	var req models.FileDeleteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.files.Delete(req.Path); err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.OKResponse{Success: true})
}

func (s *Server) handleFileRename(w http.ResponseWriter, r *http.Request) {
	var req models.FileRenameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.files.Rename(req.OldPath, req.NewPath); err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.OKResponse{Success: true})
}
