package server

import (
	"errors"
	"net/http"
	"strings"

	"lexdocs/internal/app"
	"lexdocs/pkg/domain"
)

// handleUpload accepts a multipart upload in the "document" field, stores it,
// and runs the processing pipeline. Pipeline failures still return 201: the
// row exists and records the failure.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+1024)
	file, header, err := r.FormFile("document")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeAppError(w, r, app.ErrFileTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "document file is required")
		return
	}
	defer file.Close()

	doc, err := s.app.Upload(r.Context(), user, header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, doc)
}

func (s *Server) handleUploadStatus(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	documentID, ok := pathTail(r, "/api/upload/status/")
	if !ok {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	doc, err := s.app.UploadStatus(user, documentID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"documentId":      doc.ID,
		"processed":       doc.Processed,
		"stage":           doc.Stage,
		"processingError": doc.ProcessingError,
	})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	docs, err := s.app.ListDocuments(user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, docs)
}

func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	tail := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	if id, ok := strings.CutSuffix(tail, "/reprocess"); ok && id != "" && !strings.Contains(id, "/") {
		s.handleReprocess(w, r, user, id)
		return
	}
	if tail == "" || strings.Contains(tail, "/") {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		doc, err := s.app.GetDocument(user, tail)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, doc)
	case http.MethodDelete:
		if err := s.app.DeleteDocument(r.Context(), user, tail); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeMessage(w, http.StatusOK, "document deleted", nil)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request, user domain.User, documentID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	doc, err := s.app.Reprocess(r.Context(), user, documentID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeMessage(w, http.StatusAccepted, "reprocess started", doc)
}
