package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Layr-Labs/pageproof-go/pkg/types"
)

// FilenameHeader names the uploaded file when the body is sent raw.
const FilenameHeader = "X-Filename"

// uploadFormField is the multipart field carrying the document.
const uploadFormField = "file"

// handleIndex answers liveness checks
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "OK")
}

// handleHealth reports persistence health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.node.HealthCheck(); err != nil {
		s.node.logger.Sugar().Warnw("Health check failed", "error", err)
		http.Error(w, "Persistence unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUploadDocument ingests a document and returns its merkle root
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if s.uploadLimiter != nil && !s.uploadLimiter.Allow() {
		http.Error(w, "Upload rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	filename, data, err := readUpload(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, fmt.Sprintf("Upload exceeds %d bytes", maxErr.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to read upload: %v", err), http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		http.Error(w, "Uploaded file is empty", http.StatusBadRequest)
		return
	}

	doc, err := s.node.IngestDocument(r.Context(), filename, data)
	if err != nil {
		if errors.Is(err, ErrInvalidDocument) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.node.logger.Sugar().Errorw("Failed to ingest document", "filename", filename, "error", err)
		http.Error(w, "Failed to ingest document", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, types.UploadResponse{
		DocumentID:    doc.ID,
		RootHash:      doc.RootHash,
		NPages:        doc.PageCount,
		HashAlgorithm: doc.HashAlgorithm,
	})
}

// readUpload returns the filename and bytes of the uploaded document, taken
// from the multipart "file" field or from the raw request body.
func readUpload(r *http.Request) (string, []byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return "", nil, err
		}
		return r.Header.Get(FilenameHeader), data, nil
	}

	reader, err := r.MultipartReader()
	if err != nil {
		return "", nil, err
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return "", nil, fmt.Errorf("multipart form has no %q field", uploadFormField)
		}
		if err != nil {
			return "", nil, err
		}
		if part.FormName() != uploadFormField {
			if err := drainPart(part); err != nil {
				return "", nil, err
			}
			continue
		}
		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			return "", nil, err
		}
		return part.FileName(), data, nil
	}
}

func drainPart(part *multipart.Part) error {
	defer func() { _ = part.Close() }()
	_, err := io.Copy(io.Discard, part)
	return err
}

// handleListDocuments returns every stored document
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.node.ListDocuments(r.Context())
	if err != nil {
		s.node.logger.Sugar().Errorw("Failed to list documents", "error", err)
		http.Error(w, "Failed to list documents", http.StatusInternalServerError)
		return
	}
	if docs == nil {
		docs = []*types.Document{}
	}
	writeJSON(w, http.StatusOK, types.ListDocumentsResponse{Documents: docs})
}

// handleGetDocument returns one document's metadata
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	doc, err := s.node.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			http.Error(w, "Document not found", http.StatusNotFound)
			return
		}
		s.node.logger.Sugar().Errorw("Failed to load document", "document_id", id, "error", err)
		http.Error(w, "Failed to load document", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleDeleteDocument removes a document. Deleting an unknown id succeeds.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.node.DeleteDocument(r.Context(), id); err != nil {
		s.node.logger.Sugar().Errorw("Failed to delete document", "document_id", id, "error", err)
		http.Error(w, "Failed to delete document", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGenerateProof returns the inclusion proof of one page
func (s *Server) handleGenerateProof(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	page, err := strconv.Atoi(vars["page"])
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid page index %q", vars["page"]), http.StatusBadRequest)
		return
	}

	resp, err := s.node.GenerateProof(r.Context(), id, page)
	if err != nil {
		switch {
		case errors.Is(err, ErrDocumentNotFound):
			http.Error(w, "Document not found", http.StatusNotFound)
		case errors.Is(err, ErrPageOutOfRange):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			s.node.logger.Sugar().Errorw("Failed to generate proof", "document_id", id, "page_index", page, "error", err)
			http.Error(w, "Failed to generate proof", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleVerify checks a proof without consulting stored documents
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req types.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, types.VerifyResponse{Valid: s.node.VerifyProof(&req)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
