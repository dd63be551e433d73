package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"scfingest/internal/api"
	"scfingest/internal/blobstore"
	"scfingest/internal/ingest"
	"scfingest/internal/store"
)

const (
	defaultListLimit = 50
	recentIngests    = 5
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.acquireLimiter(s.uploadLimiter, w, r, "upload") {
		return
	}
	defer s.releaseLimiter(s.uploadLimiter)

	session, _ := sessionFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.maxRequestBytes)
	if err := r.ParseMultipartForm(s.multipartMaxMemory); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyMultipartError(err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	sub, err := submissionFromForm(r.MultipartForm, s.manifest)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidMultipart))
		return
	}

	start := time.Now()
	result, err := s.gateway.Ingest(r.Context(), sub, s.manifest)
	if err != nil {
		if errors.Is(err, ingest.ErrUnknownSlot) {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeUnknownSlot))
			return
		}
		s.writeErrorReq(w, r, http.StatusInternalServerError, err)
		return
	}

	id := uuid.NewString()
	resp := uploadResponse(id, result)
	s.recordIngest(r, session, id, result)

	counts := result.Counts()
	s.log().Info("ingest complete",
		"id", id,
		"user", session.Identity(),
		"overall", result.Overall,
		"stored", counts[ingest.StatusStored],
		"rejected", counts[ingest.StatusRejected],
		"failed", counts[ingest.StatusFailed],
		"duration_ms", time.Since(start).Milliseconds(),
	)

	status := statusForOverall(result.Overall)
	if wantsHTML(r) {
		s.renderPage(w, r, status, "upload_result", pageData{
			Title:  "Upload result",
			User:   session.User,
			Result: &resp,
		})
		return
	}
	s.writeJSON(w, status, resp)
}

// recordIngest writes the ledger entry. A ledger failure is logged and
// never changes the response; the objects are already stored.
func (s *Server) recordIngest(r *http.Request, session Session, id string, result ingest.Result) {
	if s.ledger == nil {
		return
	}
	rec := &store.IngestRecord{
		ID:        id,
		Username:  session.Identity(),
		Namespace: s.gateway.Namespace(),
		Overall:   string(result.Overall),
		Parts:     make([]store.IngestPartRecord, 0, len(result.Parts)),
	}
	if session.User != nil {
		rec.UserID = session.User.ID
	}
	for _, p := range result.Parts {
		rec.Parts = append(rec.Parts, store.IngestPartRecord{
			Slot:       p.Slot,
			Status:     string(p.Status),
			StorageKey: p.StorageKey,
			Reason:     p.Reason,
			Filename:   p.Filename,
			SizeBytes:  p.SizeBytes,
		})
	}
	if err := s.ledger.RecordIngest(r.Context(), rec); err != nil {
		s.log().Error("record ingest", "id", id, "error", err)
	}
}

// submissionFromForm takes the first file of every file field. Inputs left
// empty by a browser arrive without a filename and count as absent.
func submissionFromForm(form *multipart.Form, m *ingest.Manifest) (*ingest.Submission, error) {
	sub := ingest.NewSubmission()
	if form == nil {
		return sub, nil
	}
	for field, headers := range form.File {
		if len(headers) == 0 || headers[0].Filename == "" {
			continue
		}
		header := headers[0]
		slot, known := m.Slot(field)
		if !known || header.Size > slot.MaxSizeBytes {
			sub.AddUnread(field, header.Filename, header.Size)
			continue
		}
		payload, err := readFormFile(header, slot.MaxSizeBytes)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", field, err)
		}
		if int64(len(payload)) > slot.MaxSizeBytes {
			sub.AddUnread(field, header.Filename, int64(len(payload)))
			continue
		}
		sub.Add(field, header.Filename, payload)
	}
	return sub, nil
}

// readFormFile reads at most limit+1 bytes so an understated header size
// cannot force a larger buffer.
func readFormFile(header *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, limit+1))
}

func classifyMultipartError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	}
	if errors.Is(err, http.ErrNotMultipart) {
		return badRequestCode(fmt.Errorf("expected multipart/form-data body"), ErrCodeInvalidMultipart)
	}
	return badRequestCode(fmt.Errorf("invalid multipart body: %w", err), ErrCodeInvalidMultipart)
}

func statusForOverall(overall ingest.Overall) int {
	switch overall {
	case ingest.OverallAllStored:
		return http.StatusOK
	case ingest.OverallPartialFailure:
		return http.StatusMultiStatus
	default:
		return http.StatusBadRequest
	}
}

func uploadResponse(id string, result ingest.Result) api.UploadResponse {
	parts := make([]api.PartResponse, 0, len(result.Parts))
	for _, p := range result.Parts {
		parts = append(parts, api.PartResponse{
			Slot:       p.Slot,
			Status:     string(p.Status),
			StorageKey: p.StorageKey,
			Reason:     p.Reason,
			Filename:   p.Filename,
			SizeBytes:  p.SizeBytes,
		})
	}
	return api.UploadResponse{ID: id, Overall: string(result.Overall), Parts: parts}
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.writeErrorReq(w, r, http.StatusNotImplemented, makeAPIError(http.StatusNotImplemented,
			"not_implemented", ErrCodeNotImplemented, fmt.Errorf("ingest ledger is not configured")))
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	mine, err := queryBool(r, "mine")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if limit == 0 {
		limit = defaultListLimit
	}

	filter := store.IngestFilter{Limit: limit}
	if mine {
		session, _ := sessionFromContext(r.Context())
		filter.UserID = session.User.ID
	}
	records, err := s.ledger.ListIngests(r.Context(), filter)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ingestSummaries(records))
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.writeErrorReq(w, r, http.StatusNotImplemented, makeAPIError(http.StatusNotImplemented,
			"not_implemented", ErrCodeNotImplemented, fmt.Errorf("ingest ledger is not configured")))
		return
	}
	rec, err := s.ledger.GetIngest(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if rec == nil {
		s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("ingest not found"), ErrCodeIngestNotFound))
		return
	}
	s.writeJSON(w, http.StatusOK, ingestSummary(*rec))
}

func ingestSummaries(records []store.IngestRecord) []api.IngestSummary {
	out := make([]api.IngestSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, ingestSummary(rec))
	}
	return out
}

func ingestSummary(rec store.IngestRecord) api.IngestSummary {
	parts := make([]api.PartResponse, 0, len(rec.Parts))
	for _, p := range rec.Parts {
		parts = append(parts, api.PartResponse{
			Slot:       p.Slot,
			Status:     p.Status,
			StorageKey: p.StorageKey,
			Reason:     p.Reason,
			Filename:   p.Filename,
			SizeBytes:  p.SizeBytes,
		})
	}
	return api.IngestSummary{
		ID:        rec.ID,
		Username:  rec.Username,
		Namespace: rec.Namespace,
		Overall:   rec.Overall,
		CreatedAt: rec.CreatedAt,
		Parts:     parts,
	}
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	slots := s.manifest.Slots()
	out := make([]api.SlotResponse, 0, len(slots))
	for _, slot := range slots {
		out = append(out, api.SlotResponse{
			Name:         slot.Name,
			Required:     slot.Required,
			Extensions:   slot.Extensions,
			MaxSizeBytes: slot.MaxSizeBytes,
			StorageKey:   s.gateway.KeyFor(slot),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	slot, ok := s.manifest.Slot(r.PathValue("slot"))
	if !ok {
		s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("unknown slot"), ErrCodeSlotNotFound))
		return
	}

	key := s.gateway.KeyFor(slot)
	payload, err := s.blobs.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("no file stored for %s", slot.Name), ErrCodeObjectNotFound))
			return
		}
		s.writeErrorReq(w, r, http.StatusBadGateway, makeAPIError(http.StatusBadGateway, "unavailable",
			ErrCodeBlobStore, fmt.Errorf("%s: %w", blobstore.Reason(err), err)))
		return
	}

	contentType := mime.TypeByExtension(slot.KeyExtension())
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": slot.Name + slot.KeyExtension(),
	}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}
