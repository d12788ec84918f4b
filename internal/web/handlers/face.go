package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/staff-portal/internal/camera"
	"github.com/kozaktomas/staff-portal/internal/web/middleware"
	"go.uber.org/zap"
)

// FaceHandler handles face-login endpoints
type FaceHandler struct {
	sessions       *FaceSessions
	sessionManager *middleware.SessionManager
	log            *zap.Logger
}

func NewFaceHandler(sessions *FaceSessions, sm *middleware.SessionManager, log *zap.Logger) *FaceHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &FaceHandler{
		sessions:       sessions,
		sessionManager: sm,
		log:            log,
	}
}

// OpenResponse describes a newly opened face-login session
type OpenResponse struct {
	ID       string `json:"id"`
	Enrolled int    `json:"enrolled"`
	Ready    bool   `json:"ready"`
}

// Open starts a face-login session and loads its enrolled pool
func (h *FaceHandler) Open(w http.ResponseWriter, r *http.Request) {
	fs, err := h.sessions.Open(r.Context())
	switch {
	case errors.Is(err, ErrTooManyFaceSessions):
		h.log.Warn("face session refused", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "too many open face sessions, try again later")
		return
	case err != nil:
		h.log.Error("face session init failed", zap.String("session", fs.ID), zap.Error(err))
	}
	respondJSON(w, http.StatusCreated, OpenResponse{
		ID:       fs.ID,
		Enrolled: fs.Engine.Enrolled(),
		Ready:    fs.Engine.Ready(),
	})
}

// Login runs a face login over the uploaded "frame" parts
func (h *FaceHandler) Login(w http.ResponseWriter, r *http.Request) {
	fs := h.sessions.Get(chi.URLParam(r, "id"))
	if fs == nil {
		respondError(w, http.StatusNotFound, "face session not found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidForm)
		return
	}
	defer r.MultipartForm.RemoveAll()

	parts := r.MultipartForm.File["frame"]
	if len(parts) == 0 {
		respondError(w, http.StatusBadRequest, "at least one frame is required")
		return
	}
	frames := make([][]byte, 0, len(parts))
	for _, fh := range parts {
		data, err := readFormFile(fh)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid frame")
			return
		}
		frames = append(frames, data)
	}

	res := fs.Engine.LoginWithFace(r.Context(), camera.NewFrames(frames...))
	respondLogin(w, r, h.sessionManager, res)
}

// Cancel aborts and closes a face-login session
func (h *FaceHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Cancel(chi.URLParam(r, "id")) {
		respondError(w, http.StatusNotFound, "face session not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}
