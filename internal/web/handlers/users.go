package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/kozaktomas/staff-portal/internal/directory"
	"github.com/kozaktomas/staff-portal/internal/enroll"
	"github.com/kozaktomas/staff-portal/internal/web/middleware"
	"go.uber.org/zap"
)

// UsersHandler handles registration and enrollment image endpoints
type UsersHandler struct {
	enroll *enroll.Service
	log    *zap.Logger
}

func NewUsersHandler(svc *enroll.Service, log *zap.Logger) *UsersHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UsersHandler{enroll: svc, log: log}
}

// respondEnrollError maps registration and enrollment errors to responses.
func (h *UsersHandler) respondEnrollError(w http.ResponseWriter, err error) {
	var verr *enroll.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, enroll.ErrNotImage):
		respondError(w, http.StatusBadRequest, "faceImage must be a JPEG or PNG image")
	case errors.Is(err, directory.ErrUserExists):
		respondError(w, http.StatusConflict, "user already exists")
	case errors.Is(err, directory.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "user not found")
	default:
		h.log.Error("enrollment failed", zap.String("error", sanitizeForLog(err.Error())))
		respondError(w, http.StatusServiceUnavailable, "service unavailable")
	}
}

// formImage reads the first file of field, nil when the field is absent.
func formImage(r *http.Request, field string) ([]byte, error) {
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil, nil
	}
	data, err := readFormFile(files[0])
	if err != nil {
		return nil, enroll.ErrNotImage
	}
	return data, nil
}

// Register creates an account from the multipart fields email, name,
// password and an optional faceImage file. Self-registered accounts always
// get the default role; other roles are assigned with the users CLI.
func (h *UsersHandler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidForm)
		return
	}
	defer r.MultipartForm.RemoveAll()

	if role := strings.TrimSpace(r.FormValue("role")); role != "" && role != enroll.DefaultRole {
		h.log.Warn("self-registration asked for a role", zap.String("role", sanitizeForLog(role)))
		respondError(w, http.StatusForbidden, "role is assigned by an administrator")
		return
	}

	image, err := formImage(r, "faceImage")
	if err != nil {
		h.respondEnrollError(w, err)
		return
	}

	user, err := h.enroll.Register(r.Context(), enroll.Registration{
		Email:     r.FormValue("email"),
		Name:      r.FormValue("name"),
		Password:  r.FormValue("password"),
		Role:      enroll.DefaultRole,
		FaceImage: image,
	})
	if err != nil {
		h.respondEnrollError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

// SetFace replaces the enrollment image of the signed-in user
func (h *UsersHandler) SetFace(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidForm)
		return
	}
	defer r.MultipartForm.RemoveAll()

	image, err := formImage(r, "faceImage")
	if err != nil {
		h.respondEnrollError(w, err)
		return
	}
	if image == nil {
		respondError(w, http.StatusBadRequest, "faceImage is required")
		return
	}

	ref, err := h.enroll.SetFace(r.Context(), session.IdentityKey, image)
	if err != nil {
		h.respondEnrollError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"face_image_file": ref})
}

// List returns every account without credentials
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.enroll.Users(r.Context())
	if err != nil {
		h.log.Error("directory read failed", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "directory unavailable")
		return
	}
	if users == nil {
		users = []directory.UserRecord{}
	}
	respondJSON(w, http.StatusOK, users)
}
