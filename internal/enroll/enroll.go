// Package enroll registers staff accounts and manages their enrollment
// images.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kozaktomas/staff-portal/internal/credential"
	"github.com/kozaktomas/staff-portal/internal/directory"
	"github.com/kozaktomas/staff-portal/internal/imagestore"
	"github.com/kozaktomas/staff-portal/internal/logger"
	"go.uber.org/zap"
)

// DefaultRole is assigned when a registration names no role.
const DefaultRole = "Staff"

// ErrNotImage means the uploaded face image is not a JPEG or PNG.
var ErrNotImage = errors.New("face image must be a JPEG or PNG image")

// ValidationError describes the first invalid registration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Registration is a new account request.
type Registration struct {
	Email     string `validate:"required,email,max=254"`
	Name      string `validate:"omitempty,max=128,person_name"`
	Password  string `validate:"required,min=8,max=128"`
	Role      string `validate:"omitempty,max=64,alphanum"`
	FaceImage []byte `validate:"-"`
}

var personName = regexp.MustCompile(`^[\p{L}][\p{L} .'\-]*$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("person_name", func(fl validator.FieldLevel) bool {
		return personName.MatchString(fl.Field().String())
	})
	return v
}

// validationError renders the first failed rule in a form a client can show.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate registration: %w", err)
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	var msg string
	switch fe.Tag() {
	case "required":
		msg = field + " is required"
	case "email":
		msg = field + " must be a valid email address"
	case "min":
		msg = fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		msg = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		msg = field + " is invalid"
	}
	return &ValidationError{Field: field, Message: msg}
}

// IsImage reports whether data looks like a JPEG or PNG.
func IsImage(data []byte) bool {
	switch http.DetectContentType(data) {
	case "image/jpeg", "image/png":
		return true
	}
	return false
}

// Service creates accounts in the directory and commits their enrollment
// images to the image store.
type Service struct {
	directory directory.ReadWriter
	images    imagestore.ReadWriter
	kind      directory.IdentityKind
	validate  *validator.Validate
	log       *zap.Logger
}

func NewService(dir directory.ReadWriter, images imagestore.ReadWriter, kind directory.IdentityKind, log *zap.Logger) *Service {
	if kind == "" {
		kind = directory.IdentityEmail
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		directory: dir,
		images:    images,
		kind:      kind,
		validate:  newValidator(),
		log:       log,
	}
}

// Kind is the identity field accounts are keyed by.
func (s *Service) Kind() directory.IdentityKind {
	return s.kind
}

// Register validates r, uploads its face image (if any) and adds the
// account: password hashed, role defaulted, unblocked, no last login.
// It returns directory.ErrUserExists for a taken identity key.
func (s *Service) Register(ctx context.Context, r Registration) (directory.UserRecord, error) {
	r.Email = strings.TrimSpace(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	r.Role = strings.TrimSpace(r.Role)

	if err := s.validate.Struct(r); err != nil {
		return directory.UserRecord{}, validationError(err)
	}
	if s.kind == directory.IdentityName && r.Name == "" {
		return directory.UserRecord{}, &ValidationError{Field: "name", Message: "name is required"}
	}
	if r.FaceImage != nil && !IsImage(r.FaceImage) {
		return directory.UserRecord{}, ErrNotImage
	}
	if r.Role == "" {
		r.Role = DefaultRole
	}

	user := directory.UserRecord{
		Email: r.Email,
		Name:  r.Name,
		Role:  r.Role,
	}
	key := user.IdentityKey(s.kind)

	// The image is committed before the row, so an existing account must be
	// ruled out first or its enrollment image would be overwritten.
	cache := directory.NewCache(s.directory, s.kind)
	if _, err := cache.Lookup(ctx, key, directory.Fresh); err == nil {
		return directory.UserRecord{}, fmt.Errorf("%q: %w", key, directory.ErrUserExists)
	} else if !errors.Is(err, directory.ErrUserNotFound) {
		return directory.UserRecord{}, fmt.Errorf("reading directory: %w", err)
	}

	hash, err := credential.Hash(r.Password)
	if err != nil {
		return directory.UserRecord{}, err
	}
	user.PasswordHash = hash

	if r.FaceImage != nil {
		ref := imagestore.FileName(user.Email)
		if err := s.images.Put(ctx, ref, r.FaceImage, imagestore.AddMessage(user.Email)); err != nil {
			return directory.UserRecord{}, fmt.Errorf("uploading face image: %w", err)
		}
		user.FaceImageFile = ref
	}

	if err := s.directory.AddUser(ctx, user); err != nil {
		return directory.UserRecord{}, fmt.Errorf("adding user: %w", err)
	}

	s.log.Info("user registered",
		zap.String("identity", logger.MaskEmail(user.Email)),
		zap.Bool("face", user.HasFace()))
	return user, nil
}

// SetFace replaces the enrollment image of the account with identity key
// and returns the image reference. The directory row is only touched when
// the account had no image or a differently named one.
func (s *Service) SetFace(ctx context.Context, key string, image []byte) (string, error) {
	if !IsImage(image) {
		return "", ErrNotImage
	}

	cache := directory.NewCache(s.directory, s.kind)
	user, err := cache.Lookup(ctx, key, directory.Fresh)
	if err != nil {
		return "", err
	}

	ref := imagestore.FileName(user.Email)
	if err := s.images.Put(ctx, ref, image, imagestore.UpdateMessage(user.Email)); err != nil {
		return "", fmt.Errorf("uploading face image: %w", err)
	}
	if user.FaceImageFile != ref {
		if err := s.directory.SetFaceImage(ctx, user.IdentityKey(s.kind), ref); err != nil {
			return "", fmt.Errorf("recording face image: %w", err)
		}
	}

	s.log.Info("face image replaced", zap.String("identity", logger.MaskEmail(user.Email)))
	return ref, nil
}

// Users lists every account.
func (s *Service) Users(ctx context.Context) ([]directory.UserRecord, error) {
	return s.directory.ListUsers(ctx)
}
