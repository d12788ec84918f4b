package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// sheetRow is one row of the Users sheet as returned by SheetDB. Every cell
// is a string.
type sheetRow struct {
	Email         string `json:"Email"`
	Name          string `json:"Name,omitempty"`
	PasswordHash  string `json:"PasswordHash"`
	Role          string `json:"Role"`
	IsBlocked     string `json:"IsBlocked"`
	LastLogin     string `json:"LastLogin"`
	FaceImageFile string `json:"FaceImageFile"`
}

func (r sheetRow) toRecord() UserRecord {
	return UserRecord{
		Email:         strings.TrimSpace(r.Email),
		Name:          strings.TrimSpace(r.Name),
		PasswordHash:  r.PasswordHash,
		Role:          r.Role,
		Blocked:       ParseBlocked(r.IsBlocked),
		LastLogin:     r.LastLogin,
		FaceImageFile: strings.TrimSpace(r.FaceImageFile),
	}
}

func rowFromRecord(u UserRecord) sheetRow {
	return sheetRow{
		Email:         u.Email,
		Name:          u.Name,
		PasswordHash:  u.PasswordHash,
		Role:          u.Role,
		IsBlocked:     FormatBlocked(u.Blocked),
		LastLogin:     u.LastLogin,
		FaceImageFile: u.FaceImageFile,
	}
}

type sheetData struct {
	Data []map[string]string `json:"data"`
}

// SheetDB is a Directory backed by a Google Sheet exposed through the
// SheetDB REST API.
type SheetDB struct {
	baseURL *url.URL
	sheet   string
	kind    IdentityKind
	client  *http.Client
}

// NewSheetDB creates a client for the SheetDB API at baseURL
// (https://sheetdb.io/api/v1/<id>).
func NewSheetDB(baseURL, sheet string, kind IdentityKind) (*SheetDB, error) {
	if baseURL == "" {
		return nil, errors.New("sheetdb url is required")
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid sheetdb url: %w", err)
	}
	if sheet == "" {
		sheet = "Users"
	}
	return &SheetDB{
		baseURL: parsed,
		sheet:   sheet,
		kind:    kind,
		client:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// keyColumn is the sheet column holding the identity key.
func (s *SheetDB) keyColumn() string {
	if s.kind == IdentityName {
		return "Name"
	}
	return "Email"
}

// resolveURL joins path segments onto the base URL and selects the sheet.
func (s *SheetDB) resolveURL(segments ...string) string {
	u := s.baseURL.JoinPath(segments...)
	q := u.Query()
	q.Set("sheet", s.sheet)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *SheetDB) ListUsers(ctx context.Context) ([]UserRecord, error) {
	rows, err := doRequestJSON[[]sheetRow](ctx, s.client, http.MethodGet, s.resolveURL(), nil, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]UserRecord, 0, len(*rows))
	for _, row := range *rows {
		rec := row.toRecord()
		// Blank lines and notes in the sheet come back as rows without a key.
		if rec.IdentityKey(s.kind) == "" {
			continue
		}
		users = append(users, rec)
	}
	return users, nil
}

type sheetUpdateResponse struct {
	Updated int `json:"updated"`
}

type sheetCreateResponse struct {
	Created int `json:"created"`
}

func (s *SheetDB) UpdateLastLogin(ctx context.Context, key string, ts time.Time) error {
	return s.updateColumn(ctx, key, "LastLogin", FormatTimestamp(ts))
}

func (s *SheetDB) SetFaceImage(ctx context.Context, key, faceImageFile string) error {
	return s.updateColumn(ctx, key, "FaceImageFile", faceImageFile)
}

func (s *SheetDB) updateColumn(ctx context.Context, key, column, value string) error {
	body := sheetData{Data: []map[string]string{{column: value}}}
	resp, err := doRequestJSON[sheetUpdateResponse](ctx, s.client, http.MethodPut,
		s.resolveURL(s.keyColumn(), key), body, http.StatusOK)
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	if resp.Updated == 0 {
		return fmt.Errorf("update %s for %q: %w", column, key, ErrUserNotFound)
	}
	return nil
}

// AddUser appends a row. Existing identities are rejected.
func (s *SheetDB) AddUser(ctx context.Context, user UserRecord) error {
	existing, err := s.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range existing {
		if SameIdentity(s.kind, u.IdentityKey(s.kind), user.IdentityKey(s.kind)) {
			return fmt.Errorf("%w: %s", ErrUserExists, user.IdentityKey(s.kind))
		}
	}

	row := rowFromRecord(user)
	body := struct {
		Data []sheetRow `json:"data"`
	}{Data: []sheetRow{row}}

	if _, err := doRequestJSON[sheetCreateResponse](ctx, s.client, http.MethodPost, s.resolveURL(), body,
		http.StatusOK, http.StatusCreated); err != nil {
		return fmt.Errorf("add user: %w", err)
	}
	return nil
}
