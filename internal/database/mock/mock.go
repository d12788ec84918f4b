// Package mock provides mock implementations of the portal's storage and
// extraction boundaries for testing.
package mock

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/staff-portal/internal/database"
	"github.com/kozaktomas/staff-portal/internal/directory"
	"github.com/kozaktomas/staff-portal/internal/facematch"
	"github.com/kozaktomas/staff-portal/internal/fingerprint"
	"github.com/kozaktomas/staff-portal/internal/imagestore"
)

// MockSessionStore is a mock implementation of database.SessionStore
type MockSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]database.StoredSession
	now      func() time.Time

	// Error injection
	SaveError   error
	GetError    error
	DeleteError error
}

// NewMockSessionStore creates a new mock session store
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{
		sessions: make(map[string]database.StoredSession),
		now:      time.Now,
	}
}

func (m *MockSessionStore) Save(ctx context.Context, s database.StoredSession) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MockSessionStore) Get(ctx context.Context, id string) (*database.StoredSession, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok || !s.ExpiresAt.After(m.now()) {
		return nil, nil
	}
	return &s, nil
}

func (m *MockSessionStore) Delete(ctx context.Context, id string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MockSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := m.now()
	for id, s := range m.sessions {
		if !s.ExpiresAt.After(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Count returns the number of stored sessions, expired ones included
func (m *MockSessionStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// MockLoginEvents is a mock implementation of the login event reader and writer
type MockLoginEvents struct {
	mu     sync.Mutex
	events []database.LoginEvent

	// Error injection
	RecordError error
}

func NewMockLoginEvents() *MockLoginEvents {
	return &MockLoginEvents{}
}

func (m *MockLoginEvents) Record(ctx context.Context, e database.LoginEvent) error {
	if m.RecordError != nil {
		return m.RecordError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Recent returns events newest first
func (m *MockLoginEvents) Recent(ctx context.Context, limit int) ([]database.LoginEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.events)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Events returns every recorded event in insertion order
func (m *MockLoginEvents) Events() []database.LoginEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

// MockDescriptorCache is a mock implementation of database.DescriptorCache
type MockDescriptorCache struct {
	mu      sync.Mutex
	entries map[string]database.StoredDescriptor

	GetCalls int
	PutCalls int

	// Error injection
	GetError error
	PutError error
}

func NewMockDescriptorCache() *MockDescriptorCache {
	return &MockDescriptorCache{entries: make(map[string]database.StoredDescriptor)}
}

func (m *MockDescriptorCache) Get(ctx context.Context, contentHash, model string) (*database.StoredDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	if m.GetError != nil {
		return nil, m.GetError
	}
	d, ok := m.entries[contentHash+"/"+model]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *MockDescriptorCache) Put(ctx context.Context, d database.StoredDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls++
	if m.PutError != nil {
		return m.PutError
	}
	m.entries[d.ContentHash+"/"+d.Model] = d
	return nil
}

// Len returns the number of cached descriptors
func (m *MockDescriptorCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// MockDirectory is an in-memory directory.ReadWriter. Records are matched
// on the field selected by Kind.
type MockDirectory struct {
	mu    sync.Mutex
	users []directory.UserRecord
	Kind  directory.IdentityKind

	ListCalls        int
	LastLoginUpdates []LastLoginUpdate

	// Error injection
	ListError    error
	UpdateError  error
	AddError     error
	SetFaceError error

	// OnList runs after each ListUsers call; tests use it to change the
	// directory between reads.
	OnList func(call int)
}

// LastLoginUpdate tracks an UpdateLastLogin call
type LastLoginUpdate struct {
	Key string
	At  time.Time
}

func NewMockDirectory(users ...directory.UserRecord) *MockDirectory {
	return &MockDirectory{users: slices.Clone(users), Kind: directory.IdentityEmail}
}

func (m *MockDirectory) ListUsers(ctx context.Context) ([]directory.UserRecord, error) {
	m.mu.Lock()
	m.ListCalls++
	call := m.ListCalls
	err := m.ListError
	users := slices.Clone(m.users)
	hook := m.OnList
	m.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (m *MockDirectory) UpdateLastLogin(ctx context.Context, key string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateError != nil {
		return m.UpdateError
	}
	i := m.index(key)
	if i < 0 {
		return fmt.Errorf("%q: %w", key, directory.ErrUserNotFound)
	}
	m.users[i].LastLogin = directory.FormatTimestamp(ts)
	m.LastLoginUpdates = append(m.LastLoginUpdates, LastLoginUpdate{Key: key, At: ts})
	return nil
}

func (m *MockDirectory) AddUser(ctx context.Context, user directory.UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AddError != nil {
		return m.AddError
	}
	if m.index(user.IdentityKey(m.Kind)) >= 0 {
		return directory.ErrUserExists
	}
	m.users = append(m.users, user)
	return nil
}

func (m *MockDirectory) SetFaceImage(ctx context.Context, key, faceImageFile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetFaceError != nil {
		return m.SetFaceError
	}
	i := m.index(key)
	if i < 0 {
		return fmt.Errorf("%q: %w", key, directory.ErrUserNotFound)
	}
	m.users[i].FaceImageFile = faceImageFile
	return nil
}

// SetBlocked flips the blocked flag of the user with key
func (m *MockDirectory) SetBlocked(key string, blocked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.index(key); i >= 0 {
		m.users[i].Blocked = blocked
	}
}

// RemoveUser deletes the user with key
func (m *MockDirectory) RemoveUser(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.index(key); i >= 0 {
		m.users = slices.Delete(m.users, i, i+1)
	}
}

// User returns the current record for key
func (m *MockDirectory) User(key string) (directory.UserRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.index(key); i >= 0 {
		return m.users[i], true
	}
	return directory.UserRecord{}, false
}

func (m *MockDirectory) index(key string) int {
	for i, u := range m.users {
		if directory.SameIdentity(m.Kind, u.IdentityKey(m.Kind), key) {
			return i
		}
	}
	return -1
}

// MockImageStore is an in-memory imagestore.ReadWriter
type MockImageStore struct {
	mu     sync.Mutex
	images map[string][]byte

	FetchCalls []string
	Commits    []string

	// Error injection
	FetchError error
	PutError   error
}

func NewMockImageStore() *MockImageStore {
	return &MockImageStore{images: make(map[string][]byte)}
}

// SetImage stores data under ref without recording a commit
func (m *MockImageStore) SetImage(ref string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[ref] = data
}

func (m *MockImageStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchCalls = append(m.FetchCalls, ref)
	if m.FetchError != nil {
		return nil, m.FetchError
	}
	data, ok := m.images[ref]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, imagestore.ErrNotFound)
	}
	return data, nil
}

func (m *MockImageStore) Put(ctx context.Context, ref string, data []byte, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutError != nil {
		return m.PutError
	}
	m.images[ref] = data
	m.Commits = append(m.Commits, message)
	return nil
}

// MockExtractor maps image bytes to descriptors. Images it does not know
// yield fingerprint.ErrNoFace.
type MockExtractor struct {
	mu          sync.Mutex
	descriptors map[string]facematch.Descriptor
	errors      map[string]error
	ModelName   string

	Calls int

	// Error injection, applies to every call
	DescribeError error
}

func NewMockExtractor() *MockExtractor {
	return &MockExtractor{
		descriptors: make(map[string]facematch.Descriptor),
		errors:      make(map[string]error),
		ModelName:   "mock-face",
	}
}

// Set registers the descriptor returned for image
func (m *MockExtractor) Set(image []byte, d facematch.Descriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.descriptors[string(image)] = d
}

// SetError registers the error returned for image
func (m *MockExtractor) SetError(image []byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[string(image)] = err
}

func (m *MockExtractor) Describe(ctx context.Context, image []byte) (facematch.Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.DescribeError != nil {
		return nil, m.DescribeError
	}
	if err, ok := m.errors[string(image)]; ok {
		return nil, err
	}
	d, ok := m.descriptors[string(image)]
	if !ok {
		return nil, fingerprint.ErrNoFace
	}
	return slices.Clone(d), nil
}

func (m *MockExtractor) Model() string {
	return m.ModelName
}

// CallCount returns the number of Describe calls so far
func (m *MockExtractor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

var (
	_ database.SessionStore     = (*MockSessionStore)(nil)
	_ database.LoginEventWriter = (*MockLoginEvents)(nil)
	_ database.LoginEventReader = (*MockLoginEvents)(nil)
	_ database.DescriptorCache  = (*MockDescriptorCache)(nil)
	_ directory.ReadWriter      = (*MockDirectory)(nil)
	_ imagestore.ReadWriter     = (*MockImageStore)(nil)
)
