package directory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ReadMode selects whether a read may be served from the cache.
type ReadMode int

const (
	// Cached serves from the last successful read when one exists.
	Cached ReadMode = iota
	// Fresh always goes to the directory and refreshes the cache.
	Fresh
)

// Cache memoizes ListUsers for the lifetime of one login session. It is
// owned by that session and never shared between sessions.
type Cache struct {
	dir  Directory
	kind IdentityKind
	now  func() time.Time

	mu        sync.Mutex
	users     []UserRecord
	loaded    bool
	fetchedAt time.Time
}

func NewCache(dir Directory, kind IdentityKind) *Cache {
	return &Cache{dir: dir, kind: kind, now: time.Now}
}

// Kind is the identity field this cache resolves keys against.
func (c *Cache) Kind() IdentityKind {
	return c.kind
}

// Users returns all directory records.
func (c *Cache) Users(ctx context.Context, mode ReadMode) ([]UserRecord, error) {
	c.mu.Lock()
	if mode == Cached && c.loaded {
		users := c.users
		c.mu.Unlock()
		return users, nil
	}
	c.mu.Unlock()

	users, err := c.dir.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.users = users
	c.loaded = true
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return users, nil
}

// Lookup finds the record whose identity key matches key.
func (c *Cache) Lookup(ctx context.Context, key string, mode ReadMode) (UserRecord, error) {
	users, err := c.Users(ctx, mode)
	if err != nil {
		return UserRecord{}, err
	}
	for _, u := range users {
		if SameIdentity(c.kind, u.IdentityKey(c.kind), key) {
			return u, nil
		}
	}
	return UserRecord{}, fmt.Errorf("%q: %w", key, ErrUserNotFound)
}

// UpdateLastLogin writes the timestamp through to the directory and, on
// success, to the cached copy of the record.
func (c *Cache) UpdateLastLogin(ctx context.Context, user UserRecord, ts time.Time) error {
	key := user.IdentityKey(c.kind)
	if err := c.dir.UpdateLastLogin(ctx, key, ts); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.users {
		if SameIdentity(c.kind, c.users[i].IdentityKey(c.kind), key) {
			updated := make([]UserRecord, len(c.users))
			copy(updated, c.users)
			updated[i].LastLogin = FormatTimestamp(ts)
			c.users = updated
			break
		}
	}
	return nil
}

// FetchedAt is the time of the last successful directory read.
func (c *Cache) FetchedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchedAt
}
