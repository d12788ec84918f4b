package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/kozaktomas/staff-portal/internal/database"
	"github.com/mileusna/useragent"
)

// LoginEventRepository stores the login audit trail.
type LoginEventRepository struct {
	pool *Pool
}

func NewLoginEventRepository(pool *Pool) *LoginEventRepository {
	return &LoginEventRepository{pool: pool}
}

// Record inserts one event. Browser, OS and device are derived from the
// user agent when the caller left them empty.
func (r *LoginEventRepository) Record(ctx context.Context, e database.LoginEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.UserAgent != "" && e.Browser == "" {
		ua := useragent.Parse(e.UserAgent)
		e.Browser = ua.Name
		e.OS = ua.OS
		e.Device = deviceClass(ua)
	}

	query := `
		INSERT INTO login_events (id, identity_key, method, success, reason, distance,
			client_ip, user_agent, browser, os, device, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, NOW()))
	`

	var createdAt sql.NullTime
	if !e.CreatedAt.IsZero() {
		createdAt = sql.NullTime{Time: e.CreatedAt, Valid: true}
	}
	var distance sql.NullFloat64
	if e.Distance != nil {
		distance = sql.NullFloat64{Float64: *e.Distance, Valid: true}
	}

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.IdentityKey, e.Method, e.Success, e.Reason, distance,
		e.ClientIP, e.UserAgent, e.Browser, e.OS, e.Device, createdAt,
	)
	if err != nil {
		return fmt.Errorf("record login event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (r *LoginEventRepository) Recent(ctx context.Context, limit int) ([]database.LoginEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, identity_key, method, success, reason, distance,
			client_ip, user_agent, browser, os, device, created_at
		FROM login_events
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query login events: %w", err)
	}
	defer rows.Close()

	var events []database.LoginEvent
	for rows.Next() {
		var e database.LoginEvent
		var distance sql.NullFloat64
		if err := rows.Scan(
			&e.ID, &e.IdentityKey, &e.Method, &e.Success, &e.Reason, &distance,
			&e.ClientIP, &e.UserAgent, &e.Browser, &e.OS, &e.Device, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan login event: %w", err)
		}
		if distance.Valid {
			d := distance.Float64
			e.Distance = &d
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate login events: %w", err)
	}
	return events, nil
}

func deviceClass(ua useragent.UserAgent) string {
	switch {
	case ua.Bot:
		return "bot"
	case ua.Tablet:
		return "tablet"
	case ua.Mobile:
		return "mobile"
	case ua.Desktop:
		return "desktop"
	}
	if ua.Device != "" {
		return ua.Device
	}
	return "unknown"
}

var (
	_ database.LoginEventWriter = (*LoginEventRepository)(nil)
	_ database.LoginEventReader = (*LoginEventRepository)(nil)
)
