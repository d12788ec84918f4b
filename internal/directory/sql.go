package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// SQL is a Directory backed by a MySQL/MariaDB users table:
//
//	CREATE TABLE users (
//	  id              INT AUTO_INCREMENT PRIMARY KEY,
//	  email           VARCHAR(255) NOT NULL UNIQUE,
//	  name            VARCHAR(255) NOT NULL DEFAULT '',
//	  password_hash   VARCHAR(255) NOT NULL,
//	  role            VARCHAR(64)  NOT NULL DEFAULT 'Staff',
//	  is_blocked      VARCHAR(8)   NOT NULL DEFAULT 'FALSE',
//	  last_login      VARCHAR(64)  NOT NULL DEFAULT '',
//	  face_image_file VARCHAR(255) NOT NULL DEFAULT ''
//	);
//
// is_blocked is read as text so both TINYINT(1) and legacy string columns work.
type SQL struct {
	db   *sql.DB
	kind IdentityKind
}

// OpenSQL opens and pings a MySQL connection pool.
func OpenSQL(dsn string, kind IdentityKind) (*SQL, error) {
	if dsn == "" {
		return nil, errors.New("MySQL DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	return NewSQL(db, kind), nil
}

// NewSQL wraps an existing connection pool.
func NewSQL(db *sql.DB, kind IdentityKind) *SQL {
	return &SQL{db: db, kind: kind}
}

// Close closes the connection pool.
func (s *SQL) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database connection: %w", err)
	}
	return nil
}

func (s *SQL) keyColumn() string {
	if s.kind == IdentityName {
		return "name"
	}
	return "email"
}

func (s *SQL) ListUsers(ctx context.Context) ([]UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT email, name, password_hash, role, CAST(is_blocked AS CHAR), last_login, face_image_file
		FROM users
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []UserRecord
	for rows.Next() {
		var u UserRecord
		var blocked sql.NullString
		if err := rows.Scan(&u.Email, &u.Name, &u.PasswordHash, &u.Role, &blocked, &u.LastLogin, &u.FaceImageFile); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Blocked = ParseBlocked(blocked.String)
		if strings.TrimSpace(u.IdentityKey(s.kind)) == "" {
			continue
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *SQL) UpdateLastLogin(ctx context.Context, key string, ts time.Time) error {
	return s.updateColumn(ctx, key, "last_login", FormatTimestamp(ts))
}

func (s *SQL) SetFaceImage(ctx context.Context, key, faceImageFile string) error {
	return s.updateColumn(ctx, key, "face_image_file", faceImageFile)
}

// updateColumn verifies the row exists first: MySQL reports zero affected
// rows when the value is unchanged.
func (s *SQL) updateColumn(ctx context.Context, key, column, value string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE `+s.keyColumn()+` = ?`, key).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update %s for %q: %w", column, key, ErrUserNotFound)
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}

	query := `UPDATE users SET ` + column + ` = ? WHERE ` + s.keyColumn() + ` = ?`
	if _, err := s.db.ExecContext(ctx, query, value, key); err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	return nil
}

func (s *SQL) AddUser(ctx context.Context, user UserRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, name, password_hash, role, is_blocked, last_login, face_image_file)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.Email, user.Name, user.PasswordHash, user.Role, FormatBlocked(user.Blocked), user.LastLogin, user.FaceImageFile)

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return fmt.Errorf("%w: %s", ErrUserExists, user.Email)
	}
	if err != nil {
		return fmt.Errorf("add user: %w", err)
	}
	return nil
}
