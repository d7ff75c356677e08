package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/impbridge/impbridge/internal/profile"
)

// sqlStore reads profiles from the client_profile and route_profile
// tables through database/sql, using the pgx stdlib driver for Postgres
// and go-sql-driver for MySQL.
type sqlStore struct {
	db   *sql.DB
	kind Kind
}

func openSQL(kind Kind, dsn string) (*sqlStore, error) {
	driver := "mysql"
	if kind == KindPostgres {
		driver = "pgx"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", kind, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	return &sqlStore{db: db, kind: kind}, nil
}

// placeholder renders the n-th positional parameter in the backend's
// dialect.
func (s *sqlStore) placeholder(n int) string {
	if s.kind == KindPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

const clientColumns = `client_id, kind, base_address, secret, user_agent,
	max_text, timeout_millis, prefix_user, disable_tls_validation, enabled`

func (s *sqlStore) Clients(ctx context.Context) ([]profile.Client, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+clientColumns+" FROM client_profile")
	if err != nil {
		return nil, fmt.Errorf("querying client profiles: %w", err)
	}
	defer rows.Close()

	var clients []profile.Client
	for rows.Next() {
		var c profile.Client
		var secret, userAgent sql.NullString
		if err := rows.Scan(&c.ID, &c.Kind, &c.BaseAddress, &secret, &userAgent,
			&c.MaxText, &c.TimeoutMillis, &c.PrefixUser, &c.DisableTLSValidation,
			&c.Enabled); err != nil {
			return nil, fmt.Errorf("scanning client profile: %w", err)
		}
		c.Secret = secret.String
		c.UserAgent = userAgent.String
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

const routeColumns = `route_id, is_remote_originated, enabled, clients,
	tags, secret, throttle_rate, replies`

func (s *sqlStore) Routes(ctx context.Context, dir profile.Direction) ([]profile.Route, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+routeColumns+" FROM route_profile WHERE is_remote_originated = "+s.placeholder(1),
		dir == profile.RemoteOriginated)
	if err != nil {
		return nil, fmt.Errorf("querying route profiles: %w", err)
	}
	defer rows.Close()

	var routes []profile.Route
	for rows.Next() {
		var r profile.Route
		var tags, secret sql.NullString
		if err := rows.Scan(&r.ID, &r.IsRemoteOriginated, &r.Enabled, &r.Clients,
			&tags, &secret, &r.ThrottleRate, &r.Replies); err != nil {
			return nil, fmt.Errorf("scanning route profile: %w", err)
		}
		r.Tags = tags.String
		r.Secret = secret.String
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
