package database

import (
	"context"
	"fmt"
	"net"

	"github.com/jroosing/dnsfwd/internal/forwarder"
)

// UpstreamServer is the persisted row shape for one upstream resolver.
type UpstreamServer struct {
	ID          int64
	Address     string
	Port        int
	DisplayName string
	Position    int
	Enabled     bool
}

// ListUpstreams returns every enabled upstream ordered by position.
func (db *DB) ListUpstreams(ctx context.Context) ([]UpstreamServer, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, address, port, display_name, position, enabled
		FROM upstream_servers
		WHERE enabled = 1
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("query upstream servers: %w", err)
	}
	defer rows.Close()

	var out []UpstreamServer
	for rows.Next() {
		var u UpstreamServer
		if err := rows.Scan(&u.ID, &u.Address, &u.Port, &u.DisplayName, &u.Position, &u.Enabled); err != nil {
			return nil, fmt.Errorf("scan upstream server: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ReplaceUpstreams atomically replaces the upstream pool, assigning
// position by slice order.
func (db *DB) ReplaceUpstreams(ctx context.Context, servers []UpstreamServer) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM upstream_servers"); err != nil {
		return fmt.Errorf("clear upstream servers: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO upstream_servers (address, port, display_name, position, enabled)
		VALUES (?, ?, ?, ?, 1)
	`)
	if err != nil {
		return fmt.Errorf("prepare upstream insert: %w", err)
	}
	defer stmt.Close()

	for i, s := range servers {
		if _, err := stmt.ExecContext(ctx, s.Address, s.Port, s.DisplayName, i); err != nil {
			return fmt.Errorf("insert upstream %s: %w", s.Address, err)
		}
	}
	return tx.Commit()
}

// DefaultUpstreams is the hard-coded fallback pool used when the store
// has never been populated (e.g. first run).
func DefaultUpstreams() []UpstreamServer {
	return []UpstreamServer{
		{Address: "8.8.8.8", Port: 53, DisplayName: "Google", Position: 0},
		{Address: "1.1.1.1", Port: 53, DisplayName: "Cloudflare", Position: 1},
		{Address: "9.9.9.9", Port: 53, DisplayName: "Quad9", Position: 2},
	}
}

// LoadUpstreamPool loads the persisted pool, seeding it with
// DefaultUpstreams on an empty store, and returns the forwarder-ready
// pool type.
func (db *DB) LoadUpstreamPool(ctx context.Context) (forwarder.UpstreamPool, error) {
	rows, err := db.ListUpstreams(ctx)
	if err != nil {
		return forwarder.UpstreamPool{}, err
	}
	if len(rows) == 0 {
		defaults := DefaultUpstreams()
		if err := db.ReplaceUpstreams(ctx, defaults); err != nil {
			return forwarder.UpstreamPool{}, fmt.Errorf("seed default upstreams: %w", err)
		}
		rows = defaults
	}

	ups := make([]forwarder.Upstream, 0, len(rows))
	for _, r := range rows {
		ip := net.ParseIP(r.Address)
		if ip == nil {
			resolved, err := net.ResolveIPAddr("ip", r.Address)
			if err != nil {
				continue
			}
			ip = resolved.IP
		}
		ups = append(ups, forwarder.Upstream{IP: ip, Port: r.Port, DisplayName: r.DisplayName})
	}
	return forwarder.NewUpstreamPool(ups), nil
}
