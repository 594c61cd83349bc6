package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jroosing/dnsfwd/internal/dnsmsg"
	"github.com/jroosing/dnsfwd/internal/helpers"
	"github.com/jroosing/dnsfwd/internal/localzone"
)

// ZoneRecord is the persisted row shape for one curated answer.
type ZoneRecord struct {
	ID         int64
	Name       string
	RType      string // "A", "AAAA", or "CNAME"
	Value      string
	TTLSeconds int
}

// ListZoneRecords returns every curated record.
func (db *DB) ListZoneRecords(ctx context.Context) ([]ZoneRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, name, rtype, value, ttl_seconds FROM zone_records ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("query zone records: %w", err)
	}
	defer rows.Close()

	var out []ZoneRecord
	for rows.Next() {
		var r ZoneRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.RType, &r.Value, &r.TTLSeconds); err != nil {
			return nil, fmt.Errorf("scan zone record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AddZoneRecord inserts one curated record, lower-casing name per
// spec.md's LocalZoneRecord shape (name is always a lowercase FQDN).
func (db *DB) AddZoneRecord(ctx context.Context, r ZoneRecord) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO zone_records (name, rtype, value, ttl_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name, rtype, value) DO UPDATE SET ttl_seconds = excluded.ttl_seconds
	`, strings.ToLower(r.Name), r.RType, r.Value, r.TTLSeconds)
	if err != nil {
		return fmt.Errorf("insert zone record %s: %w", r.Name, err)
	}
	return nil
}

// DeleteZoneRecord removes a curated record by ID.
func (db *DB) DeleteZoneRecord(ctx context.Context, id int64) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM zone_records WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete zone record %d: %w", id, err)
	}
	return nil
}

// LoadLocalZone reads every curated record and builds the in-memory
// lookup table localzone.Synthesize runs against.
func (db *DB) LoadLocalZone(ctx context.Context) (map[string][]localzone.Record, error) {
	rows, err := db.ListZoneRecords(ctx)
	if err != nil {
		return nil, err
	}
	zone := make(map[string][]localzone.Record, len(rows))
	for _, r := range rows {
		rtype, ok := parseRType(r.RType)
		if !ok {
			continue
		}
		name := strings.ToLower(r.Name)
		zone[name] = append(zone[name], localzone.Record{
			Type:  rtype,
			Value: r.Value,
			TTL:   helpers.ClampIntToUint32(r.TTLSeconds),
		})
	}
	return zone, nil
}

func parseRType(s string) (dnsmsg.RecordType, bool) {
	switch strings.ToUpper(s) {
	case "A":
		return dnsmsg.TypeA, true
	case "AAAA":
		return dnsmsg.TypeAAAA, true
	case "CNAME":
		return dnsmsg.TypeCNAME, true
	default:
		return 0, false
	}
}
