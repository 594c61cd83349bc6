package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/dnsfwd/internal/dnsmsg"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLoadUpstreamPoolSeedsDefaultsOnEmptyStore(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	pool, err := db.LoadUpstreamPool(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, pool.Len())
	assert.Equal(t, "Google", pool.At(0).DisplayName)

	rows, err := db.ListUpstreams(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 3, "seeding must persist so it only happens once")
}

func TestReplaceUpstreamsOverwritesOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.ReplaceUpstreams(ctx, []UpstreamServer{
		{Address: "203.0.113.1", Port: 53, DisplayName: "Custom1"},
		{Address: "203.0.113.2", Port: 53, DisplayName: "Custom2"},
	}))

	rows, err := db.ListUpstreams(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Custom1", rows[0].DisplayName)
	assert.Equal(t, 0, rows[0].Position)
	assert.Equal(t, 1, rows[1].Position)
}

func TestZoneRecordRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.AddZoneRecord(ctx, ZoneRecord{
		Name: "Router.LAN.", RType: "A", Value: "10.0.0.1", TTLSeconds: 120,
	}))

	zone, err := db.LoadLocalZone(ctx)
	require.NoError(t, err)
	rrs, ok := zone["router.lan."]
	require.True(t, ok, "name must be stored lower-cased regardless of input case")
	require.Len(t, rrs, 1)
	assert.Equal(t, dnsmsg.TypeA, rrs[0].Type)
	assert.Equal(t, uint32(120), rrs[0].TTL)
}

func TestDeleteZoneRecordRemovesIt(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.AddZoneRecord(ctx, ZoneRecord{Name: "x.lan.", RType: "A", Value: "1.2.3.4", TTLSeconds: 60}))
	rows, err := db.ListZoneRecords(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, db.DeleteZoneRecord(ctx, rows[0].ID))
	rows, err = db.ListZoneRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
