package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stockwatch/internal/types"
)

func compressJSON(t *testing.T, v any) []byte {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	w, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	require.NoError(t, err)
	defer w.Close()
	return w.EncodeAll(payload, nil)
}

func testSnapshot() types.Snapshot {
	return types.Snapshot{
		"25skleb01.ram64": {
			Config: &types.ConfigBlock{
				Datacenters: map[string]string{"fra": "1H-high", "gra": types.StatusUnavailable},
				Memory:      "64GB DDR4",
				Storage:     "2x512GB NVMe",
			},
		},
	}
}

func TestArchiveRepo_Archive_RoundTripsThroughZstd(t *testing.T) {
	db := new(mockDBTX)
	repo, err := NewArchiveRepo(db, nil)
	require.NoError(t, err)

	takenAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	snap := testSnapshot()

	var passed []any
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			passed = args.Get(2).([]any)
		}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.Archive(context.Background(), "25skleb01", takenAt, snap))
	db.AssertExpectations(t)

	require.Len(t, passed, 3)
	assert.Equal(t, "25skleb01", passed[0])
	assert.Equal(t, takenAt, passed[1])

	blob, ok := passed[2].([]byte)
	require.True(t, ok, "stored snapshot must be a compressed byte blob")

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	payload, err := dec.DecodeAll(blob, nil)
	require.NoError(t, err)

	var stored types.Snapshot
	require.NoError(t, json.Unmarshal(payload, &stored))
	assert.Equal(t, snap, stored)
}

func TestArchiveRepo_Archive_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo, err := NewArchiveRepo(db, nil)
	require.NoError(t, err)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("disk full"))

	err = repo.Archive(context.Background(), "25skleb01", time.Now(), testSnapshot())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
	assert.Contains(t, appErr.Message, "25skleb01")
}

func TestArchiveRepo_Recent_DecompressesRows(t *testing.T) {
	db := new(mockDBTX)
	repo, err := NewArchiveRepo(db, nil)
	require.NoError(t, err)

	newer := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	older := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	snap := testSnapshot()

	rows := newMockRows([][]any{
		{"25skleb01", newer, compressJSON(t, snap)},
		{"25skleb01", older, compressJSON(t, types.Snapshot{"fra": {Status: types.StatusUnavailable}})},
	})

	var passed []any
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			passed = args.Get(2).([]any)
		}).
		Return(rows, nil)

	got, err := repo.Recent(context.Background(), "25skleb01", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, []any{"25skleb01", 5}, passed)
	assert.Equal(t, newer, got[0].CapturedAt)
	assert.Equal(t, snap, got[0].Snapshot)
	assert.Equal(t, types.StatusUnavailable, got[1].Snapshot["fra"].Status)
	assert.True(t, rows.closed)
}

func TestArchiveRepo_Recent_SkipsCorruptBlob(t *testing.T) {
	db := new(mockDBTX)
	repo, err := NewArchiveRepo(db, nil)
	require.NoError(t, err)

	good := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	rows := newMockRows([][]any{
		{"25skleb01", good.Add(time.Minute), []byte("not zstd at all")},
		{"25skleb01", good, compressJSON(t, testSnapshot())},
	})
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	got, err := repo.Recent(context.Background(), "25skleb01", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, good, got[0].CapturedAt)
}

func TestArchiveRepo_Recent_DefaultLimit(t *testing.T) {
	db := new(mockDBTX)
	repo, err := NewArchiveRepo(db, nil)
	require.NoError(t, err)

	var passed []any
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			passed = args.Get(2).([]any)
		}).
		Return(newMockRows(nil), nil)

	_, err = repo.Recent(context.Background(), "25skleb01", 0)
	require.NoError(t, err)
	assert.Equal(t, []any{"25skleb01", defaultRecentLimit}, passed)
}

func TestArchiveRepo_Recent_QueryError(t *testing.T) {
	db := new(mockDBTX)
	repo, err := NewArchiveRepo(db, nil)
	require.NoError(t, err)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("relation does not exist"))

	_, err = repo.Recent(context.Background(), "25skleb01", 5)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestArchiveRepo_Prune_ReturnsRemovedCount(t *testing.T) {
	db := new(mockDBTX)
	repo, err := NewArchiveRepo(db, nil)
	require.NoError(t, err)

	var passed []any
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			passed = args.Get(2).([]any)
		}).
		Return(pgconn.NewCommandTag("DELETE 4"), nil)

	removed, err := repo.Prune(context.Background(), 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)

	require.Len(t, passed, 1)
	cutoff, ok := passed[0].(time.Time)
	require.True(t, ok)
	wantCutoff := time.Now().Add(-72 * time.Hour)
	assert.WithinDuration(t, wantCutoff, cutoff, 5*time.Second)
}

func TestArchiveRepo_Prune_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo, err := NewArchiveRepo(db, nil)
	require.NoError(t, err)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection reset"))

	_, err = repo.Prune(context.Background(), time.Hour)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
