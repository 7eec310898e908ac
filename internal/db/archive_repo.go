package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"stockwatch/internal/types"
)

// ArchivedSnapshot is one stored cycle observation, decompressed and ready
// to inspect.
type ArchivedSnapshot struct {
	PlanCode   string         `json:"planCode"`
	CapturedAt time.Time      `json:"capturedAt"`
	Snapshot   types.Snapshot `json:"snapshot"`
}

// defaultRecentLimit bounds Recent when the caller passes no limit.
const defaultRecentLimit = 20

// ArchiveRepo keeps one zstd-compressed availability snapshot per plan code
// and cycle. Snapshots exist for postmortems only; nothing in the poll loop
// reads them back, so a write failure is reported but must never stop a
// cycle.
type ArchiveRepo struct {
	db      DBTX
	logger  types.Logger
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewArchiveRepo creates an ArchiveRepo with its own zstd codec pair.
func NewArchiveRepo(db DBTX, logger types.Logger) (*ArchiveRepo, error) {
	if logger == nil {
		logger = types.NopLogger{}
	}
	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedFastest),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to initialize zstd encoder", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to initialize zstd decoder", err)
	}
	return &ArchiveRepo{db: db, logger: logger, encoder: encoder, decoder: decoder}, nil
}

// Archive compresses and stores one cycle snapshot for planCode.
func (r *ArchiveRepo) Archive(ctx context.Context, planCode string, takenAt time.Time, snap types.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("failed to encode snapshot for %s", planCode), err)
	}
	compressed := r.encoder.EncodeAll(payload, nil)

	_, err = r.db.Exec(ctx,
		`INSERT INTO availability_archive (plan_code, captured_at, snapshot)
		 VALUES ($1, $2, $3)`,
		planCode, takenAt, compressed)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB,
			fmt.Sprintf("failed to archive snapshot for %s", planCode), err)
	}
	return nil
}

// Recent returns up to limit of the newest snapshots for planCode, newest
// first. Blobs that no longer decompress or parse are skipped with a warning
// so one bad row cannot hide the rest of the history.
func (r *ArchiveRepo) Recent(ctx context.Context, planCode string, limit int) ([]ArchivedSnapshot, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := r.db.Query(ctx,
		`SELECT plan_code, captured_at, snapshot
		 FROM availability_archive
		 WHERE plan_code = $1
		 ORDER BY captured_at DESC
		 LIMIT $2`,
		planCode, limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB,
			fmt.Sprintf("failed to read archive for %s", planCode), err)
	}
	defer rows.Close()

	var out []ArchivedSnapshot
	for rows.Next() {
		var (
			rec  ArchivedSnapshot
			blob []byte
		)
		if err := rows.Scan(&rec.PlanCode, &rec.CapturedAt, &blob); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan archive row", err)
		}
		payload, err := r.decoder.DecodeAll(blob, nil)
		if err != nil {
			r.logger.Warn("archived snapshot is not valid zstd, skipping",
				"planCode", rec.PlanCode,
				"capturedAt", rec.CapturedAt,
				"error", err,
			)
			continue
		}
		if err := json.Unmarshal(payload, &rec.Snapshot); err != nil {
			r.logger.Warn("archived snapshot is not valid JSON, skipping",
				"planCode", rec.PlanCode,
				"capturedAt", rec.CapturedAt,
				"error", err,
			)
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating archive rows", err)
	}
	return out, nil
}

// Prune deletes snapshots older than the retention window and returns how
// many rows were removed.
func (r *ArchiveRepo) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	tag, err := r.db.Exec(ctx,
		`DELETE FROM availability_archive WHERE captured_at < $1`, cutoff)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to prune archive", err)
	}
	removed := tag.RowsAffected()
	if removed > 0 {
		r.logger.Info("archive pruned", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}
