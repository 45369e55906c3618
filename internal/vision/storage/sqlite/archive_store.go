package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/Tongxz/PEPGMP-sub000/internal/vision"
)

// ArchiveStore persists completed tracks and frame summaries. It
// implements vision.Archiver.
type ArchiveStore struct {
	db *sql.DB
}

var _ vision.Archiver = (*ArchiveStore)(nil)

// NewArchiveStore creates an archive store backed by the given database.
func NewArchiveStore(db *sql.DB) *ArchiveStore {
	return &ArchiveStore{db: db}
}

// EnsureSchema creates the archive tables if they do not exist. The
// migration files under db/migrations are authoritative for deployments;
// this inline copy serves tests and ad-hoc tooling.
func (s *ArchiveStore) EnsureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS vision_tracks (
			track_id            INTEGER NOT NULL,
			run_id              TEXT NOT NULL,
			source_id           TEXT NOT NULL,
			final_state         TEXT NOT NULL,
			age                 INTEGER NOT NULL,
			hits                INTEGER NOT NULL,
			last_x1             DOUBLE NOT NULL,
			last_y1             DOUBLE NOT NULL,
			last_x2             DOUBLE NOT NULL,
			last_y2             DOUBLE NOT NULL,
			last_confidence     DOUBLE NOT NULL,
			created_at          TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, source_id, track_id, created_at)
		);
		CREATE INDEX IF NOT EXISTS idx_vision_tracks_source
			ON vision_tracks(source_id, created_at);
		CREATE TABLE IF NOT EXISTS vision_frames (
			frame_id            TEXT NOT NULL,
			run_id              TEXT NOT NULL,
			source_id           TEXT NOT NULL,
			source_kind         TEXT NOT NULL,
			ts_unix_micros      BIGINT NOT NULL,
			fingerprint         BIGINT NOT NULL,
			person_count        INTEGER NOT NULL,
			hairnet_count       INTEGER NOT NULL,
			pose_count          INTEGER NOT NULL,
			behavior_count      INTEGER NOT NULL,
			stable_state        TEXT,
			stable_confidence   DOUBLE,
			stage               TEXT NOT NULL,
			PRIMARY KEY (run_id, frame_id)
		);
		CREATE INDEX IF NOT EXISTS idx_vision_frames_ts
			ON vision_frames(source_id, ts_unix_micros);
	`)
	if err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}
	return nil
}

// ArchiveTrack inserts a completed track. Implements vision.Archiver.
func (s *ArchiveStore) ArchiveTrack(runID, sourceID string, tr *vision.Track, finalState vision.StateKind) error {
	query := `
		INSERT INTO vision_tracks (
			track_id, run_id, source_id, final_state,
			age, hits,
			last_x1, last_y1, last_x2, last_y2, last_confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		tr.ID,
		runID,
		sourceID,
		string(finalState),
		tr.Age,
		tr.Hits,
		tr.Box.X1, tr.Box.Y1, tr.Box.X2, tr.Box.Y2,
		tr.Confidence,
	)
	if err != nil {
		return fmt.Errorf("insert track: %w", err)
	}
	return nil
}

// ArchiveFrame upserts a frame summary. Implements vision.Archiver.
// Re-archiving the same frame id (e.g. after a late detector publish)
// replaces the earlier summary.
func (s *ArchiveStore) ArchiveFrame(runID string, rec *vision.FrameRecord) error {
	query := `
		INSERT INTO vision_frames (
			frame_id, run_id, source_id, source_kind, ts_unix_micros,
			fingerprint, person_count, hairnet_count, pose_count,
			behavior_count, stable_state, stable_confidence, stage
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, frame_id) DO UPDATE SET
			person_count = excluded.person_count,
			hairnet_count = excluded.hairnet_count,
			pose_count = excluded.pose_count,
			behavior_count = excluded.behavior_count,
			stable_state = excluded.stable_state,
			stable_confidence = excluded.stable_confidence,
			stage = excluded.stage
	`
	_, err := s.db.Exec(query,
		rec.ID,
		runID,
		rec.SourceID,
		string(rec.Source),
		rec.TimestampMicros,
		int64(rec.Fingerprint),
		len(rec.Persons),
		len(rec.Hairnets),
		len(rec.Poses),
		len(rec.Behaviors),
		nullString(string(rec.StableState)),
		rec.StableConfidence,
		string(rec.Stage),
	)
	if err != nil {
		return fmt.Errorf("insert frame summary: %w", err)
	}
	return nil
}

// TrackRow is one archived track as read back for reporting.
type TrackRow struct {
	TrackID    int
	RunID      string
	SourceID   string
	FinalState string
	Age        int
	Hits       int
	Confidence float64
}

// GetTracks returns archived tracks for a source, newest first, bounded
// by limit (non-positive = no bound).
func (s *ArchiveStore) GetTracks(sourceID string, limit int) ([]*TrackRow, error) {
	query := `
		SELECT track_id, run_id, source_id, final_state, age, hits, last_confidence
		FROM vision_tracks
		WHERE source_id = ?
		ORDER BY created_at DESC
	`
	args := []any{sourceID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	var out []*TrackRow
	for rows.Next() {
		r := &TrackRow{}
		if err := rows.Scan(&r.TrackID, &r.RunID, &r.SourceID, &r.FinalState,
			&r.Age, &r.Hits, &r.Confidence); err != nil {
			return nil, fmt.Errorf("scan track row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ComplianceBucket is the per-time-bucket compliance aggregate used by
// the report tooling.
type ComplianceBucket struct {
	BucketStartMicros int64
	Frames            int
	ViolationFrames   int
}

// ComplianceByBucket aggregates archived frames for a source into
// fixed-width time buckets and counts how many carried a stabilised
// violation state.
func (s *ArchiveStore) ComplianceByBucket(sourceID string, bucketMicros int64) ([]*ComplianceBucket, error) {
	if bucketMicros <= 0 {
		return nil, fmt.Errorf("compliance buckets: bucket width must be positive, got %d", bucketMicros)
	}
	query := `
		SELECT (ts_unix_micros / ?) * ? AS bucket_start,
		       COUNT(*) AS frames,
		       SUM(CASE WHEN stable_state = 'violation' THEN 1 ELSE 0 END) AS violations
		FROM vision_frames
		WHERE source_id = ?
		GROUP BY bucket_start
		ORDER BY bucket_start
	`
	rows, err := s.db.Query(query, bucketMicros, bucketMicros, sourceID)
	if err != nil {
		return nil, fmt.Errorf("query compliance buckets: %w", err)
	}
	defer rows.Close()

	var out []*ComplianceBucket
	for rows.Next() {
		b := &ComplianceBucket{}
		if err := rows.Scan(&b.BucketStartMicros, &b.Frames, &b.ViolationFrames); err != nil {
			return nil, fmt.Errorf("scan compliance bucket: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// nullString converts an empty string to NULL for optional columns.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
