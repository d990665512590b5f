package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/RyanBlaney/mixdown/internal/quality"
	"github.com/RyanBlaney/mixdown/pkg/audio"
	"github.com/RyanBlaney/mixdown/pkg/audio/analysis"
)

const schema = `
CREATE TABLE IF NOT EXISTS mixing_configurations (
	id          TEXT PRIMARY KEY,
	genre       TEXT NOT NULL,
	user_id     TEXT NOT NULL DEFAULT '',
	song_id     TEXT NOT NULL DEFAULT '',
	parent_id   TEXT NOT NULL DEFAULT '',
	version     INTEGER NOT NULL,
	usage_count INTEGER NOT NULL DEFAULT 0,
	body        TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_configs_genre ON mixing_configurations (genre);

CREATE TABLE IF NOT EXISTS genre_defaults (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	genre      TEXT NOT NULL,
	config_id  TEXT NOT NULL REFERENCES mixing_configurations (id),
	reason     TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_defaults_genre ON genre_defaults (genre, seq);

CREATE TABLE IF NOT EXISTS reference_tracks (
	id         TEXT PRIMARY KEY,
	genre      TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS feature_vectors (
	id           TEXT PRIMARY KEY,
	track_id     TEXT NOT NULL,
	track_kind   TEXT NOT NULL,
	genre        TEXT NOT NULL,
	feature_type TEXT NOT NULL,
	vals         TEXT NOT NULL,
	created_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS quality_metrics (
	mix_id     TEXT NOT NULL,
	config_id  TEXT NOT NULL,
	genre      TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quality_config ON quality_metrics (config_id);

CREATE TABLE IF NOT EXISTS mixing_feedback (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	config_id  TEXT NOT NULL,
	mix_id     TEXT NOT NULL DEFAULT '',
	genre      TEXT NOT NULL,
	ratings    TEXT NOT NULL,
	objective  TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_genre ON mixing_feedback (genre);
`

// SQLStore is a Repository backed by SQLite
type SQLStore struct {
	db     *sql.DB
	logger logging.Logger
	now    func() time.Time
}

// OpenSQLStore opens or creates the database at path. ":memory:" opens a
// private in-memory database.
func OpenSQLStore(ctx context.Context, path string, logger logging.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, audio.NewStorageError("failed to create database directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, audio.NewStorageError("failed to open database", err)
	}
	// One connection serializes writers and keeps ":memory:" a single database
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, audio.NewStorageError("failed to enable foreign keys", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, audio.NewStorageError("failed to apply schema", err)
	}

	logger.Debug("Opened configuration database", logging.Fields{"path": path})

	return &SQLStore{
		db:     db,
		logger: logger.WithFields(logging.Fields{"component": "sql_store"}),
		now:    time.Now,
	}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) CreateConfig(ctx context.Context, cfg *MixingConfiguration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = s.now()
	}
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	stored := cfg.Clone()
	stored.IsDefault = false
	stored.UsageCount = 0
	body, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO mixing_configurations
		(id, genre, user_id, song_id, parent_id, version, usage_count, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.Scope.Genre, cfg.Scope.UserID, cfg.Scope.SongID, cfg.ParentID,
		cfg.Version, cfg.UsageCount, string(body), cfg.CreatedAt.UnixNano())
	if err != nil {
		return audio.NewStorageError("failed to insert configuration", err)
	}
	return nil
}

const configColumns = `c.body, c.usage_count,
	COALESCE((SELECT d.config_id FROM genre_defaults d WHERE d.genre = c.genre ORDER BY d.seq DESC LIMIT 1), '') = c.id`

func scanConfig(row interface{ Scan(...any) error }) (*MixingConfiguration, error) {
	var (
		body      string
		usage     int64
		isDefault bool
	)
	if err := row.Scan(&body, &usage, &isDefault); err != nil {
		return nil, err
	}
	var cfg MixingConfiguration
	if err := json.Unmarshal([]byte(body), &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.UsageCount = usage
	cfg.IsDefault = isDefault
	return &cfg, nil
}

func (s *SQLStore) GetConfig(ctx context.Context, id string) (*MixingConfiguration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+configColumns+` FROM mixing_configurations c WHERE c.id = ?`, id)
	cfg, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("configuration", id)
	}
	if err != nil {
		return nil, audio.NewStorageError("failed to read configuration", err)
	}
	return cfg, nil
}

func (s *SQLStore) ListByGenre(ctx context.Context, genre string) ([]*MixingConfiguration, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+configColumns+` FROM mixing_configurations c
		WHERE c.genre = ? ORDER BY c.id`, genre)
	if err != nil {
		return nil, audio.NewStorageError("failed to list configurations", err)
	}
	defer rows.Close()

	var out []*MixingConfiguration
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, audio.NewStorageError("failed to read configuration", err)
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, audio.NewStorageError("failed to list configurations", err)
	}
	sortConfigs(out)
	return out, nil
}

func (s *SQLStore) IncrementUsage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE mixing_configurations SET usage_count = usage_count + 1 WHERE id = ?`, id)
	if err != nil {
		return audio.NewStorageError("failed to increment usage", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("configuration", id)
	}
	return nil
}

func (s *SQLStore) SetDefault(ctx context.Context, genre, configID, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return audio.NewStorageError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var owner string
	err = tx.QueryRowContext(ctx, `SELECT genre FROM mixing_configurations WHERE id = ?`, configID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("configuration", configID)
	}
	if err != nil {
		return audio.NewStorageError("failed to read configuration", err)
	}
	if owner != genre {
		return notFound("configuration for genre "+genre, configID)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO genre_defaults (genre, config_id, reason, created_at) VALUES (?, ?, ?, ?)`,
		genre, configID, reason, s.now().UnixNano()); err != nil {
		return audio.NewStorageError("failed to record default", err)
	}
	if err := tx.Commit(); err != nil {
		return audio.NewStorageError("failed to commit default", err)
	}

	s.logger.Debug("Recorded genre default", logging.Fields{
		"genre":     genre,
		"config_id": configID,
		"reason":    reason,
	})
	return nil
}

func (s *SQLStore) DefaultHistory(ctx context.Context, genre string) ([]DefaultEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT genre, config_id, reason, created_at FROM genre_defaults
		WHERE genre = ? ORDER BY seq`, genre)
	if err != nil {
		return nil, audio.NewStorageError("failed to read default history", err)
	}
	defer rows.Close()

	var out []DefaultEntry
	for rows.Next() {
		var (
			e  DefaultEntry
			ts int64
		)
		if err := rows.Scan(&e.Genre, &e.ConfigID, &e.Reason, &ts); err != nil {
			return nil, audio.NewStorageError("failed to read default history", err)
		}
		e.CreatedAt = time.Unix(0, ts)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, audio.NewStorageError("failed to read default history", err)
	}
	return out, nil
}

func (s *SQLStore) CreateReference(ctx context.Context, ref *ReferenceTrack) error {
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = s.now()
	}
	body, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("failed to encode reference track: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO reference_tracks (id, genre, body, created_at) VALUES (?, ?, ?, ?)`,
		ref.ID, ref.Genre, string(body), ref.CreatedAt.UnixNano()); err != nil {
		return audio.NewStorageError("failed to insert reference track", err)
	}
	return nil
}

func decodeReference(body string) (*ReferenceTrack, error) {
	var ref ReferenceTrack
	if err := json.Unmarshal([]byte(body), &ref); err != nil {
		return nil, fmt.Errorf("failed to decode reference track: %w", err)
	}
	return &ref, nil
}

func (s *SQLStore) GetReference(ctx context.Context, id string) (*ReferenceTrack, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM reference_tracks WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("reference track", id)
	}
	if err != nil {
		return nil, audio.NewStorageError("failed to read reference track", err)
	}
	return decodeReference(body)
}

func (s *SQLStore) ListReferences(ctx context.Context, genre string) ([]*ReferenceTrack, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM reference_tracks
		WHERE ? = '' OR genre = ? ORDER BY created_at, id`, genre, genre)
	if err != nil {
		return nil, audio.NewStorageError("failed to list reference tracks", err)
	}
	defer rows.Close()

	var out []*ReferenceTrack
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, audio.NewStorageError("failed to read reference track", err)
		}
		ref, err := decodeReference(body)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, audio.NewStorageError("failed to list reference tracks", err)
	}
	return out, nil
}

func (s *SQLStore) SaveVector(ctx context.Context, v *FeatureVector) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now()
	}
	vals, err := json.Marshal(v.Values)
	if err != nil {
		return fmt.Errorf("failed to encode feature vector: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO feature_vectors
		(id, track_id, track_kind, genre, feature_type, vals, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.TrackID, v.TrackKind, v.Genre, string(v.FeatureType), string(vals), v.CreatedAt.UnixNano()); err != nil {
		return audio.NewStorageError("failed to insert feature vector", err)
	}
	return nil
}

func (s *SQLStore) ListVectors(ctx context.Context) ([]*FeatureVector, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, track_id, track_kind, genre, feature_type, vals, created_at
		FROM feature_vectors ORDER BY created_at, id`)
	if err != nil {
		return nil, audio.NewStorageError("failed to list feature vectors", err)
	}
	defer rows.Close()

	var out []*FeatureVector
	for rows.Next() {
		var (
			v           FeatureVector
			featureType string
			vals        string
			ts          int64
		)
		if err := rows.Scan(&v.ID, &v.TrackID, &v.TrackKind, &v.Genre, &featureType, &vals, &ts); err != nil {
			return nil, audio.NewStorageError("failed to read feature vector", err)
		}
		if err := json.Unmarshal([]byte(vals), &v.Values); err != nil {
			return nil, fmt.Errorf("failed to decode feature vector: %w", err)
		}
		v.FeatureType = analysis.FeatureType(featureType)
		v.CreatedAt = time.Unix(0, ts)
		out = append(out, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, audio.NewStorageError("failed to list feature vectors", err)
	}
	return out, nil
}

func (s *SQLStore) SaveQuality(ctx context.Context, rec *QualityRecord) error {
	body, err := json.Marshal(rec.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode quality metrics: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO quality_metrics (mix_id, config_id, genre, body, created_at)
		VALUES (?, ?, ?, ?, ?)`, rec.MixID, rec.ConfigID, rec.Genre, string(body), rec.Metrics.CreatedAt.UnixNano()); err != nil {
		return audio.NewStorageError("failed to insert quality metrics", err)
	}
	return nil
}

func (s *SQLStore) ListQuality(ctx context.Context, configID string) ([]*QualityRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT mix_id, config_id, genre, body FROM quality_metrics
		WHERE ? = '' OR config_id = ? ORDER BY created_at`, configID, configID)
	if err != nil {
		return nil, audio.NewStorageError("failed to list quality metrics", err)
	}
	defer rows.Close()

	var out []*QualityRecord
	for rows.Next() {
		var (
			rec  QualityRecord
			body string
		)
		if err := rows.Scan(&rec.MixID, &rec.ConfigID, &rec.Genre, &body); err != nil {
			return nil, audio.NewStorageError("failed to read quality metrics", err)
		}
		if err := json.Unmarshal([]byte(body), &rec.Metrics); err != nil {
			return nil, fmt.Errorf("failed to decode quality metrics: %w", err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, audio.NewStorageError("failed to list quality metrics", err)
	}
	return out, nil
}

func (s *SQLStore) AppendFeedback(ctx context.Context, fb *MixingFeedback) error {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = s.now()
	}
	ratings, err := json.Marshal(fb.Ratings)
	if err != nil {
		return fmt.Errorf("failed to encode ratings: %w", err)
	}
	var objective sql.NullString
	if fb.Objective != nil {
		body, err := json.Marshal(fb.Objective)
		if err != nil {
			return fmt.Errorf("failed to encode objective scores: %w", err)
		}
		objective = sql.NullString{String: string(body), Valid: true}
	}

	if _, err := s.db.ExecContext(ctx, `INSERT INTO mixing_feedback
		(id, config_id, mix_id, genre, ratings, objective, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fb.ID, fb.ConfigID, fb.MixID, fb.Genre, string(ratings), objective, fb.CreatedAt.UnixNano()); err != nil {
		return audio.NewStorageError("failed to append feedback", err)
	}
	return nil
}

func (s *SQLStore) ListFeedback(ctx context.Context, genre string) ([]*MixingFeedback, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, config_id, mix_id, genre, ratings, objective, created_at
		FROM mixing_feedback WHERE ? = '' OR genre = ? ORDER BY seq`, genre, genre)
	if err != nil {
		return nil, audio.NewStorageError("failed to list feedback", err)
	}
	defer rows.Close()

	var out []*MixingFeedback
	for rows.Next() {
		var (
			fb        MixingFeedback
			ratings   string
			objective sql.NullString
			ts        int64
		)
		if err := rows.Scan(&fb.ID, &fb.ConfigID, &fb.MixID, &fb.Genre, &ratings, &objective, &ts); err != nil {
			return nil, audio.NewStorageError("failed to read feedback", err)
		}
		if err := json.Unmarshal([]byte(ratings), &fb.Ratings); err != nil {
			return nil, fmt.Errorf("failed to decode ratings: %w", err)
		}
		if objective.Valid {
			fb.Objective = &quality.Metrics{}
			if err := json.Unmarshal([]byte(objective.String), fb.Objective); err != nil {
				return nil, fmt.Errorf("failed to decode objective scores: %w", err)
			}
		}
		fb.CreatedAt = time.Unix(0, ts)
		out = append(out, &fb)
	}
	if err := rows.Err(); err != nil {
		return nil, audio.NewStorageError("failed to list feedback", err)
	}
	return out, nil
}
