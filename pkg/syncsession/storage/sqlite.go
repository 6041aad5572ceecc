package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/AcousticSync/pkg/models"
)

const DefaultDBFile = "acousticsync.sqlite3"
const errDBClientNil = "db client is nil"

var ErrSessionNotFound = errors.New("session not found")

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

// Session is a stored sync session: its settings and input files. A zero
// SampleRate marks a row written before the engine settings were stored.
type Session struct {
	ID                  string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name                string    `json:"name"`
	Strictness          string    `json:"strictness"`
	PlacementMode       string    `json:"placement_mode"`
	FrameRate           float64   `json:"frame_rate"`
	GapSeconds          float64   `json:"gap_seconds"`
	WindowSeconds       float64   `json:"window_seconds"`
	AnchorWindowSeconds float64   `json:"anchor_window_seconds"`
	ChunkSeconds        float64   `json:"chunk_seconds"`
	SampleRate          int       `json:"sample_rate"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type SessionFile struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"type:varchar(36);uniqueIndex:idx_session_path,priority:1;index:idx_file_session"`
	Path      string `gorm:"uniqueIndex:idx_session_path,priority:2"`
	Color     string
	Position  int
}

type AnchorRecord struct {
	ID                   string `gorm:"primaryKey;type:varchar(36)"`
	SessionID            string `gorm:"type:varchar(36);index:idx_anchor_session"`
	ClipA                string
	ClipB                string
	Type                 string
	TimeInA              *float64
	TimeInB              *float64
	FrameRate            float64
	OffsetSeconds        float64
	AudioRefined         bool
	RefinedOffsetSeconds *float64
	CreatedAt            time.Time `gorm:"index:idx_anchor_created"`
}

// ResultRecord keeps every run's frozen result as JSON, with the headline
// counters as columns for listing.
type ResultRecord struct {
	ID                uint   `gorm:"primaryKey;autoIncrement"`
	SessionID         string `gorm:"type:varchar(36);index:idx_result_session"`
	TotalClips        int
	MatchedClips      int
	AverageConfidence float64
	TimelineSeconds   float64
	Payload           []byte
	CreatedAt         time.Time
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("SYNC_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Session{}, &SessionFile{}, &AnchorRecord{}, &ResultRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *DBClient) ready() error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return nil
}

// SaveSession upserts the session row and replaces its file list.
func (c *DBClient) SaveSession(s Session, paths []string, colors []string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "strictness", "placement_mode", "frame_rate",
				"gap_seconds", "window_seconds", "anchor_window_seconds", "chunk_seconds", "sample_rate",
				"updated_at",
			}),
		}).Create(&s).Error; err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
		if err := tx.Where("session_id = ?", s.ID).Delete(&SessionFile{}).Error; err != nil {
			return fmt.Errorf("clearing session files: %w", err)
		}
		if len(paths) == 0 {
			return nil
		}
		files := make([]SessionFile, 0, len(paths))
		for i, p := range paths {
			f := SessionFile{SessionID: s.ID, Path: p, Position: i}
			if i < len(colors) {
				f.Color = colors[i]
			}
			files = append(files, f)
		}
		if err := tx.CreateInBatches(files, 500).Error; err != nil {
			return fmt.Errorf("saving session files: %w", err)
		}
		return nil
	})
}

// GetSession returns the session and its files in input order.
func (c *DBClient) GetSession(id string) (*Session, []SessionFile, error) {
	if err := c.ready(); err != nil {
		return nil, nil, err
	}
	var s Session
	if err := c.DB.Where("id = ?", id).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, nil, fmt.Errorf("querying session: %w", err)
	}
	var files []SessionFile
	if err := c.DB.Where("session_id = ?", id).Order("position").Find(&files).Error; err != nil {
		return nil, nil, fmt.Errorf("querying session files: %w", err)
	}
	return &s, files, nil
}

// ListSessions returns sessions, most recently updated first.
func (c *DBClient) ListSessions() ([]Session, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var out []Session
	if err := c.DB.Order("updated_at DESC").Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return out, nil
}

func (c *DBClient) DeleteSession(id string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		for _, m := range []any{&SessionFile{}, &AnchorRecord{}, &ResultRecord{}} {
			if err := tx.Where("session_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		res := tx.Where("id = ?", id).Delete(&Session{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil
	})
}

func (c *DBClient) SaveAnchor(sessionID string, a models.Anchor) error {
	if err := c.ready(); err != nil {
		return err
	}
	rec := AnchorRecord{
		ID:                   a.ID,
		SessionID:            sessionID,
		ClipA:                a.ClipA,
		ClipB:                a.ClipB,
		Type:                 string(a.Type),
		TimeInA:              a.TimeInA,
		TimeInB:              a.TimeInB,
		FrameRate:            a.FrameRate,
		OffsetSeconds:        a.OffsetSeconds,
		AudioRefined:         a.AudioRefined,
		RefinedOffsetSeconds: a.RefinedOffsetSeconds,
		CreatedAt:            a.CreatedAt,
	}
	if err := c.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
		return fmt.Errorf("saving anchor: %w", err)
	}
	return nil
}

// ListAnchors returns a session's anchors in creation order.
func (c *DBClient) ListAnchors(sessionID string) ([]models.Anchor, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var rows []AnchorRecord
	if err := c.DB.Where("session_id = ?", sessionID).Order("created_at").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying anchors: %w", err)
	}
	out := make([]models.Anchor, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Anchor{
			ID:                   r.ID,
			ClipA:                r.ClipA,
			ClipB:                r.ClipB,
			Type:                 models.AnchorType(r.Type),
			TimeInA:              r.TimeInA,
			TimeInB:              r.TimeInB,
			FrameRate:            r.FrameRate,
			OffsetSeconds:        r.OffsetSeconds,
			AudioRefined:         r.AudioRefined,
			RefinedOffsetSeconds: r.RefinedOffsetSeconds,
			CreatedAt:            r.CreatedAt,
		})
	}
	return out, nil
}

// SaveResult appends res to the session's result history.
func (c *DBClient) SaveResult(res *models.SyncResult) error {
	if err := c.ready(); err != nil {
		return err
	}
	if res == nil {
		return errors.New("nil result")
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	rec := ResultRecord{
		SessionID:         res.SessionID,
		TotalClips:        res.Summary.TotalClips,
		MatchedClips:      res.Summary.MatchedClips,
		AverageConfidence: res.Summary.AverageConfidence,
		TimelineSeconds:   res.TimelineEnd - res.TimelineStart,
		Payload:           payload,
		CreatedAt:         res.CreatedAt,
	}
	if err := c.DB.Create(&rec).Error; err != nil {
		return fmt.Errorf("saving result: %w", err)
	}
	return nil
}

// LatestResult returns the newest stored result for the session.
func (c *DBClient) LatestResult(sessionID string) (*models.SyncResult, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var rec ResultRecord
	err := c.DB.Where("session_id = ?", sessionID).Order("id DESC").First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no result for %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("querying result: %w", err)
	}
	var res models.SyncResult
	if err := json.Unmarshal(rec.Payload, &res); err != nil {
		return nil, fmt.Errorf("decoding result %d: %w", rec.ID, err)
	}
	return &res, nil
}

// ResultHistory lists stored runs, newest first, without their payloads.
func (c *DBClient) ResultHistory(sessionID string) ([]ResultRecord, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var rows []ResultRecord
	err := c.DB.Select("id", "session_id", "total_clips", "matched_clips", "average_confidence", "timeline_seconds", "created_at").
		Where("session_id = ?", sessionID).Order("id DESC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying result history: %w", err)
	}
	return rows, nil
}
