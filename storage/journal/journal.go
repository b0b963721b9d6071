// Package journal persists committed protocol events in a SQL table so they
// can be listed after the fact.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"metabond/core/events"
	"metabond/core/types"
	"metabond/observability"
)

// DefaultLimit bounds List when the filter does not.
const DefaultLimit = 100

// MaxLimit is the largest page List returns.
const MaxLimit = 1000

// ErrPathRequired is returned when no DSN is supplied.
var ErrPathRequired = errors.New("journal: database path must be configured")

// Record is the stored form of one event.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"index;not null"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`
}

// TableName pins the table name.
func (Record) TableName() string { return "protocol_events" }

// Entry is a decoded journal row.
type Entry struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Filter narrows List. Entries are returned in sequence order starting after
// After.
type Filter struct {
	Type  string
	After uint64
	Limit int
}

// Journal is an events.Emitter backed by SQLite.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger

	mu  sync.Mutex
	seq uint64
}

// Open creates or opens the journal at dsn.
func Open(dsn string, logger *slog.Logger) (*Journal, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := gorm.Open(sqlite.Open(trimmed), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	var last struct{ Max uint64 }
	if err := db.Model(&Record{}).Select("COALESCE(MAX(sequence), 0) AS max").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("journal: resume sequence: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{db: db, logger: logger, seq: last.Max}, nil
}

// Close releases database resources.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit implements events.Emitter. Write failures are logged and counted; the
// protocol state has already committed by the time events reach the journal.
func (j *Journal) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	err := j.Append(context.Background(), evt)
	observability.Events().RecordJournalWrite(err)
	if err != nil {
		j.logger.Error("journal write failed",
			slog.String("event", evt.EventType()),
			slog.String("error", err.Error()))
	}
}

// Append stores evt and returns once it is durable.
func (j *Journal) Append(ctx context.Context, evt events.Event) error {
	wire := render(evt)
	attrs, err := json.Marshal(wire.Attributes)
	if err != nil {
		return fmt.Errorf("journal: encode %s: %w", wire.Type, err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	rec := Record{
		ID:         uuid.New(),
		Sequence:   j.seq + 1,
		Type:       wire.Type,
		Attributes: string(attrs),
	}
	if err := j.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("journal: insert %s: %w", wire.Type, err)
	}
	j.seq = rec.Sequence
	return nil
}

func render(evt events.Event) *types.Event {
	if typed, ok := evt.(events.Typed); ok {
		if wire := typed.Event(); wire != nil {
			return wire
		}
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}

// List returns journal entries matching filter.
func (j *Journal) List(ctx context.Context, filter Filter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	query := j.db.WithContext(ctx).Model(&Record{}).Where("sequence > ?", filter.After)
	if t := strings.TrimSpace(filter.Type); t != "" {
		query = query.Where("type = ?", t)
	}
	var rows []Record
	if err := query.Order("sequence ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entry := Entry{
			ID:        row.ID.String(),
			Sequence:  row.Sequence,
			Type:      row.Type,
			CreatedAt: row.CreatedAt.UTC(),
		}
		if row.Attributes != "" {
			if err := json.Unmarshal([]byte(row.Attributes), &entry.Attributes); err != nil {
				return nil, fmt.Errorf("journal: decode %d: %w", row.Sequence, err)
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// Count returns the number of stored events.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	var n int64
	err := j.db.WithContext(ctx).Model(&Record{}).Count(&n).Error
	return n, err
}
