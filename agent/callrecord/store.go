// Package callrecord persists per-attempt call outcomes to Postgres. The
// CRM keeps the lead-facing note; this table keeps the full transcript and
// slot data for audit and replay.
package callrecord

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/vaani-ai/voice-sales-agent/agent/contract"
)

type Config struct {
	DSN string `envconfig:"DSN" split_words:"true" required:"true"`
}

// Record is the call_records row.
type Record struct {
	bun.BaseModel `bun:"table:call_records,alias:cr"`

	ID            int64            `bun:"id,pk,autoincrement"`
	LeadID        string           `bun:"lead_id,notnull"`
	Attempt       int              `bun:"attempt,notnull"`
	CorrelationID string           `bun:"correlation_id,notnull,unique"`
	Disposition   string           `bun:"disposition,notnull"`
	Summary       string           `bun:"summary"`
	RecordingURL  string           `bun:"recording_url"`
	Turns         []contractx.Turn `bun:"turns,type:jsonb"`
	Slots         contractx.Slots  `bun:"slots,type:jsonb"`
	StartedAt     time.Time        `bun:"started_at"`
	EndedAt       time.Time        `bun:"ended_at"`
	CreatedAt     time.Time        `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type Store struct {
	db *bun.DB
}

func NewStore(cfg Config) *Store {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	return &Store{db: bun.NewDB(sqldb, pgdialect.New())}
}

// Init creates the call_records table when it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*Record)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create call_records table: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, rec contractx.CallRecord) error {
	row := &Record{
		LeadID:        rec.LeadID,
		Attempt:       rec.Attempt,
		CorrelationID: rec.CorrelationID,
		Disposition:   string(rec.Disposition),
		Summary:       rec.Summary,
		RecordingURL:  rec.RecordingURL,
		Turns:         rec.Turns,
		Slots:         rec.Slots,
		StartedAt:     rec.StartedAt,
		EndedAt:       rec.EndedAt,
	}
	// Replayed finalizations hit the unique correlation id and become no-ops.
	if _, err := s.db.NewInsert().Model(row).On("CONFLICT (correlation_id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert call record: %w", err)
	}
	return nil
}

// ListByLead returns a lead's attempts, oldest first.
func (s *Store) ListByLead(ctx context.Context, leadID string) ([]contractx.CallRecord, error) {
	var rows []Record
	if err := s.db.NewSelect().Model(&rows).Where("lead_id = ?", leadID).Order("started_at ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list call records: %w", err)
	}
	out := make([]contractx.CallRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, contractx.CallRecord{
			LeadID:        row.LeadID,
			Attempt:       row.Attempt,
			CorrelationID: row.CorrelationID,
			Disposition:   contractx.Disposition(row.Disposition),
			Summary:       row.Summary,
			RecordingURL:  row.RecordingURL,
			Turns:         row.Turns,
			Slots:         row.Slots,
			StartedAt:     row.StartedAt,
			EndedAt:       row.EndedAt,
		})
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
