//go:build integration

package relational_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"doctrine/internal/doctrine/models"
	"doctrine/internal/doctrine/translate"
	"doctrine/internal/sink/relational"
)

const schema = `
CREATE TABLE IF NOT EXISTS doctrine_records (
    record_id      TEXT PRIMARY KEY,
    source_id      TEXT NOT NULL,
    process_id     TEXT NOT NULL,
    blueprint_id   TEXT NOT NULL,
    schema_version TEXT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL,
    stamped_at     TIMESTAMPTZ NOT NULL,
    data           JSONB NOT NULL
);`

type PostgresSinkSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	db        *sql.DB
	sink      *relational.PostgresSink
}

func TestPostgresSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresSinkSuite))
}

func (s *PostgresSinkSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("doctrine"),
		tcpostgres.WithUsername("doctrine"),
		tcpostgres.WithPassword("doctrine"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.db, err = sql.Open("postgres", dsn)
	s.Require().NoError(err)
	_, err = s.db.ExecContext(ctx, schema)
	s.Require().NoError(err)

	s.sink = relational.NewPostgres(s.db)
}

func (s *PostgresSinkSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = testcontainers.TerminateContainer(s.container)
	}
}

func (s *PostgresSinkSuite) SetupTest() {
	_, err := s.db.Exec("TRUNCATE doctrine_records")
	s.Require().NoError(err)
}

func (s *PostgresSinkSuite) shape(recordID string, upsert bool) translate.RelationalShape {
	now := time.Now().UTC().Truncate(time.Microsecond)
	rec := &models.CanonicalRecord{
		RecordID:      recordID,
		SourceID:      "cursor-sync",
		ProcessID:     "proc-42",
		BlueprintID:   "bp-main",
		SchemaVersion: "1.0.0",
		Data:          map[string]any{"path": "/etc/app"},
		CreatedAt:     now,
		StampedAt:     now,
	}

	var opts []translate.RelationalOption
	if upsert {
		opts = append(opts, translate.WithUpsert(translate.ColRecordID))
	}
	translator, err := translate.NewRelationalTranslator("doctrine_records", opts...)
	s.Require().NoError(err)

	shape, err := translator.Translate(rec)
	s.Require().NoError(err)
	return shape.(translate.RelationalShape)
}

func (s *PostgresSinkSuite) TestSend() {
	ctx := context.Background()

	result, err := s.sink.Send(ctx, s.shape("rec-001", false))
	s.Require().NoError(err)
	s.Equal("rec-001", result.ID)

	var count int
	s.Require().NoError(s.db.QueryRow("SELECT COUNT(*) FROM doctrine_records").Scan(&count))
	s.Equal(1, count)
}

func (s *PostgresSinkSuite) TestSendUpsertIsIdempotent() {
	ctx := context.Background()
	shape := s.shape("rec-002", true)

	_, err := s.sink.Send(ctx, shape)
	s.Require().NoError(err)
	_, err = s.sink.Send(ctx, shape)
	s.Require().NoError(err)

	var count int
	s.Require().NoError(s.db.QueryRow("SELECT COUNT(*) FROM doctrine_records").Scan(&count))
	s.Equal(1, count)
}

func (s *PostgresSinkSuite) TestSendAllIsAtomic() {
	ctx := context.Background()

	// Second shape collides with the first; the whole batch must roll back.
	batch := []translate.RelationalShape{
		s.shape("rec-003", false),
		s.shape("rec-003", false),
	}

	_, err := s.sink.SendAll(ctx, batch)
	s.Require().Error(err)

	var count int
	s.Require().NoError(s.db.QueryRow("SELECT COUNT(*) FROM doctrine_records").Scan(&count))
	s.Zero(count)
}
