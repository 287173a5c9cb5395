package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"doctrine/internal/doctrine/contract"
	"doctrine/internal/doctrine/enforcement"
	"doctrine/internal/doctrine/metrics"
	"doctrine/internal/doctrine/models"
	"doctrine/internal/doctrine/translate"
	"doctrine/pkg/platform/audit"
	auditmem "doctrine/pkg/platform/audit/store/memory"
)

const recoveryCode = "OVERRIDE-ALPHA"

// fakeSink records what it was asked to send and answers with a canned
// result or error.
type fakeSink struct {
	sent []translate.SinkShape
	id   string
	err  error
}

func (f *fakeSink) Send(_ context.Context, shape translate.SinkShape) (models.SinkResult, error) {
	if f.err != nil {
		return models.SinkResult{}, f.err
	}
	f.sent = append(f.sent, shape)
	return models.SinkResult{ID: f.id}, nil
}

type fakeBatchSink struct {
	rows []translate.ColumnarRow
	id   string
	err  error
}

func (f *fakeBatchSink) SendBatch(_ context.Context, rows []translate.ColumnarRow) (models.SinkResult, error) {
	if f.err != nil {
		return models.SinkResult{}, f.err
	}
	f.rows = append(f.rows, rows...)
	return models.SinkResult{ID: f.id}, nil
}

type EngineSuite struct {
	suite.Suite
	hash       []byte
	auditStore *auditmem.Store
	engine     *Engine
	state      *enforcement.State
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupSuite() {
	var err error
	s.hash, err = bcrypt.GenerateFromPassword([]byte(recoveryCode), bcrypt.MinCost)
	s.Require().NoError(err)
}

func (s *EngineSuite) SetupTest() {
	s.buildEngine(models.ModeStrict, 3)
}

func (s *EngineSuite) buildEngine(mode models.Mode, threshold int) {
	validator, err := contract.New(contract.Contract{RecognizedVersions: []string{"1.0.0"}})
	s.Require().NoError(err)

	s.state, err = enforcement.New(enforcement.Config{
		Mode:               mode,
		ViolationThreshold: threshold,
		RecoveryCodeHash:   s.hash,
	})
	s.Require().NoError(err)

	relational, err := translate.NewRelationalTranslator("doctrine_records")
	s.Require().NoError(err)
	columnar, err := translate.NewColumnarTranslator(translate.ColumnarSchema{
		Table:   "blueprint_events",
		Columns: []translate.ColumnarColumn{{Name: "path", Type: translate.TypeString}},
	})
	s.Require().NoError(err)

	s.auditStore = auditmem.New()
	s.engine, err = New(validator, s.state, Translators{
		Document:   translate.NewDocumentTranslator(),
		Relational: relational,
		Columnar:   columnar,
	},
		WithAuditPublisher(audit.NewPublisher(s.auditStore)),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
	)
	s.Require().NoError(err)
}

func (s *EngineSuite) record(tool string, data map[string]any) map[string]any {
	return map[string]any{
		models.FieldSourceID:      tool,
		models.FieldProcessID:     "proc-42",
		models.FieldBlueprintID:   "bp-main",
		models.FieldSchemaVersion: "1.0.0",
		models.FieldData:          data,
	}
}

func (s *EngineSuite) stamped(tool string, data map[string]any) *models.CanonicalRecord {
	rec, err := s.engine.ValidateAndStamp(context.Background(), s.record(tool, data), tool)
	s.Require().NoError(err)
	return rec
}

func (s *EngineSuite) TestNew() {
	s.Run("requires validator, state, and a translator", func() {
		_, err := New(nil, s.state, Translators{Document: translate.NewDocumentTranslator()})
		s.Error(err)

		validator, verr := contract.New(contract.Contract{RecognizedVersions: []string{"1.0.0"}})
		s.Require().NoError(verr)

		_, err = New(validator, nil, Translators{Document: translate.NewDocumentTranslator()})
		s.Error(err)

		_, err = New(validator, s.state, Translators{})
		s.Error(err)
	})
}

func (s *EngineSuite) TestValidateAndStamp() {
	ctx := context.Background()

	s.Run("valid record is stamped and audited nothing", func() {
		rec := s.stamped("cursor-sync", map[string]any{"path": "/etc/app"})
		s.Equal("cursor-sync", rec.SourceID)
		s.NotEmpty(rec.RecordID)
		s.Empty(s.auditStore.All())
	})

	s.Run("violation is recorded and re-raised", func() {
		_, err := s.engine.ValidateAndStamp(ctx, map[string]any{}, "bad-tool")

		var violation *models.ContractViolation
		s.Require().True(errors.As(err, &violation))

		events := s.auditStore.All()
		s.Require().NotEmpty(events)
		s.Equal(audit.KindViolation, events[0].Kind)
		s.Equal("bad-tool", events[0].ToolID)
	})

	s.Run("strict mode blacklists on first violation and rejects later valid calls", func() {
		_, err := s.engine.ValidateAndStamp(ctx, map[string]any{}, "cursor-sync")
		s.Error(err)

		_, err = s.engine.ValidateAndStamp(ctx, s.record("cursor-sync", map[string]any{"k": "v"}), "cursor-sync")
		var banned *models.ToolBlacklistedError
		s.Require().True(errors.As(err, &banned))
		s.Equal("cursor-sync", banned.Tool)
	})
}

func (s *EngineSuite) TestAdvisoryMode() {
	s.buildEngine(models.ModeAdvisory, 3)
	ctx := context.Background()

	s.Run("repeated violations never blacklist or lock", func() {
		for i := 0; i < 5; i++ {
			_, err := s.engine.ValidateAndStamp(ctx, map[string]any{}, "cursor-sync")
			var violation *models.ContractViolation
			s.Require().True(errors.As(err, &violation))
		}

		status := s.engine.Status()
		s.Equal(5, status.ViolationCount)
		s.Empty(status.Blacklist)
		s.False(status.Locked)

		// The tool still passes a valid payload through.
		rec := s.stamped("cursor-sync", map[string]any{"path": "/etc/app"})
		s.NotNil(rec)
	})
}

func (s *EngineSuite) TestLockdown() {
	ctx := context.Background()

	s.Run("threshold violations from distinct tools lock the system", func() {
		for _, tool := range []string{"tool-a", "tool-b", "tool-c"} {
			_, err := s.engine.ValidateAndStamp(ctx, map[string]any{}, tool)
			var violation *models.ContractViolation
			s.Require().True(errors.As(err, &violation))
		}

		status := s.engine.Status()
		s.Equal(3, status.ViolationCount)
		s.True(status.Locked)

		// A fourth tool's otherwise-valid call fails with the lockout error.
		_, err := s.engine.ValidateAndStamp(ctx, s.record("tool-d", map[string]any{"k": "v"}), "tool-d")
		var locked *models.SystemLockedError
		s.Require().True(errors.As(err, &locked))

		// Lockdown was audited.
		var sawLockdown bool
		for _, e := range s.auditStore.All() {
			if e.Kind == audit.KindLockdown {
				sawLockdown = true
			}
		}
		s.True(sawLockdown)
	})
}

func (s *EngineSuite) TestRecover() {
	ctx := context.Background()

	// Drive into lockdown.
	for _, tool := range []string{"tool-a", "tool-b", "tool-c"} {
		_, _ = s.engine.ValidateAndStamp(ctx, map[string]any{}, tool)
	}
	s.Require().True(s.engine.Status().Locked)

	s.Run("wrong code leaves the lock engaged", func() {
		err := s.engine.Recover(ctx, "WRONG")
		var denied *models.RecoveryDeniedError
		s.Require().True(errors.As(err, &denied))
		s.True(s.engine.Status().Locked)
	})

	s.Run("correct code restores normal operation", func() {
		s.Require().NoError(s.engine.Recover(ctx, recoveryCode))

		status := s.engine.Status()
		s.False(status.Locked)
		s.Empty(status.Blacklist)
		s.Zero(status.ViolationCount)

		rec := s.stamped("tool-a", map[string]any{"path": "/etc/app"})
		s.NotNil(rec)
	})
}

func (s *EngineSuite) TestDispatch() {
	ctx := context.Background()

	s.Run("document dispatch returns the sink's native id", func() {
		rec := s.stamped("cursor-sync", map[string]any{"path": "/etc/app"})
		sink := &fakeSink{id: "doc-123"}

		result, err := s.engine.Dispatch(ctx, rec, models.SinkDocument, sink)
		s.Require().NoError(err)
		s.Equal("doc-123", result.SinkID)
		s.Equal(models.SinkDocument, result.SinkKind)
		s.Len(sink.sent, 1)

		// Successful dispatch is audited.
		events, err := s.auditStore.ListByTool(ctx, "cursor-sync")
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(audit.KindDispatch, events[0].Kind)
	})

	s.Run("missing sentinel passes document but fails relational dispatch", func() {
		rec := s.stamped("cursor-sync", map[string]any{"optionalField": models.Missing})

		_, err := s.engine.Dispatch(ctx, rec, models.SinkDocument, &fakeSink{id: "doc-9"})
		s.NoError(err)

		_, err = s.engine.Dispatch(ctx, rec, models.SinkRelational, &fakeSink{id: "row-9"})
		s.Require().Error(err)
		s.Contains(err.Error(), "optionalField")
	})

	s.Run("sink error is wrapped, never retried, never a violation", func() {
		rec := s.stamped("cursor-sync", map[string]any{"path": "/etc/app"})
		sinkErr := errors.New("connection refused")
		sink := &fakeSink{err: sinkErr}

		_, err := s.engine.Dispatch(ctx, rec, models.SinkDocument, sink)

		var dispatchErr *models.SinkDispatchError
		s.Require().True(errors.As(err, &dispatchErr))
		s.True(errors.Is(err, sinkErr))
		s.Zero(s.engine.Status().ViolationCount)
	})

	s.Run("dispatch refuses blacklisted source tools", func() {
		rec := s.stamped("doomed-tool", map[string]any{"path": "/x"})
		_, _ = s.engine.ValidateAndStamp(ctx, map[string]any{}, "doomed-tool")

		_, err := s.engine.Dispatch(ctx, rec, models.SinkDocument, &fakeSink{id: "doc-1"})
		var banned *models.ToolBlacklistedError
		s.Require().True(errors.As(err, &banned))
	})

	s.Run("dispatch is refused under lockdown regardless of caller", func() {
		rec := s.stamped("innocent-tool", map[string]any{"path": "/x"})
		for _, tool := range []string{"t1", "t2", "t3"} {
			_, _ = s.engine.ValidateAndStamp(ctx, map[string]any{}, tool)
		}

		_, err := s.engine.Dispatch(ctx, rec, models.SinkDocument, &fakeSink{id: "doc-1"})
		var locked *models.SystemLockedError
		s.Require().True(errors.As(err, &locked))
	})
}

func (s *EngineSuite) TestDispatchBatch() {
	ctx := context.Background()

	s.Run("valid subset dispatches, invalid records are reported", func() {
		batch := []*models.CanonicalRecord{
			s.stamped("cursor-sync", map[string]any{"path": "/a"}),
			s.stamped("cursor-sync", map[string]any{"path": "/b"}),
			s.stamped("cursor-sync", map[string]any{"path": models.Missing}),
			s.stamped("cursor-sync", map[string]any{"path": "/d"}),
			s.stamped("cursor-sync", map[string]any{"path": "/e"}),
		}
		sink := &fakeBatchSink{id: "blueprint_events/0@17"}

		result, err := s.engine.DispatchBatch(ctx, batch, sink)
		s.Require().NoError(err)
		s.Equal(4, result.Dispatched)
		s.Equal("blueprint_events/0@17", result.SinkResult.ID)
		s.Require().Len(result.Errors, 1)
		s.Equal(2, result.Errors[0].Index)
		s.Len(sink.rows, 4)
	})

	s.Run("fully invalid batch skips the sink", func() {
		batch := []*models.CanonicalRecord{
			s.stamped("cursor-sync", map[string]any{"path": models.Missing}),
		}
		sink := &fakeBatchSink{id: "unused"}

		result, err := s.engine.DispatchBatch(ctx, batch, sink)
		s.Require().NoError(err)
		s.Zero(result.Dispatched)
		s.Len(result.Errors, 1)
		s.Empty(sink.rows)
	})

	s.Run("batch sink error is wrapped as dispatch failure", func() {
		batch := []*models.CanonicalRecord{
			s.stamped("cursor-sync", map[string]any{"path": "/a"}),
		}
		sink := &fakeBatchSink{err: errors.New("broker unavailable")}

		_, err := s.engine.DispatchBatch(ctx, batch, sink)
		var dispatchErr *models.SinkDispatchError
		s.Require().True(errors.As(err, &dispatchErr))
	})
}

func (s *EngineSuite) TestSetMode() {
	ctx := context.Background()

	s.Run("is idempotent", func() {
		s.Require().NoError(s.engine.SetMode(ctx, models.ModeStrict))
		before := s.engine.Status()
		s.Require().NoError(s.engine.SetMode(ctx, models.ModeStrict))
		s.Equal(before, s.engine.Status())
	})

	s.Run("rejects unknown modes", func() {
		s.Error(s.engine.SetMode(ctx, "nuclear"))
	})
}
