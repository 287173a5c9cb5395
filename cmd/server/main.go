package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"doctrine/internal/doctrine/contract"
	"doctrine/internal/doctrine/enforcement"
	"doctrine/internal/doctrine/engine"
	"doctrine/internal/doctrine/handler"
	"doctrine/internal/doctrine/metrics"
	"doctrine/internal/doctrine/models"
	"doctrine/internal/doctrine/translate"
	"doctrine/internal/platform/config"
	"doctrine/internal/platform/httpserver"
	"doctrine/internal/platform/logger"
	sinkcolumnar "doctrine/internal/sink/columnar"
	sinkdocument "doctrine/internal/sink/document"
	sinkrelational "doctrine/internal/sink/relational"
	httptransport "doctrine/internal/transport/http"
	"doctrine/pkg/platform/audit"
	auditmem "doctrine/pkg/platform/audit/store/memory"
	auditworker "doctrine/pkg/platform/audit/worker"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Doctrine logic lives in the internal packages.
func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	mode, err := models.ParseMode(cfg.Mode)
	if err != nil {
		log.Error("invalid DOCTRINE_MODE", "error", err)
		os.Exit(1)
	}

	validator, err := contract.New(contract.Contract{
		RecognizedVersions:  cfg.SchemaVersions,
		ForbiddenDataFields: cfg.ForbiddenDataFields,
	})
	if err != nil {
		log.Error("build contract validator", "error", err)
		os.Exit(1)
	}

	state, err := enforcement.New(enforcement.Config{
		Mode:               mode,
		ViolationThreshold: cfg.ViolationThreshold,
		RecoveryCodeHash:   []byte(cfg.RecoveryCodeHash),
	})
	if err != nil {
		log.Error("build enforcement state", "error", err)
		os.Exit(1)
	}

	translators, err := buildTranslators(cfg)
	if err != nil {
		log.Error("build translators", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Audit events buffer through a channel so enforcement never blocks on
	// the audit store.
	auditStore := auditmem.New()
	auditInbox := make(chan audit.Event, 1024)
	publisher := bufferedPublisher{inbox: auditInbox}

	eng, err := engine.New(validator, state, translators,
		engine.WithLogger(log),
		engine.WithAuditPublisher(publisher),
		engine.WithMetrics(metrics.New(registry)),
	)
	if err != nil {
		log.Error("build doctrine engine", "error", err)
		os.Exit(1)
	}

	sinks, cleanup, err := buildSinks(cfg)
	if err != nil {
		log.Error("build sinks", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	h := handler.New(eng, sinks, log)
	router := httptransport.NewRouter(h, registry, cfg.JWTSigningKey)
	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting doctrine gateway", "addr", cfg.Addr, "mode", mode.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		err := auditworker.New(auditStore, auditInbox).Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
}

// bufferedPublisher satisfies ports.AuditPublisher by handing events to the
// worker's inbox, dropping on overflow rather than blocking dispatch.
type bufferedPublisher struct {
	inbox chan<- audit.Event
}

func (p bufferedPublisher) Emit(_ context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		return errors.New("audit buffer full")
	}
}

func buildTranslators(cfg config.Config) (engine.Translators, error) {
	var opts []translate.RelationalOption
	if len(cfg.ConflictKeys) > 0 {
		opts = append(opts, translate.WithUpsert(cfg.ConflictKeys...))
	}
	relational, err := translate.NewRelationalTranslator(cfg.RecordsTable, opts...)
	if err != nil {
		return engine.Translators{}, err
	}

	// The analytic schema mirrors the warehouse table the Kafka loader
	// writes into; deployments declare it as name:TYPE pairs.
	columns := make([]translate.ColumnarColumn, 0, len(cfg.AnalyticColumns))
	for _, pair := range cfg.AnalyticColumns {
		name, typ, found := strings.Cut(pair, ":")
		if !found {
			return engine.Translators{}, fmt.Errorf("analytic column %q: want name:TYPE", pair)
		}
		columns = append(columns, translate.ColumnarColumn{
			Name: name,
			Type: translate.ColumnType(typ),
		})
	}
	columnar, err := translate.NewColumnarTranslator(translate.ColumnarSchema{
		Table:   cfg.AnalyticTable,
		Columns: columns,
	})
	if err != nil {
		return engine.Translators{}, err
	}

	return engine.Translators{
		Document:   translate.NewDocumentTranslator(),
		Relational: relational,
		Columnar:   columnar,
	}, nil
}

// buildSinks dials only the backends the environment configures. A nil sink
// leaves the corresponding ingest route answering 404.
func buildSinks(cfg config.Config) (handler.Sinks, func(), error) {
	var sinks handler.Sinks
	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return sinks, cleanup, err
		}
		client := redis.NewClient(opts)
		if err := client.Ping(context.Background()).Err(); err != nil {
			client.Close()
			return sinks, cleanup, err
		}
		closers = append(closers, func() { client.Close() })
		sinks.Document = sinkdocument.NewRedisSink(client)
	}

	if cfg.NeonDSN != "" {
		pg, err := sinkrelational.Open(context.Background(), cfg.NeonDSN)
		if err != nil {
			return sinks, cleanup, err
		}
		closers = append(closers, func() { pg.Close() })
		sinks.Relational = pg
	}

	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := sinkcolumnar.Dial(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return sinks, cleanup, err
		}
		closers = append(closers, kafka.Close)
		sinks.Columnar = kafka
	}

	return sinks, cleanup, nil
}
