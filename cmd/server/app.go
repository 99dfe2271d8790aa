package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"petregistry/internal/handover"
	handoverhandler "petregistry/internal/handover/handler"
	"petregistry/internal/handover/lockout"
	"petregistry/internal/identity"
	jwttoken "petregistry/internal/jwt_token"
	"petregistry/internal/notify"
	"petregistry/internal/platform/config"
	"petregistry/internal/platform/kafka"
	kafkaconsumer "petregistry/internal/platform/kafka/consumer"
	"petregistry/internal/platform/kafka/producer"
	"petregistry/internal/platform/metrics"
	"petregistry/internal/platform/middleware"
	"petregistry/internal/platform/postgres"
	platformredis "petregistry/internal/platform/redis"
	reghandler "petregistry/internal/registry/handler"
	regmetrics "petregistry/internal/registry/metrics"
	regservice "petregistry/internal/registry/service"
	regstore "petregistry/internal/registry/store"
	reshandler "petregistry/internal/reservation/handler"
	resmetrics "petregistry/internal/reservation/metrics"
	resservice "petregistry/internal/reservation/service"
	resstore "petregistry/internal/reservation/store"
	"petregistry/internal/sources"
	"petregistry/internal/transfer"
	transferhandler "petregistry/internal/transfer/handler"
	audit "petregistry/pkg/platform/audit"
	auditconsumer "petregistry/pkg/platform/audit/consumer"
	"petregistry/pkg/platform/audit/publishers/compliance"
	"petregistry/pkg/platform/audit/publishers/ops"
	"petregistry/pkg/platform/audit/publishers/security"
	auditmemory "petregistry/pkg/platform/audit/store/memory"
	auditpostgres "petregistry/pkg/platform/audit/store/postgres"
	auditworker "petregistry/pkg/platform/audit/worker"
	"petregistry/pkg/platform/httputil"
	"petregistry/pkg/platform/middleware/admin"
	"petregistry/pkg/platform/middleware/auth"
	"petregistry/pkg/platform/middleware/metadata"
	"petregistry/pkg/platform/middleware/requesttime"
	"petregistry/pkg/platform/tx"
)

type registryStore interface {
	regservice.Store
	identity.CodeChecker
}

type reservationStore interface {
	resservice.Store
	handover.Store
	identity.CodeChecker
}

// worker is a long-running loop started next to the HTTP server.
type worker struct {
	Name string
	Run  func(ctx context.Context) error
}

type app struct {
	Router  http.Handler
	Workers []worker
	closers []func()
	checks  map[string]func(context.Context) error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// healthz pings every configured backend; any failure reports 503.
func (a *app) healthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{}
	code := http.StatusOK
	for name, check := range a.checks {
		if err := check(r.Context()); err != nil {
			status[name] = "down"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "up"
	}
	httputil.WriteJSON(w, code, status)
}

// stores groups the backends chosen by configuration.
type stores struct {
	runner      tx.Runner
	registry    registryStore
	reservation reservationStore
	audit       audit.Store
	lockout     lockout.Store
}

func build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{checks: map[string]func(context.Context) error{}}
	st, err := openStores(ctx, cfg, log, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	opsTracker := ops.New(st.audit, ops.WithLogger(log), ops.WithMetrics(ops.NewMetrics()))
	securityPub := security.New(st.audit, security.WithLogger(log))
	a.closers = append(a.closers, func() { _ = securityPub.Close() })
	compliancePub := compliance.New(st.audit, compliance.WithLogger(log), compliance.WithMetrics(compliance.NewMetrics()))

	regOpts := []regservice.Option{
		regservice.WithLogger(log),
		regservice.WithMetrics(regmetrics.New()),
		regservice.WithOpsTracker(opsTracker),
	}
	if cfg.Sources.BaseURL != "" {
		src := sources.New(cfg.Sources.BaseURL, cfg.Sources.Timeout,
			sources.WithLogger(log),
			sources.WithMetrics(sources.NewMetrics()),
			sources.WithBreaker(cfg.Sources.FailureThreshold, cfg.Sources.Cooldown),
		)
		regOpts = append(regOpts, regservice.WithDescriptiveSource(src))
	}
	petCodes := identity.New(identity.PetCodeFormat, st.registry,
		identity.WithMaxRetries(cfg.Identity.MaxRetries),
		identity.WithLogger(log),
		identity.WithMetrics(identity.NewMetrics("pet")),
	)
	registry := regservice.New(st.registry, petCodes, st.runner, regOpts...)

	engine := transfer.New(registry, st.runner, compliancePub,
		transfer.WithLogger(log),
		transfer.WithMetrics(transfer.NewMetrics()),
	)

	reservationCodes := identity.New(identity.ReservationCodeFormat, st.reservation,
		identity.WithMaxRetries(cfg.Identity.MaxRetries),
		identity.WithLogger(log),
		identity.WithMetrics(identity.NewMetrics("reservation")),
	)
	reservations := resservice.New(st.reservation, registry, reservationCodes, st.runner,
		resservice.WithLogger(log),
		resservice.WithMetrics(resmetrics.New()),
		resservice.WithOpsTracker(opsTracker),
		resservice.WithPendingTTL(cfg.Reservation.PendingTTL),
	)
	sweeper := resservice.NewSweeper(reservations, cfg.Reservation.SweepInterval, cfg.Reservation.SweepBatchSize, log)
	a.Workers = append(a.Workers, worker{Name: "reservation-sweeper", Run: sweeper.Run})

	sender, err := wireKafka(ctx, cfg, log, st, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	guard := lockout.NewGuard(st.lockout, lockout.Config{
		MaxAttempts: cfg.Handover.MaxAttempts,
		Window:      cfg.Handover.AttemptWindow,
		Duration:    cfg.Handover.LockoutDuration,
	})
	handovers := handover.New(st.reservation, registry, engine, guard, st.runner, compliancePub,
		handover.WithLogger(log),
		handover.WithMetrics(handover.NewMetrics()),
		handover.WithSender(sender),
		handover.WithSecurityPublisher(securityPub),
		handover.WithOpsTracker(opsTracker),
		handover.WithOTPHashCost(cfg.Handover.OTPHashCost),
	)

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	registryHandler := reghandler.New(registry, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.LatencyMiddleware(metrics.New()))
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", a.healthz)

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(auth.RequireAuth(jwttoken.NewJWTServiceAdapter(jwtService), log))
		registryHandler.Register(r)
		reshandler.New(reservations, log).Register(r)
		handoverhandler.New(handovers, log).Register(r)
		transferhandler.New(engine, log).Register(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(cfg.Auth.AdminToken, log))
		registryHandler.RegisterAdmin(r)
	})

	a.Router = r
	return a, nil
}

// openStores picks PostgreSQL when a database URL is configured and the
// in-memory stores otherwise. The lockout counter prefers Redis when set.
func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger, a *app) (*stores, error) {
	st := &stores{}
	if cfg.UsesPostgres() {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		a.checks["postgres"] = db.PingContext
		if cfg.Database.AutoMigrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				return nil, err
			}
		}
		st.runner = tx.NewSQLRunner(db, cfg.Database.TxTimeout)
		st.registry = regstore.NewPostgres(db)
		st.reservation = resstore.NewPostgres(db)
		st.audit = auditpostgres.New(db)
		st.lockout = lockout.NewPostgresStore(db)
	} else {
		log.Warn("database url not set; using in-memory stores")
		st.runner = tx.NewShardedRunner(cfg.Database.TxTimeout)
		st.registry = regstore.NewInMemory()
		st.reservation = resstore.NewInMemory()
		st.audit = auditmemory.NewInMemoryStore()
		st.lockout = lockout.NewInMemoryStore()
	}

	rc, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		a.closers = append(a.closers, func() { _ = rc.Close() })
		a.checks["redis"] = rc.Health
		st.lockout = lockout.NewRedisStore(rc.Client)
	}
	return st, nil
}

// wireKafka creates topics, the outbox relay and the audit consumer, and
// returns the passcode sender. Without brokers passcodes are only logged.
func wireKafka(ctx context.Context, cfg *config.Config, log *slog.Logger, st *stores, a *app) (notify.Sender, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Warn("kafka brokers not set; handover passcodes are logged, not delivered")
		return notify.NewLogSender(log), nil
	}

	prefix := cfg.Kafka.AuditTopic
	auditTopics := []string{
		auditworker.TopicFor(prefix, string(audit.CategoryCompliance)),
		auditworker.TopicFor(prefix, string(audit.CategorySecurity)),
		auditworker.TopicFor(prefix, string(audit.CategoryOperations)),
	}
	topicCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := kafka.EnsureTopics(topicCtx, cfg.Kafka.Brokers, 3, 1, append(auditTopics, cfg.Kafka.NotificationTopic)...); err != nil {
		return nil, err
	}

	prod, err := producer.New(cfg.Kafka.Brokers, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, prod.Close)
	sender := notify.NewKafkaSender(prod, cfg.Kafka.NotificationTopic,
		notify.NewQRRenderer(cfg.Notify.QRSize, cfg.Notify.QRRecoveryLevel))

	// The outbox and the materialized audit table live in PostgreSQL.
	pgAudit, ok := st.audit.(*auditpostgres.Store)
	if !ok {
		return sender, nil
	}
	relay := auditworker.NewRelay(pgAudit, prod, prefix, cfg.Kafka.OutboxBatchSize, cfg.Kafka.OutboxInterval, log)
	a.Workers = append(a.Workers, worker{Name: "audit-outbox-relay", Run: relay.Run})

	router := auditconsumer.NewRouter(log, nil)
	router.Register(auditTopics[0], auditconsumer.NewComplianceHandler(pgAudit, log))
	router.Register(auditTopics[1], auditconsumer.NewSecurityHandler(pgAudit, log))
	router.Register(auditTopics[2], auditconsumer.NewOpsHandler(pgAudit, log))
	cons, err := kafkaconsumer.New(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, router.Topics(), log)
	if err != nil {
		return nil, fmt.Errorf("create audit consumer: %w", err)
	}
	a.closers = append(a.closers, cons.Close)
	a.Workers = append(a.Workers, worker{Name: "audit-consumer", Run: func(ctx context.Context) error {
		return cons.Run(ctx, router)
	}})
	return sender, nil
}
