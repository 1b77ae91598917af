// Command server runs the acquisition gate: the HTTP decision surface, the
// retention and notification sweeper, and the optional Kafka audit mirror.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"talentgate/internal/audit"
	audithandler "talentgate/internal/audit/handler"
	auditkafka "talentgate/internal/audit/kafka"
	"talentgate/internal/jwtauth"
	"talentgate/internal/platform/config"
	"talentgate/internal/platform/httpserver"
	"talentgate/internal/platform/logger"
	"talentgate/internal/platform/metrics"
	"talentgate/internal/platform/postgres"
	platformredis "talentgate/internal/platform/redis"
	"talentgate/internal/policy"
	policyhandler "talentgate/internal/policy/handler"
	"talentgate/internal/profile"
	"talentgate/internal/profile/crypto"
	profilehandler "talentgate/internal/profile/handler"
	profilestore "talentgate/internal/profile/store"
	"talentgate/internal/ratelimit"
	"talentgate/internal/ratelimit/store/bucket"
	"talentgate/internal/scheduler"
	httptransport "talentgate/internal/transport/http"
)

const mirrorBuffer = 256

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	policies, limits, err := config.LoadPolicies(cfg.PolicyFile)
	if err != nil {
		log.Error("policy file rejected", "path", cfg.PolicyFile, "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	sealerKey := cfg.PayloadKey
	if sealerKey == "" {
		sealerKey, err = crypto.GenerateKey()
		if err != nil {
			log.Error("payload key generation failed", "error", err)
			os.Exit(1)
		}
		log.Warn("TALENTGATE_PAYLOAD_KEY not set, using an ephemeral key; payloads will be unreadable after restart")
	}
	sealer, err := crypto.NewSealerFromBase64(sealerKey)
	if err != nil {
		log.Error("payload key rejected", "error", err)
		os.Exit(1)
	}

	// Storage: Postgres when configured, in-memory otherwise.
	var (
		recordStore profilestore.Store
		auditStore  audit.Store
	)
	db, err := postgres.Open(cfg.PostgresURL)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
		records := profilestore.NewPostgres(db)
		trail := audit.NewPostgres(db)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := records.EnsureSchema(ctx); err == nil {
			err = trail.EnsureSchema(ctx)
		}
		cancel()
		if err != nil {
			log.Error("schema setup failed", "error", err)
			os.Exit(1)
		}
		recordStore, auditStore = records, trail
		log.Info("using postgres storage")
	} else {
		recordStore = profilestore.NewInMemoryStore()
		auditStore = audit.NewInMemoryStore()
		log.Warn("TALENTGATE_POSTGRES_URL not set, using in-memory storage")
	}

	// Bucket state: Redis when configured, per-process otherwise.
	var bucketStore bucket.Store = bucket.NewInMemoryStore()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		bucketStore = bucket.NewRedisStore(redisClient.Client)
		log.Info("using redis bucket store")
	}

	auditOpts := []audit.Option{audit.WithLogger(log), audit.WithMetrics(m)}
	if len(cfg.KafkaBrokers) > 0 {
		auditOpts = append(auditOpts, audit.WithMirrorBuffer(mirrorBuffer))
	}
	auditor, err := audit.NewLogger(auditStore, auditOpts...)
	if err != nil {
		log.Error("audit logger setup failed", "error", err)
		os.Exit(1)
	}

	limiter, err := ratelimit.New(bucketStore, limits, ratelimit.WithLogger(log), ratelimit.WithMetrics(m))
	if err != nil {
		log.Error("rate limiter setup failed", "error", err)
		os.Exit(1)
	}

	engine, err := policy.New(recordStore, limiter, auditor, policies, policy.WithLogger(log), policy.WithMetrics(m))
	if err != nil {
		log.Error("policy engine setup failed", "error", err)
		os.Exit(1)
	}

	profiles, err := profile.New(recordStore, sealer, policies, profile.WithLogger(log), profile.WithMetrics(m))
	if err != nil {
		log.Error("profile service setup failed", "error", err)
		os.Exit(1)
	}

	sweeper, err := scheduler.New(recordStore, auditor, cfg.SweepInterval, scheduler.WithLogger(log), scheduler.WithMetrics(m))
	if err != nil {
		log.Error("sweeper setup failed", "error", err)
		os.Exit(1)
	}

	tokens := jwtauth.NewService(cfg.JWTSigningKey, "talentgate", "talentgate-api")

	router := httptransport.NewRouter(httptransport.Deps{
		Policy:      policyhandler.New(engine, log),
		Profile:     profilehandler.New(profiles, limiter, auditor, log),
		Audit:       audithandler.New(auditor, log),
		Validator:   jwtauth.NewAdapter(tokens),
		RecordStore: recordStore,
		AuditTrail:  auditor,
		Logger:      log,
	})

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting talentgate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	group.Go(func() error {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := auditkafka.New(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("kafka setup failed", "brokers", cfg.KafkaBrokers, "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		worker := audit.NewWorker(publisher, auditor.Mirror(), log)
		group.Go(func() error {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		log.Info("audit mirror enabled", "topic", cfg.KafkaTopic)
	}

	if err := group.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
