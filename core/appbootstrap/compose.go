package appbootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"incidentdesk/api"
	"incidentdesk/config"
	"incidentdesk/core/analytics"
	"incidentdesk/core/audit"
	"incidentdesk/core/auth"
	"incidentdesk/core/export"
	"incidentdesk/core/incidents"
	"incidentdesk/core/jobs"
	"incidentdesk/core/notify"
	"incidentdesk/core/rbac"
	"incidentdesk/core/store"
	"incidentdesk/core/uploads"
	"incidentdesk/core/users"
	"incidentdesk/core/utils"

	"github.com/redis/go-redis/v9"
)

type runtimeComposition struct {
	serverDeps api.ServerDeps
	sessions   *auth.SessionManager
	hasher     *auth.PasswordHasher
	workers    []api.BackgroundWorker
	closers    []func()
}

func (c *runtimeComposition) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func composeRuntime(ctx context.Context, cfg *config.AppConfig, db *store.DB, opts Options, logger *utils.Logger) (*runtimeComposition, error) {
	comp := &runtimeComposition{}
	ok := false
	defer func() {
		if !ok {
			comp.close()
		}
	}()

	usersStore := store.NewUsersStore(db)
	sessionsStore := store.NewSessionsStore(db)
	auditStore := store.NewAuditStore(db)
	incidentsStore := store.NewIncidentsStore(db)
	analyticsStore := store.NewAnalyticsStore(db)

	policy, err := rbac.NewPolicy(rbac.DefaultRoles())
	if err != nil {
		return nil, err
	}
	metrics := api.NewMetrics()

	recorderOpts := []audit.Option{audit.WithFailureCounter(metrics.AuditFailures)}
	if len(cfg.Audit.KafkaBrokers) > 0 {
		fwd, err := audit.NewKafkaForwarder(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic, logger)
		if err != nil {
			return nil, fmt.Errorf("audit kafka: %w", err)
		}
		comp.closers = append(comp.closers, fwd.Close)
		recorderOpts = append(recorderOpts, audit.WithForwarder(fwd))
		logger.Printf("audit forwarding enabled topic=%s", cfg.Audit.KafkaTopic)
	}
	if path := strings.TrimSpace(cfg.Audit.GeoIPPath); path != "" {
		geo, err := audit.OpenGeoIP(path)
		if err != nil {
			return nil, err
		}
		comp.closers = append(comp.closers, func() { _ = geo.Close() })
		recorderOpts = append(recorderOpts, audit.WithGeoLookup(geo))
	}
	recorder := audit.NewRecorder(auditStore, logger, recorderOpts...)

	hub := notify.NewHub(cfg.Notify.BufferSize, notify.WithCounters(metrics.NotifyPublished, metrics.NotifyDropped))
	var publisher notify.Publisher = hub
	if cfg.Notify.Driver == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Notify.RedisAddr,
			Password: cfg.Notify.RedisPassword,
			DB:       cfg.Notify.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("notify redis: %w", err)
		}
		comp.closers = append(comp.closers, func() { _ = client.Close() })
		relay := notify.NewRedisRelay(client, cfg.Notify.Channel, hub, logger)
		publisher = relay
		comp.workers = append(comp.workers, newRelayWorker(relay, logger))
	}

	secret, err := jwtSecret(cfg, logger)
	if err != nil {
		return nil, err
	}
	argon := auth.DefaultArgon2Params()
	if opts.Argon2 != nil {
		argon = *opts.Argon2
	}
	hasher := auth.NewPasswordHasher(cfg.Pepper, argon)
	sessions := auth.NewSessionManager(sessionsStore, cfg.EffectiveRefreshTTL(), logger)
	tokens := auth.NewTokenManager(secret, cfg.JWT.Issuer, cfg.EffectiveAccessTTL(), cfg.EffectiveResetTTL())
	authSvc := auth.NewService(cfg, usersStore, sessions, tokens, hasher, recorder, logger)

	storage, err := newStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	uploadsSvc := uploads.NewService(storage, uploads.Limits{
		MaxFiles:     cfg.Uploads.MaxFiles,
		MaxFileBytes: cfg.Uploads.MaxFileBytes,
		AllowedTypes: cfg.AllowedUploadTypes(),
	}, recorder, logger)

	incidentsSvc := incidents.NewService(incidentsStore, usersStore, policy, recorder, publisher, logger)
	auditQuery := audit.NewQuery(auditStore, usersStore)

	if cfg.Scheduler.Enabled {
		comp.workers = append(comp.workers, jobs.NewScheduler(cfg, auditStore, sessions, logger))
	}

	comp.serverDeps = api.ServerDeps{
		DB:         db,
		Policy:     policy,
		Audit:      recorder,
		AuditQuery: auditQuery,
		Auth:       authSvc,
		Incidents:  incidentsSvc,
		Users:      users.NewService(usersStore, sessions, hasher, policy, recorder, publisher, logger),
		Analytics:  analytics.NewService(analyticsStore, policy),
		Export:     export.NewService(incidentsSvc, auditQuery, policy, recorder),
		Uploads:    uploadsSvc,
		Hub:        hub,
		Metrics:    metrics,
	}
	comp.sessions = sessions
	comp.hasher = hasher
	ok = true
	return comp, nil
}

func newStorage(ctx context.Context, cfg *config.AppConfig) (uploads.Storage, error) {
	if cfg.Uploads.Backend == "s3" {
		return uploads.NewS3Storage(ctx, cfg.Uploads.S3)
	}
	return uploads.NewDiskStorage(cfg.Uploads.Dir)
}

// jwtSecret falls back to a per-process random secret outside production;
// tokens then do not survive a restart.
func jwtSecret(cfg *config.AppConfig, logger *utils.Logger) (string, error) {
	if s := strings.TrimSpace(cfg.JWT.Secret); s != "" {
		return s, nil
	}
	if cfg.IsProduction() {
		return "", errors.New("jwt secret is required in production")
	}
	s, err := utils.RandString(48)
	if err != nil {
		return "", err
	}
	logger.Warnf("jwt secret not configured, using an ephemeral one")
	return s, nil
}
