// Command server runs the civic complaints HTTP API.
//
//	@title						Civic Complaints API
//	@version					1.0
//	@description				Citizen complaint intake, tracking and triage.
//	@BasePath					/api/v1
//	@license.name				MIT
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and the access token.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/civic-complaints-backend/internal/auth"
	"github.com/tbourn/civic-complaints-backend/internal/classify"
	"github.com/tbourn/civic-complaints-backend/internal/config"
	httpapi "github.com/tbourn/civic-complaints-backend/internal/http"
	"github.com/tbourn/civic-complaints-backend/internal/letter"
	"github.com/tbourn/civic-complaints-backend/internal/llm"
	"github.com/tbourn/civic-complaints-backend/internal/notify"
	"github.com/tbourn/civic-complaints-backend/internal/observability"
	"github.com/tbourn/civic-complaints-backend/internal/repo"
	"github.com/tbourn/civic-complaints-backend/internal/search"
	"github.com/tbourn/civic-complaints-backend/internal/services"
	"github.com/tbourn/civic-complaints-backend/internal/storage"
	"github.com/tbourn/civic-complaints-backend/internal/sysutil"
	"github.com/tbourn/civic-complaints-backend/internal/trackingid"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	log.Logger = sysutil.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty || sysutil.IsTruthy(os.Getenv("DEV")), cfg.OTEL.ServiceName)
	zerolog.DefaultContextLogger = &log.Logger
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	tokens, err := tokenManager(cfg.Admin)
	if err != nil {
		return err
	}
	admin := &services.AdminService{DB: db, Tokens: tokens}
	created, err := admin.EnsureBootstrapAdmin(ctx, cfg.Admin.BootstrapUsername, cfg.Admin.BootstrapPassword)
	if err != nil {
		return err
	}
	if created {
		log.Info().Str("username", cfg.Admin.BootstrapUsername).Msg("bootstrap admin created")
	}

	llmClient := llm.New(llm.Config{
		BaseURL:    cfg.LLM.BaseURL,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
	})
	pipeline, err := classifier(cfg, llmClient)
	if err != nil {
		return err
	}

	store, err := evidenceStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	dispatcher := notifier(db, cfg.Notify)
	defer dispatcher.Wait()

	complaints := &services.ComplaintService{
		DB:           db,
		Classifier:   pipeline,
		IDs:          trackingid.New(cfg.TrackingPrefix, cfg.TrackingDigits),
		Store:        store,
		Notifier:     dispatcher,
		Detach:       dispatcher.Go,
		MaxTextRunes: cfg.MaxTextRunes,
	}
	if llmClient.Enabled() {
		complaints.Letters = &letter.LLMGenerator{Client: llmClient}
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable; limiter fails open until it recovers")
		}
		cancel()
	}

	deps := httpapi.Deps{
		DB:         db,
		Complaints: complaints,
		Status:     &services.StatusService{DB: db, Notifier: dispatcher, Detach: dispatcher.Go},
		Stats:      &services.StatsService{DB: db, Location: cfg.StatsLocation},
		Admin:      admin,
		Citizens:   &services.CitizenService{DB: db, Tokens: tokens},
		Export:     &services.ExportService{DB: db, Location: cfg.StatsLocation, MaxRows: cfg.ExportMaxRows},
		Classifier: pipeline,
		Tokens:     tokens,
	}
	if rdb != nil {
		deps.Redis = rdb
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)

	go purgeIdempotency(ctx, db, time.Hour)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if cfg.OTEL.Enabled {
		if err := observability.InstrumentDB(db, "complaints"); err != nil {
			return nil, err
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, err
	}
	if err := repo.SeedDepartments(ctx, db); err != nil {
		return nil, err
	}
	return db, nil
}

func tokenManager(cfg config.AdminConfig) (*auth.TokenManager, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		s, err := sysutil.RandomSecret(32)
		if err != nil {
			return nil, err
		}
		secret = s
		log.Warn().Msg("JWT_SECRET not set; admin tokens will not survive a restart")
	}
	return auth.NewTokenManager(secret, cfg.TokenTTL, cfg.Issuer), nil
}

func classifier(cfg config.Config, client *llm.Client) (*classify.Pipeline, error) {
	var exemplars []search.Doc
	if cfg.Classifier.ExemplarsPath != "" {
		docs, err := search.LoadExemplars(cfg.Classifier.ExemplarsPath)
		if err != nil {
			return nil, err
		}
		exemplars = docs
	}

	var completer classify.Completer
	if client.Enabled() {
		completer = client
	}
	mode := cfg.Classifier.Mode
	if mode == classify.ModeLLM && completer == nil {
		log.Warn().Msg("CLASSIFIER_MODE=llm without LLM_API_KEY; using keyword rules")
		mode = classify.ModeKeyword
	}
	primary, err := classify.NewProvider(mode, completer, exemplars, cfg.Classifier.MinScore)
	if err != nil {
		return nil, err
	}

	var (
		captioner   classify.Captioner
		transcriber classify.Transcriber
	)
	if c := classify.NewHTTPCaptioner(classify.CapabilityConfig(cfg.Captioner)); c != nil {
		captioner = c
	}
	if t := classify.NewHTTPTranscriber(classify.CapabilityConfig(cfg.Transcriber)); t != nil {
		transcriber = t
	}
	log.Info().
		Str("mode", mode).
		Bool("captioning", captioner != nil).
		Bool("transcription", transcriber != nil).
		Msg("classifier ready")
	return classify.NewPipeline(primary, captioner, transcriber, cfg.Classifier.Timeout), nil
}

func evidenceStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Backend {
	case "azure":
		az, err := storage.NewAzure(cfg.AzureConnString, cfg.AzureContainer)
		if err != nil {
			return nil, err
		}
		if err := az.EnsureContainer(ctx); err != nil {
			return nil, err
		}
		return az, nil
	default:
		return storage.NewLocal(cfg.LocalRoot, cfg.MaxUploadBytes)
	}
}

func notifier(db *gorm.DB, cfg config.NotifyConfig) *notify.Dispatcher {
	var chain notify.Chain
	if sg := notify.NewSendGrid(cfg.SendGridBaseURL, cfg.SendGridAPIKey, cfg.FromEmail, cfg.Timeout); sg != nil {
		chain = append(chain, sg)
	}
	if s := notify.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.FromEmail); s != nil {
		chain = append(chain, s)
	}

	var (
		email notify.EmailSender
		sms   notify.SMSSender
	)
	if len(chain) > 0 {
		email = chain
	}
	if cfg.SMSEnabled {
		sms = notify.LogSMS{}
	}
	log.Info().
		Str("email", sysutil.FirstNonEmpty(nameOf(email), "disabled")).
		Bool("sms", sms != nil).
		Msg("notifications ready")
	return notify.NewDispatcher(db, email, sms, cfg.Timeout)
}

func nameOf(s notify.EmailSender) string {
	if s == nil {
		return ""
	}
	return s.Name()
}

func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		n, err := repo.PurgeExpiredIdempotency(ctx, db, time.Now().UTC())
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("purge idempotency keys")
		} else if n > 0 {
			log.Debug().Int64("rows", n).Msg("purged expired idempotency keys")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
