package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"artpriyo-settlement/handlers"
	"artpriyo-settlement/middleware"
	"artpriyo-settlement/repository"
	"artpriyo-settlement/services"
	"artpriyo-settlement/utils"
	"artpriyo-settlement/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	log := utils.NewLogger("main")

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("⚠️  No .env file found, reading environment variables directly")
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL environment variable not set")
	}
	if cfg.ServiceToken == "" {
		log.Fatal().Msg("SERVICE_TOKEN environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := repository.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	store := repository.NewGormStore(db)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := services.NewMetrics(reg)

	clock := clockwork.NewRealClock()
	ref := services.NewReferenceClock(clock, cfg.ReferenceZone)
	ledger := services.NewLedger(store, clock)
	ranker := services.NewRanker(store, store)
	distributor := services.NewDistributor(store, ledger, utils.NewLogger("prize"))
	codes := services.NewCodeStore(clock, cfg.PaymentRefTTL)
	defer codes.Close()

	lifecycle := services.NewLifecycleService(store, ranker, distributor, ref,
		cfg.SettlementLease, cfg.SettlementConcurrency, metrics, utils.NewLogger("lifecycle"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, err := lifecycle.StartLifecycleScheduler(ctx, cfg.LifecycleInterval, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start lifecycle scheduler")
	}
	defer sched.Shutdown()

	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Client(ctx, cfg.R2)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize R2 client")
		}
		go workers.PollSettlementReceipts(ctx, store, r2, cfg.ReceiptPollInterval, utils.NewLogger("receipts"))
	} else {
		log.Warn().Msg("⚠️  R2 not configured, settlement receipts will not be archived")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
		Immutable: true,
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed, probes excepted
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, "/healthz", "/metrics"))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupOpsRoutes(app, reg)
	handlers.SetupEventRoutes(app, &handlers.EventHandler{
		Events:     services.NewEventService(store, ref, utils.NewLogger("events")),
		Enrollment: services.NewEnrollmentService(store, ledger, ref, codes, metrics, utils.NewLogger("enrollment")),
		Ranker:     ranker,
		Ledger:     ledger,
		Lifecycle:  lifecycle,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("Server error")
			stop()
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("✅ Server running")
	log.Info().Str("origins", cfg.AllowedOrigins).Msg("✅ CORS configured")
	log.Info().Str("zone", cfg.ReferenceZone.String()).Dur("interval", cfg.LifecycleInterval).Msg("✅ Lifecycle scans running")

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
