package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AnshRaj112/serenify-conversations/internal/config"
	"github.com/AnshRaj112/serenify-conversations/internal/database"
	"github.com/AnshRaj112/serenify-conversations/internal/handlers"
	"github.com/AnshRaj112/serenify-conversations/internal/identity"
	"github.com/AnshRaj112/serenify-conversations/internal/logger"
	"github.com/AnshRaj112/serenify-conversations/internal/membership"
	"github.com/AnshRaj112/serenify-conversations/internal/middleware"
	"github.com/AnshRaj112/serenify-conversations/internal/realtime"
	"github.com/AnshRaj112/serenify-conversations/internal/routes"
	"github.com/AnshRaj112/serenify-conversations/internal/services"
	"github.com/AnshRaj112/serenify-conversations/internal/store"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"go.mongodb.org/mongo-driver/mongo"
)

const sweepEvery = 6

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	cmd := &cli.Command{
		Name:  "conversations",
		Usage: "private and group chat service",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP and websocket server",
				Action: serve,
			},
			{
				Name:  "reconcile",
				Usage: "repair the participant projection once and exit",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "sweep", Usage: "also compare every chat against its projection rows"},
				},
				Action: reconcile,
			},
		},
		DefaultCommand: "serve",
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.Run(ctx, os.Args); err != nil {
		logrus.WithError(err).Fatal("Exiting")
	}
}

// backend holds the connections shared by both commands.
type backend struct {
	cfg    *config.Config
	log    *logrus.Logger
	store  *store.Store
	events store.EventLog
	mongo  *mongo.Client
	redis  *redis.Client
	pg     *sql.DB
}

func connect(ctx context.Context) (*backend, error) {
	cfg := config.Load()
	log := logger.New(cfg.IsProduction())
	b := &backend{cfg: cfg, log: log}

	if cfg.UsesMemoryStore() {
		log.Warn("Using the in-memory store; data is lost on restart")
		b.store = store.NewMemoryStore().Store()
	} else {
		client, db, err := database.ConnectMongo(ctx, log, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		b.mongo = client
		if err := store.EnsureIndexes(ctx, db); err != nil {
			log.WithError(err).Warn("Failed to ensure MongoDB indexes")
		}
		b.store = store.NewMongoStore(client, db, cfg.MongoTransactions)
	}

	if cfg.RedisURI != "" {
		client, err := database.ConnectRedis(ctx, log, cfg.RedisURI)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable; realtime stays local and rate limits per instance")
		} else {
			b.redis = client
		}
	}

	b.events = store.NewMemoryEventLog()
	if cfg.PostgresURI != "" {
		db, err := database.ConnectPostgres(ctx, log, cfg.PostgresURI)
		if err != nil {
			b.close()
			return nil, err
		}
		b.pg = db
		b.events = store.NewPostgresEventLog(db)
	}
	return b, nil
}

func (b *backend) close() {
	if b.pg != nil {
		_ = b.pg.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if err := database.DisconnectMongo(b.mongo); err != nil {
		b.log.WithError(err).Warn("MongoDB disconnect failed")
	}
}

func (b *backend) resolver() identity.Resolver {
	cfg := b.cfg
	if cfg.IdentityServiceURL == "" {
		b.log.Warn("IDENTITY_SERVICE_URL not set; every user id is treated as verified")
		return &identity.Static{Open: true}
	}
	opts := identity.Options{
		BaseURL:        cfg.IdentityServiceURL,
		Timeout:        cfg.IdentityTimeout,
		MaxConcurrency: cfg.IdentityMaxConcurrency,
	}
	if b.redis != nil {
		opts.Cache = identity.NewRedisCache(b.redis, cfg.IdentityCacheTTL)
	}
	return identity.NewClient(opts)
}

func serve(ctx context.Context, _ *cli.Command) error {
	b, err := connect(ctx)
	if err != nil {
		return err
	}
	defer b.close()
	cfg, log := b.cfg, b.log

	hub := realtime.NewHub()
	var pub realtime.Publisher = realtime.NewLocalBroker(hub)
	if b.redis != nil {
		broker := realtime.NewRedisBroker(b.redis, hub, log)
		go broker.Run(ctx)
		pub = broker
	}

	local := membership.NewLocal(b.store.Chats)
	var members membership.Checker = local
	if cfg.MembershipServiceURL != "" {
		members = membership.NewRemote(cfg.MembershipServiceURL, cfg.CallerIDHeader, []byte(cfg.GatewaySharedSecret), cfg.IdentityTimeout)
	}

	deps := services.Deps{
		Store:      b.store,
		Events:     b.events,
		Identity:   b.resolver(),
		Members:    members,
		Realtime:   pub,
		EditWindow: cfg.MessageEditWindow,
	}
	chats := services.NewChatService(deps)
	messages := services.NewMessageService(deps)

	if cfg.ReconcileInterval > 0 {
		go services.NewReconciler(b.store, b.events, log).Run(ctx, cfg.ReconcileInterval, sweepEvery)
	}

	limits := handlers.PageLimits{Default: cfg.PageLimitDefault, Max: cfg.PageLimitMax}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	r.Use(middleware.CORS(cfg.AllowedOrigins, cfg.CallerIDHeader))

	var secret []byte
	if cfg.GatewaySharedSecret != "" {
		secret = []byte(cfg.GatewaySharedSecret)
	}
	limiter := middleware.NewRateLimiter(b.redis, cfg.RateLimitPerMinute)
	limiter.TrustProxy = cfg.TrustProxy
	routes.SetupRoutes(r, routes.Handlers{
		Chats:    handlers.NewChatHandler(chats, local, limits),
		Messages: handlers.NewMessageHandler(messages, limits),
		Socket:   handlers.NewSocketHandler(chats, hub, pub, cfg.AllowedOrigins),
	}, routes.Guards{
		Caller:    middleware.Caller(cfg.CallerIDHeader, secret),
		RateLimit: limiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"port": cfg.Port, "env": cfg.Environment}).Info("Server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func reconcile(ctx context.Context, c *cli.Command) error {
	b, err := connect(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	r := services.NewReconciler(b.store, b.events, b.log)
	rep, err := r.ProcessEvents(ctx)
	if err != nil {
		return err
	}
	b.log.WithFields(logrus.Fields{
		"events":   rep.Events,
		"created":  rep.Created,
		"archived": rep.Archived,
		"deleted":  rep.Deleted,
	}).Info("Membership events replayed")

	if c.Bool("sweep") {
		rep, err := r.Sweep(ctx)
		if err != nil {
			return err
		}
		b.log.WithFields(logrus.Fields{
			"created":  rep.Created,
			"archived": rep.Archived,
		}).Info("Membership sweep finished")
	}
	return nil
}
