package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/victornm/keiko/internal/analytics"
	"github.com/victornm/keiko/internal/api"
	"github.com/victornm/keiko/internal/catalog"
	"github.com/victornm/keiko/internal/domain"
	"github.com/victornm/keiko/internal/event"
	"github.com/victornm/keiko/internal/leaderboard"
	"github.com/victornm/keiko/internal/quiz"
	"github.com/victornm/keiko/internal/telemetry"
)

type Config struct {
	Log telemetry.LogConfig

	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Redis struct {
		Cache struct {
			Addrs  []string
			Pass   string
			Prefix string
			TTL    time.Duration
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres PostgresConfig

	Quiz struct {
		WriteTimeout time.Duration
		// SessionTTL is how long an untouched session is kept open.
		SessionTTL time.Duration
	}
}

type PostgresConfig struct {
	Addr    string
	User    string
	Pass    string
	Name    string
	Migrate bool
}

// DefaultConfig returns the values used for keys the config file leaves out.
func DefaultConfig() Config {
	var c Config
	c.Log = telemetry.LogConfig{Level: "info", Format: "json"}
	c.HTTP.Port = 8080
	c.GRPC.Port = 8081
	c.Redis.Cache.Prefix = "keiko"
	c.Redis.Cache.TTL = 5 * time.Minute
	c.Redis.Pubsub.Prefix = "keiko"
	c.Postgres.Migrate = true
	c.Quiz.WriteTimeout = 10 * time.Second
	c.Quiz.SessionTTL = time.Hour
	return c
}

type Server struct {
	c Config

	ctx    context.Context
	cancel context.CancelFunc

	eb *event.Bus

	infra struct {
		redis struct {
			cache  redis.UniversalClient
			pubsub redis.UniversalClient
		}

		postgres *pgxpool.Pool
	}

	service struct {
		catalog     *catalog.Service
		analytics   *analytics.Service
		leaderboard *leaderboard.Service
		sessions    *quiz.Registry
	}

	api  *api.API
	http *http.Server
	grpc *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.cache, err = connect(s.c.Redis.Cache.Addrs, s.c.Redis.Cache.Pass)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.infra.postgres, err = ConnectPostgres(ctx, s.c.Postgres)
	if err != nil {
		return err
	}

	if !s.c.Postgres.Migrate {
		return nil
	}

	if err := catalog.Migrate(ctx, s.infra.postgres); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	return nil
}

// ConnectPostgres opens and pings a pool.
func ConnectPostgres(ctx context.Context, c PostgresConfig) (*pgxpool.Pool, error) {
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", c.User, c.Pass, c.Addr, c.Name))
	if err != nil {
		return nil, err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (s *Server) initService() {
	s.service.catalog = catalog.NewService(catalog.Config{
		DB: s.infra.postgres,
		Cache: catalog.NewCache(catalog.CacheConfig{
			Redis:  s.infra.redis.cache,
			Prefix: s.c.Redis.Cache.Prefix,
			TTL:    s.c.Redis.Cache.TTL,
		}),
	})

	s.service.analytics = analytics.NewService(analytics.Config{
		EventBus: s.eb,
		DB:       s.infra.postgres,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.cache,
		Prefix:   s.c.Redis.Cache.Prefix,
	})

	engine := quiz.NewEngine(quiz.Config{
		Store:        s.service.catalog,
		Invalidator:  s.service.catalog,
		EventBus:     s.eb,
		Notifier:     quiz.NotifyFunc(s.publishNotice),
		WriteTimeout: s.c.Quiz.WriteTimeout,
	})

	s.service.sessions = quiz.NewRegistry(engine, quiz.WithSessionTTL(s.c.Quiz.SessionTTL))
}

func (s *Server) publishNotice(ctx context.Context, n domain.Notice) {
	s.eb.Publish(ctx, domain.EventNoticeRaised{Notice: n})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), telemetry.GinLogger(slog.Default()))

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor(slog.Default()))

	s.api = api.New(api.Config{
		Router:       e,
		GRPC:         s.grpc,
		EventBus:     s.eb,
		Catalog:      s.service.catalog,
		Analytics:    s.service.analytics,
		Leaderboard:  s.service.leaderboard,
		Sessions:     s.service.sessions,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := s.ctx

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		s.service.sessions.RunSweeper(ctx, 0)
		return nil
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, "server: gRPC listening", "port", s.c.GRPC.Port)
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, "server: HTTP listening", "port", s.c.HTTP.Port)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.cancel()
	s.api.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	// Handlers still write to redis and postgres, so drain the bus first.
	s.eb.Stop()

	for _, r := range []redis.UniversalClient{s.infra.redis.cache, s.infra.redis.pubsub} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}
	s.infra.postgres.Close()

	slog.InfoContext(ctx, "server: shutdown completed", "open_sessions", s.service.sessions.Len())
}
