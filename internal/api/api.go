package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/keiko/internal/analytics"
	"github.com/victornm/keiko/internal/catalog"
	"github.com/victornm/keiko/internal/domain"
	"github.com/victornm/keiko/internal/event"
	"github.com/victornm/keiko/internal/leaderboard"
	"github.com/victornm/keiko/internal/quiz"
)

// HealthService is the gRPC health service name reported while the store is serving.
const HealthService = "keiko.v1.Store"

type Config struct {
	Router       gin.IRouter
	GRPC         *grpc.Server
	EventBus     *event.Bus
	Catalog      Catalog
	Analytics    Analytics
	Leaderboard  Leaderboard
	Sessions     *quiz.Registry
	Redis        Redis
	PubsubPrefix string
}

// Catalog is the card/quiz store as used by the REST surface.
type Catalog interface {
	quiz.Store

	CreateQuiz(ctx context.Context, req catalog.CreateQuizRequest) (*domain.Quiz, error)
	ListQuizzes(ctx context.Context, req catalog.ListQuizzesRequest) ([]domain.Quiz, error)
	AddFlashcard(ctx context.Context, req catalog.AddFlashcardRequest) (*domain.Flashcard, error)
}

type Analytics interface {
	GetSummary(ctx context.Context, req analytics.GetSummaryRequest) (*domain.Summary, error)
}

type Leaderboard interface {
	GetLeaderboard(ctx context.Context, req leaderboard.GetLeaderboardRequest) (*domain.Leaderboard, error)
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type API struct {
	catalog     Catalog
	analytics   Analytics
	leaderboard Leaderboard
	sessions    *quiz.Registry
	health      *health.Server

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		catalog:     c.Catalog,
		analytics:   c.Analytics,
		leaderboard: c.Leaderboard,
		sessions:    c.Sessions,
		health:      health.NewServer(),
		redis:       c.Redis,
		prefix:      c.PubsubPrefix,
	}

	// gRPC APIs
	healthpb.RegisterHealthServer(c.GRPC, a.health)
	a.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)

	// REST APIs
	v1 := c.Router.Group("/v1")
	a.registerCatalog(v1)
	a.registerSessions(v1)
	v1.GET("/notifications/ws", a.StreamNotifications)

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameNoticeRaised, func(ctx context.Context, e event.Event) error {
		return a.PublishNotice(ctx, e.(domain.EventNoticeRaised).Notice)
	})
	c.EventBus.Subscribe(domain.EventNameQuizCompleted, func(ctx context.Context, e event.Event) error {
		return a.PublishQuizCompleted(ctx, e.(domain.EventQuizCompleted))
	})
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboard(ctx, e.(domain.EventLeaderboardUpdated).Leaderboard)
	})

	return a
}

// Shutdown reports the store as not serving to health checks.
func (a *API) Shutdown() {
	a.health.Shutdown()
}
