package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/keiko/internal/analytics"
	"github.com/victornm/keiko/internal/domain"
	"github.com/victornm/keiko/internal/errors"
	"github.com/victornm/keiko/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service keeps the best accuracy of every student per quiz in a redis sorted set.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameQuizCompleted, func(ctx context.Context, e event.Event) error {
		return s.RecordAttempt(ctx, e.(domain.EventQuizCompleted).Attempt)
	})

	return s
}

type GetLeaderboardRequest struct {
	QuizID string
	// Limit caps the number of entries. Zero means all.
	Limit int
}

// GetLeaderboard returns the students of a quiz ordered by best accuracy.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	stop := int64(-1)
	if req.Limit > 0 {
		stop = int64(req.Limit) - 1
	}

	res, err := s.redis.ZRevRangeWithScores(ctx, s.leaderboardKey(req.QuizID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.NotFound("leaderboard not found: quiz=%s", req.QuizID)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			Student:  z.Member.(string),
			Accuracy: z.Score,
		})
	}

	return &domain.Leaderboard{
		QuizID:  req.QuizID,
		Entries: entries,
	}, nil
}

// RecordAttempt raises the student's entry to the attempt's accuracy if it is a new best.
// Attempts without a student are not ranked.
func (s *Service) RecordAttempt(ctx context.Context, at domain.Attempt) error {
	if at.Student == "" {
		return nil
	}

	acc := analytics.Accuracy(at.CorrectCount, at.CardCount)

	if err := s.redis.ZAddArgs(ctx, s.leaderboardKey(at.QuizID), redis.ZAddArgs{
		GT: true,
		Members: []redis.Z{{
			Score:  acc.InexactFloat64(),
			Member: at.Student,
		}},
	}).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublishLeaderboard(ctx, at)
}

// schedulePublishLeaderboard publishes at most one leaderboard.updated per quiz and publish
// interval, shared by every instance through a redis key.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, at domain.Attempt) error {
	ok, err := s.redis.SetNX(ctx, s.publishTimeKey(at.QuizID), at.CompleteTime.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{QuizID: at.QuizID})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: quiz=%s: %w", at.QuizID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) leaderboardKey(quizID string) string {
	return fmt.Sprintf("%s:quiz:%s:leaderboard", s.prefix, quizID)
}

func (s *Service) publishTimeKey(quizID string) string {
	return fmt.Sprintf("%s:quiz:%s:leaderboard:time", s.prefix, quizID)
}
