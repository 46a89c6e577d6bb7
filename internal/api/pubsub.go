package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/victornm/keiko/internal/analytics"
	"github.com/victornm/keiko/internal/domain"
)

const anonymous = "anonymous"

type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// PublishNotice forwards a session notice to the student's channel.
func (a *API) PublishNotice(ctx context.Context, n domain.Notice) error {
	return a.publishNotification(ctx, n.Student, domain.EventNameNoticeRaised, n)
}

// PublishQuizCompleted tells the student how the attempt went.
func (a *API) PublishQuizCompleted(ctx context.Context, e domain.EventQuizCompleted) error {
	return a.publishNotification(ctx, e.Attempt.Student, e.Name(), newAttempt(e.Attempt))
}

// PublishLeaderboard sends the standings to everyone watching the quiz.
func (a *API) PublishLeaderboard(ctx context.Context, l domain.Leaderboard) error {
	return a.publish(ctx, a.quizChannel(l.QuizID), domain.EventNameLeaderboardUpdated, l)
}

func (a *API) publishNotification(ctx context.Context, student, event string, data any) error {
	return a.publish(ctx, a.studentChannel(student), event, data)
}

func (a *API) publish(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}

func (a *API) studentChannel(student string) string {
	if student == "" {
		student = anonymous
	}
	return fmt.Sprintf("%s:student:%s", a.prefix, student)
}

func (a *API) quizChannel(quizID string) string {
	return fmt.Sprintf("%s:quiz:%s", a.prefix, quizID)
}

func newAttempt(at domain.Attempt) Attempt {
	return Attempt{
		QuizID:       at.QuizID,
		Student:      at.Student,
		CorrectCount: at.CorrectCount,
		CardCount:    at.CardCount,
		HintsUsed:    at.HintsUsed,
		Accuracy:     analytics.Accuracy(at.CorrectCount, at.CardCount).StringFixed(2),
		CompleteTime: at.CompleteTime,
	}
}
