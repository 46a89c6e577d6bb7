package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/victornm/keiko/internal/errors"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamNotifications relays the student's notification channel over a websocket until
// either side goes away. Each quiz query parameter adds the leaderboard updates of that quiz.
func (a *API) StreamNotifications(c *gin.Context) {
	student := c.Query("student")
	if student == "" {
		abort(c, errors.InvalidArgument("student is required"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c.Request.Context(), "api: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	channels := []string{a.studentChannel(student)}
	for _, q := range c.QueryArray("quiz") {
		channels = append(channels, a.quizChannel(q))
	}

	sub := a.redis.Subscribe(ctx, channels...)
	defer sub.Close()

	slog.InfoContext(ctx, "api: notification stream opened", "student", student)

	// Reads only detect the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.DebugContext(ctx, "api: websocket read failed", "error", err)
				}
				return
			}
		}
	}()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "api: notification stream closed", "student", student)
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				slog.DebugContext(ctx, "api: websocket write failed", "error", err)
				return
			}
		}
	}
}
