package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/victornm/keiko/internal/quiz"
)

type (
	StartSessionRequest struct {
		quiz.Locator
		Student string `json:"student"`
	}

	SubmitAnswerRequest struct {
		Answer string `json:"answer"`
	}

	HintResponse struct {
		Removed string    `json:"removed"`
		Session quiz.View `json:"session"`
	}

	Attempt struct {
		QuizID       string    `json:"quiz_id"`
		Student      string    `json:"student,omitempty"`
		CorrectCount int       `json:"correct_count"`
		CardCount    int       `json:"card_count"`
		HintsUsed    int       `json:"hints_used"`
		Accuracy     string    `json:"accuracy"`
		CompleteTime time.Time `json:"complete_time"`
	}
)

func (a *API) registerSessions(r gin.IRouter) {
	r.POST("/sessions", a.StartSession)
	r.GET("/sessions/:id", a.GetSession)
	r.POST("/sessions/:id/submit", a.SubmitAnswer)
	r.POST("/sessions/:id/hint", a.Hint)
	r.POST("/sessions/:id/next", a.Next)
	r.POST("/sessions/:id/confirm", a.Confirm)
	r.DELETE("/sessions/:id", a.ExitSession)
}

// StartSession opens a session on a quiz given either by id or by course and category.
func (a *API) StartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	s, err := a.sessions.Open(c.Request.Context(), req.Locator, req.Student)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, s.View())
}

func (a *API) GetSession(c *gin.Context) {
	s, err := a.sessions.Get(c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, s.View())
}

func (a *API) SubmitAnswer(c *gin.Context) {
	s, err := a.sessions.Get(c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	v, err := s.Submit(c.Request.Context(), req.Answer)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, v)
}

func (a *API) Hint(c *gin.Context) {
	s, err := a.sessions.Get(c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	removed, v, err := s.Hint(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, HintResponse{Removed: removed, Session: v})
}

func (a *API) Next(c *gin.Context) {
	s, err := a.sessions.Get(c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	v, err := s.Next(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, v)
}

func (a *API) Confirm(c *gin.Context) {
	s, err := a.sessions.Get(c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	at, err := s.Confirm(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	a.sessions.Forget(s.ID())

	c.JSON(http.StatusOK, newAttempt(at))
}

func (a *API) ExitSession(c *gin.Context) {
	if err := a.sessions.Exit(c.Param("id")); err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
