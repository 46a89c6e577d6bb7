package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/victornm/keiko/internal/analytics"
	"github.com/victornm/keiko/internal/catalog"
	"github.com/victornm/keiko/internal/domain"
	"github.com/victornm/keiko/internal/errors"
	"github.com/victornm/keiko/internal/leaderboard"
)

type (
	CreateQuizRequest struct {
		CourseCode string `json:"course_code" binding:"required"`
		Category   string `json:"category" binding:"required"`
	}

	AddFlashcardRequest struct {
		Question   string            `json:"question" binding:"required"`
		Answer     string            `json:"answer" binding:"required"`
		Difficulty domain.Difficulty `json:"difficulty"`
	}

	SetCurrentIndexRequest struct {
		Index *int `json:"index" binding:"required"`
	}

	SetCorrectCountRequest struct {
		Count *int `json:"count" binding:"required"`
	}

	SetHintUsedRequest struct {
		Used *bool `json:"used" binding:"required"`
	}

	SetCompletionRequest struct {
		Completed *bool `json:"completed" binding:"required"`
	}

	Summary struct {
		QuizID          string     `json:"quiz_id"`
		Attempts        int        `json:"attempts"`
		HintsUsed       int        `json:"hints_used"`
		BestAccuracy    string     `json:"best_accuracy"`
		AverageAccuracy string     `json:"average_accuracy"`
		LastAccuracy    string     `json:"last_accuracy"`
		LastAttemptTime *time.Time `json:"last_attempt_time,omitempty"`
	}
)

func (a *API) registerCatalog(r gin.IRouter) {
	r.GET("/quizzes", a.ListQuizzes)
	r.POST("/quizzes", a.CreateQuiz)
	r.GET("/quizzes/:id", a.GetQuiz)
	r.GET("/quizzes/:id/cards", a.GetCards)
	r.POST("/quizzes/:id/cards", a.AddFlashcard)
	r.PUT("/quizzes/:id/current-index", a.SetCurrentIndex)
	r.PUT("/quizzes/:id/correct-count", a.SetCorrectCount)
	r.PUT("/quizzes/:id/hint-used", a.SetHintUsed)
	r.PUT("/quizzes/:id/completion", a.SetCompletion)
	r.GET("/quizzes/:id/analytics", a.GetAnalytics)
	r.GET("/quizzes/:id/leaderboard", a.GetLeaderboard)
	r.GET("/courses/:code/quizzes/:category", a.FindQuiz)
}

func (a *API) ListQuizzes(c *gin.Context) {
	quizzes, err := a.catalog.ListQuizzes(c.Request.Context(), catalog.ListQuizzesRequest{
		CourseCode: c.Query("course_code"),
	})
	if err != nil {
		abort(c, err)
		return
	}

	if quizzes == nil {
		quizzes = []domain.Quiz{}
	}
	c.JSON(http.StatusOK, quizzes)
}

func (a *API) CreateQuiz(c *gin.Context) {
	var req CreateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	q, err := a.catalog.CreateQuiz(c.Request.Context(), catalog.CreateQuizRequest{
		CourseCode: req.CourseCode,
		Category:   req.Category,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, q)
}

func (a *API) GetQuiz(c *gin.Context) {
	q, err := a.catalog.GetQuiz(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, q)
}

func (a *API) FindQuiz(c *gin.Context) {
	q, err := a.catalog.FindQuiz(c.Request.Context(), c.Param("code"), c.Param("category"))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, q)
}

func (a *API) GetCards(c *gin.Context) {
	cards, err := a.catalog.GetCardsByQuizID(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	if cards == nil {
		cards = []domain.Flashcard{}
	}
	c.JSON(http.StatusOK, cards)
}

func (a *API) AddFlashcard(c *gin.Context) {
	var req AddFlashcardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	card, err := a.catalog.AddFlashcard(c.Request.Context(), catalog.AddFlashcardRequest{
		QuizID:     c.Param("id"),
		Question:   req.Question,
		Answer:     req.Answer,
		Difficulty: req.Difficulty,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, card)
}

func (a *API) SetCurrentIndex(c *gin.Context) {
	var req SetCurrentIndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := a.catalog.SetQuizCurrentIndex(c.Request.Context(), c.Param("id"), *req.Index); err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) SetCorrectCount(c *gin.Context) {
	var req SetCorrectCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := a.catalog.SetQuizCorrectCount(c.Request.Context(), c.Param("id"), *req.Count); err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) SetHintUsed(c *gin.Context) {
	var req SetHintUsedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := a.catalog.SetQuizHintUsed(c.Request.Context(), c.Param("id"), *req.Used); err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) SetCompletion(c *gin.Context) {
	var req SetCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := a.catalog.SetQuizCompletion(c.Request.Context(), c.Param("id"), *req.Completed); err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) GetAnalytics(c *gin.Context) {
	id := c.Param("id")
	if _, err := a.catalog.GetQuiz(c.Request.Context(), id); err != nil {
		abort(c, err)
		return
	}

	sm, err := a.analytics.GetSummary(c.Request.Context(), analytics.GetSummaryRequest{QuizID: id})
	if err != nil {
		abort(c, err)
		return
	}

	resp := Summary{
		QuizID:          sm.QuizID,
		Attempts:        sm.Attempts,
		HintsUsed:       sm.HintsUsed,
		BestAccuracy:    sm.BestAccuracy.StringFixed(2),
		AverageAccuracy: sm.AverageAccuracy.StringFixed(2),
		LastAccuracy:    sm.LastAccuracy.StringFixed(2),
	}
	if !sm.LastAttemptTime.IsZero() {
		resp.LastAttemptTime = &sm.LastAttemptTime
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) GetLeaderboard(c *gin.Context) {
	var limit int
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			abort(c, errors.InvalidArgument("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	l, err := a.leaderboard.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		QuizID: c.Param("id"),
		Limit:  limit,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, l)
}
