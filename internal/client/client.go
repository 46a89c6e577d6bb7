// Package client talks to the keiko REST API. A Client satisfies quiz.Store, so a session
// engine can run on the caller's side against a remote catalog.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/victornm/keiko/internal/catalog"
	"github.com/victornm/keiko/internal/domain"
	"github.com/victornm/keiko/internal/errors"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration

	mu      sync.Mutex
	listing map[string][]domain.Quiz
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout bounds every request. It applies to a copy of the HTTP client, so a shared
// client passed through WithHTTPClient is left as it is.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// New creates a client for the API served at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		listing: make(map[string][]domain.Quiz),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}

	return c
}

func (c *Client) GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error) {
	var q domain.Quiz
	if err := c.do(ctx, http.MethodGet, "/v1/quizzes/"+url.PathEscape(quizID), nil, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (c *Client) FindQuiz(ctx context.Context, courseCode, category string) (*domain.Quiz, error) {
	path := fmt.Sprintf("/v1/courses/%s/quizzes/%s", url.PathEscape(courseCode), url.PathEscape(category))

	var q domain.Quiz
	if err := c.do(ctx, http.MethodGet, path, nil, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (c *Client) GetCardsByQuizID(ctx context.Context, quizID string) ([]domain.Flashcard, error) {
	var cards []domain.Flashcard
	if err := c.do(ctx, http.MethodGet, "/v1/quizzes/"+url.PathEscape(quizID)+"/cards", nil, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

func (c *Client) SetQuizCurrentIndex(ctx context.Context, quizID string, index int) error {
	return c.put(ctx, quizID, "current-index", map[string]int{"index": index})
}

func (c *Client) SetQuizCorrectCount(ctx context.Context, quizID string, count int) error {
	return c.put(ctx, quizID, "correct-count", map[string]int{"count": count})
}

func (c *Client) SetQuizHintUsed(ctx context.Context, quizID string, used bool) error {
	return c.put(ctx, quizID, "hint-used", map[string]bool{"used": used})
}

func (c *Client) SetQuizCompletion(ctx context.Context, quizID string, completed bool) error {
	return c.put(ctx, quizID, "completion", map[string]bool{"completed": completed})
}

func (c *Client) put(ctx context.Context, quizID, field string, body any) error {
	return c.do(ctx, http.MethodPut, "/v1/quizzes/"+url.PathEscape(quizID)+"/"+field, body, nil)
}

func (c *Client) CreateQuiz(ctx context.Context, req catalog.CreateQuizRequest) (*domain.Quiz, error) {
	var q domain.Quiz
	err := c.do(ctx, http.MethodPost, "/v1/quizzes", map[string]string{
		"course_code": req.CourseCode,
		"category":    req.Category,
	}, &q)
	if err != nil {
		return nil, err
	}

	c.forget(req.CourseCode)
	return &q, nil
}

func (c *Client) AddFlashcard(ctx context.Context, req catalog.AddFlashcardRequest) (*domain.Flashcard, error) {
	var card domain.Flashcard
	err := c.do(ctx, http.MethodPost, "/v1/quizzes/"+url.PathEscape(req.QuizID)+"/cards", map[string]any{
		"question":   req.Question,
		"answer":     req.Answer,
		"difficulty": req.Difficulty,
	}, &card)
	if err != nil {
		return nil, err
	}

	c.forget(card.CourseCode)
	return &card, nil
}

// ListQuizzes returns the quizzes of a course. Listings are kept until InvalidateQuizzes
// drops them.
func (c *Client) ListQuizzes(ctx context.Context, req catalog.ListQuizzesRequest) ([]domain.Quiz, error) {
	c.mu.Lock()
	quizzes, ok := c.listing[req.CourseCode]
	c.mu.Unlock()
	if ok {
		return quizzes, nil
	}

	q := url.Values{}
	if req.CourseCode != "" {
		q.Set("course_code", req.CourseCode)
	}

	path := "/v1/quizzes"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	if err := c.do(ctx, http.MethodGet, path, nil, &quizzes); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.listing[req.CourseCode] = quizzes
	c.mu.Unlock()
	return quizzes, nil
}

func (c *Client) InvalidateQuizzes(_ context.Context, courseCode string) error {
	c.forget(courseCode)
	return nil
}

func (c *Client) forget(courseCode string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.listing, courseCode)
	// The unfiltered listing spans every course.
	delete(c.listing, "")
}

// do sends body as JSON and decodes a 2xx response into out. Error responses are decoded
// back into an *errors.Error so callers can match on its code.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: marshal request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("client: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.New(errors.CodeUnavailable,
			errors.WithMessagef("%s %s: request failed", method, path),
			errors.WithCause(err),
		)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("client: unmarshal response: %w", err)
	}

	return nil
}

func decodeError(status int, body []byte) error {
	var e errors.Error
	if err := json.Unmarshal(body, &e); err == nil && e.Code != 0 {
		return &e
	}

	code := errors.CodeInternal
	switch {
	case status == http.StatusNotFound:
		code = errors.CodeNotFound
	case status == http.StatusBadRequest:
		code = errors.CodeInvalidArgument
	case status >= 500 && status != http.StatusInternalServerError:
		code = errors.CodeUnavailable
	}

	return errors.New(code, errors.WithMessagef("HTTP %d: %s", status, bytes.TrimSpace(body)))
}
