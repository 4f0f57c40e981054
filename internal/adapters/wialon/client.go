// Package wialon реализует сеансы Wialon Remote API поверх HTTP.
package wialon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
	"golang.org/x/xerrors"

	"wialonblock/internal/ports"
)

const ajaxPath = "/wialon/ajax.html"

// Option — функциональная опция для настройки Client.
type Option func(*Client)

// WithHTTPClient устанавливает HTTP-клиент.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit ограничивает частоту запросов к Wialon. rps <= 0 отключает ограничение.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLoginRetries задаёт число повторов авторизации при сетевых ошибках.
func WithLoginRetries(n uint64, maxInterval time.Duration) Option {
	return func(c *Client) {
		c.loginRetries = n
		if maxInterval > 0 {
			c.retryMaxInterval = maxInterval
		}
	}
}

// WithLogger устанавливает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// Client открывает сеансы Wialon по токену. Безопасен для одновременного использования.
type Client struct {
	host             string
	token            string
	httpClient       *http.Client
	limiter          *rate.Limiter
	loginRetries     uint64
	retryMaxInterval time.Duration
	log              *slog.Logger
}

var _ ports.SessionFactory = (*Client)(nil)

// NewClient создает клиент для хоста вида "https://hst-api.wialon.com".
func NewClient(host, token string, opts ...Option) *Client {
	c := &Client{
		host:  strings.TrimRight(host, "/"),
		token: token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter:          rate.NewLimiter(rate.Limit(10), 5),
		loginRetries:     2,
		retryMaxInterval: 5 * time.Second,
		log:              slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type loginResponse struct {
	SID  string `json:"eid"`
	User struct {
		Name string `json:"nm"`
	} `json:"user"`
}

// Open выполняет token/login и возвращает новый сеанс.
// Повторяются только сетевые ошибки; ошибки API (например, неверный токен) не повторяются.
func (c *Client) Open(ctx context.Context) (ports.Session, error) {
	var resp loginResponse
	op := func() error {
		err := c.call(ctx, "", "token/login", map[string]any{"token": c.token}, &resp)
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return backoff.Permanent(err)
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.MaxInterval = c.retryMaxInterval
	if eb.InitialInterval > eb.MaxInterval {
		eb.InitialInterval = eb.MaxInterval
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, c.loginRetries), ctx)

	notify := func(err error, d time.Duration) {
		c.log.Warn("wialon login failed, retrying", slog.String("error", err.Error()), slog.Duration("in", d))
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, xerrors.Errorf("wialon login at %s: %w", c.host, err)
	}
	if resp.SID == "" {
		return nil, xerrors.Errorf("wialon login at %s: empty session id", c.host)
	}

	c.log.Debug("wialon session opened", slog.String("user", resp.User.Name))
	return &Session{client: c, sid: resp.SID}, nil
}

// call выполняет запрос и декодирует успешный ответ в out (если out != nil).
func (c *Client) call(ctx context.Context, sid, svc string, params any, out any) error {
	raw, err := c.callRaw(ctx, sid, svc, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return xerrors.Errorf("decode %s response: %w", svc, err)
	}
	return nil
}

// callRaw выполняет POST-запрос к ajax.html и возвращает тело ответа,
// предварительно проверив его на объект ошибки Wialon.
func (c *Client) callRaw(ctx context.Context, sid, svc string, params any) (json.RawMessage, error) {
	if params == nil {
		params = map[string]any{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, xerrors.Errorf("encode %s params: %w", svc, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, xerrors.Errorf("rate limiter: %w", err)
	}

	form := url.Values{}
	form.Set("svc", svc)
	form.Set("params", string(encoded))
	if sid != "" {
		form.Set("sid", sid)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+ajaxPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, xerrors.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("failed to send %s request: %w", svc, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Errorf("failed to read %s response: %w", svc, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Errorf("%s: unexpected status code: %d", svc, resp.StatusCode)
	}

	if err := checkError(svc, body); err != nil {
		return nil, err
	}
	return body, nil
}

type errorResponse struct {
	Error  *int   `json:"error"`
	Reason string `json:"reason"`
}

// checkError распознаёт ответ вида {"error": N, "reason": "..."}.
// Ответы-массивы (core/batch) здесь не проверяются.
func checkError(svc string, body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var e errorResponse
	if err := json.Unmarshal(trimmed, &e); err != nil {
		return xerrors.Errorf("decode %s response: %w", svc, err)
	}
	if e.Error != nil && *e.Error != 0 {
		return &APIError{Svc: svc, Code: *e.Error, Reason: e.Reason}
	}
	return nil
}

func (c *Client) String() string {
	return fmt.Sprintf("wialon(%s)", c.host)
}
