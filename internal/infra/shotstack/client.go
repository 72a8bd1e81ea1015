package shotstack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"clipstack/internal/config"
	"clipstack/internal/domain"
	"clipstack/internal/metrics"
	"clipstack/internal/ports"
)

var _ ports.Renderer = (*Client)(nil)

type Client struct {
	cfg  config.Shotstack
	http *http.Client
}

func New(cfg config.Shotstack) *Client {
	return &Client{cfg: cfg, http: &http.Client{}}
}

type envelope struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Response struct {
		ID      string `json:"id"`
		Message string `json:"message"`
		Status  string `json:"status"`
		URL     string `json:"url"`
		Poster  string `json:"poster"`
		Error   string `json:"error"`
	} `json:"response"`
}

// Submit queues a render of the given sources and returns the job id.
func (c *Client) Submit(ctx context.Context, sources []ports.RenderSource, deco ports.Decoration) (string, error) {
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("%w: render provider api key is not configured", domain.ErrRenderSubmission)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	defer cancel()
	defer observe("submit", time.Now())

	body, err := json.Marshal(BuildEdit(sources, deco))
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("render"), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)

	log.Ctx(ctx).Info().Int("sources", len(sources)).RawJSON("edit", body).Msg("submitting render")

	env, status, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrRenderSubmission, err)
	}
	if status >= 300 {
		return "", fmt.Errorf("%w: HTTP %d: %s", domain.ErrRenderSubmission, status, env.Message)
	}
	if env.Response.ID == "" {
		return "", fmt.Errorf("%w: response has no render id", domain.ErrRenderSubmission)
	}

	return env.Response.ID, nil
}

// Status polls the job once.
func (c *Client) Status(ctx context.Context, jobID string) (domain.RenderStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StatusTimeout)
	defer cancel()
	defer observe("status", time.Now())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("render", jobID), nil)
	if err != nil {
		return domain.RenderStatus{}, err
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)

	env, status, err := c.do(req)
	if err != nil {
		return domain.RenderStatus{}, fmt.Errorf("render status %s: %w", jobID, err)
	}
	if status >= 300 {
		return domain.RenderStatus{}, fmt.Errorf("render status %s: HTTP %d: %s", jobID, status, env.Message)
	}

	rs := domain.RenderStatus{
		Status:    env.Response.Status,
		URL:       env.Response.URL,
		PosterURL: env.Response.Poster,
		Error:     env.Response.Error,
	}
	if rs.Failed() && rs.Error == "" {
		rs.Error = env.Response.Message
	}
	return rs, nil
}

func (c *Client) do(req *http.Request) (envelope, int, error) {
	var env envelope

	resp, err := c.http.Do(req)
	if err != nil {
		return env, 0, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return env, resp.StatusCode, err
	}
	if err := json.Unmarshal(b, &env); err != nil {
		if resp.StatusCode >= 300 {
			env.Message = strings.TrimSpace(string(b))
			return env, resp.StatusCode, nil
		}
		return env, resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return env, resp.StatusCode, nil
}

func (c *Client) url(parts ...string) string {
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.Join(parts, "/")
}

func observe(op string, start time.Time) {
	metrics.ProviderDuration.WithLabelValues("shotstack", op).Observe(time.Since(start).Seconds())
}
