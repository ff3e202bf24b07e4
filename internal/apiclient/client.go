// Package apiclient implements the authenticated HTTP client used to talk to the ClipForge
// API. It attaches the stored bearer token to every request and recovers from expired
// sessions with a single shared token refresh.
package apiclient

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

	"github.com/clipforge/clipforge/internal/credentials"
	"github.com/clipforge/clipforge/internal/logging"
)

const defaultRefreshPath = "/auth/refresh"

// Options configure a Client.
type Options struct {
	BaseURL     string
	Store       credentials.Store
	HTTPClient  *http.Client
	RefreshPath string

	// RequestTimeout bounds each attempt of a request sent through Do when the caller's
	// context has no deadline of its own.
	RequestTimeout time.Duration
	// RefreshTimeout bounds the token refresh call.
	RefreshTimeout time.Duration

	// OnSessionExpired is invoked once per failed refresh cycle, after the credential store
	// has been cleared. Interactive callers use it to send the user back to login.
	OnSessionExpired func(error)
	Logger           *slog.Logger
}

// Client is an HTTP client bound to the API base URL and the session credential store.
type Client struct {
	baseURL        string
	store          credentials.Store
	http           *http.Client
	refreshHTTP    *http.Client
	refreshPath    string
	requestTimeout time.Duration
	refreshTimeout time.Duration
	onExpired      func(error)
	logger         *slog.Logger

	refresher *refresher
}

// New constructs a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimSuffix(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("apiclient: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("apiclient: parse base URL: %w", err)
	}
	if opts.Store == nil {
		return nil, errors.New("apiclient: credential store is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	refreshPath := opts.RefreshPath
	if refreshPath == "" {
		refreshPath = defaultRefreshPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL: base,
		store:   opts.Store,
		http:    httpClient,
		// The refresh call shares the transport but none of the request augmentation.
		refreshHTTP:    &http.Client{Transport: httpClient.Transport},
		refreshPath:    refreshPath,
		requestTimeout: opts.RequestTimeout,
		refreshTimeout: opts.RefreshTimeout,
		onExpired:      opts.OnSessionExpired,
		logger:         logger,
	}
	c.refresher = newRefresher(c.refreshSession)
	return c, nil
}

// BaseURL returns the API root the client resolves paths against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Store exposes the credential store backing the client.
func (c *Client) Store() credentials.Store {
	return c.store
}

// URL resolves an API path and query against the base URL.
func (c *Client) URL(path string, query url.Values) string {
	target := c.baseURL + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

// attempt identifies one send of a logical request. A retry carries the token produced by
// the refresh that triggered it.
type attempt struct {
	retry bool
	token string
}

// Do sends req with the current bearer token attached. A 401 or 403 on the first attempt
// triggers a session refresh and one retry; every other failure is returned unchanged.
// Non-2xx responses are reported as *HTTPError with the body consumed.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	body, err := replayableBody(req)
	if err != nil {
		return nil, err
	}
	return c.send(logging.EnsureLogger(ctx, c.logger), req, body, attempt{})
}

func (c *Client) send(ctx context.Context, req *http.Request, body func() (io.ReadCloser, error), at attempt) (*http.Response, error) {
	logger := logging.FromContext(ctx)

	attemptCtx, cancel := c.withRequestTimeout(ctx)
	out := req.Clone(attemptCtx)
	if body != nil {
		rc, err := body()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		out.Body = rc
	}
	c.authorize(ctx, out, at, logger)

	resp, err := c.http.Do(out)
	if err != nil {
		cancel()
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}

	httpErr := readHTTPError(out, resp)
	cancel()

	if !IsAuthFailure(resp.StatusCode) || at.retry {
		return nil, httpErr
	}

	logger.Debug("authorization rejected, refreshing session", "status", resp.StatusCode, "method", req.Method, "path", req.URL.Path)
	token, err := c.refresher.token(ctx)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, req, body, attempt{retry: true, token: token})
}

func (c *Client) authorize(ctx context.Context, req *http.Request, at attempt, logger *slog.Logger) {
	token := at.token
	if token == "" {
		stored, err := credentials.BearerToken(ctx, c.store)
		if err != nil && !errors.Is(err, credentials.ErrNotFound) {
			logger.Warn("read bearer token failed, sending unauthenticated", "error", err)
		}
		token = stored
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) withRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

// DoJSON sends in (when non-nil) as a JSON body and decodes the response into out (when
// non-nil).
func (c *Client) DoJSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path, query), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// refreshSession exchanges the stored refresh token for a new bearer token. Any failure ends
// the session.
func (c *Client) refreshSession(ctx context.Context) (string, error) {
	ctx, span := logging.StartSpan(ctx, "apiclient.refresh")
	defer span.End()

	tokens, err := c.exchangeRefresh(ctx)
	if err != nil {
		span.Fail(err)
		return "", c.expire(ctx, err)
	}

	if err := credentials.SaveSession(ctx, c.store, tokens.Bearer, tokens.Refresh); err != nil {
		span.Fail(err)
		return "", c.expire(ctx, fmt.Errorf("persist refreshed session: %w", err))
	}

	logging.FromContext(ctx).Info("session refreshed", "bearer", logging.SanitizeToken(tokens.Bearer), "rotated", tokens.Refresh != "")
	return tokens.Bearer, nil
}

func (c *Client) exchangeRefresh(ctx context.Context) (Tokens, error) {
	refreshToken, err := credentials.RefreshToken(ctx, c.store)
	if errors.Is(err, credentials.ErrNotFound) {
		return Tokens{}, ErrNoRefreshToken
	}
	if err != nil {
		return Tokens{}, fmt.Errorf("read refresh token: %w", err)
	}

	if c.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.refreshTimeout)
		defer cancel()
	}

	body, err := c.postUnauthenticated(ctx, c.refreshHTTP, c.refreshPath, map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return Tokens{}, err
	}
	return NormalizeRefreshResponse(body)
}

func (c *Client) expire(ctx context.Context, cause error) error {
	logger := logging.FromContext(ctx)
	if err := c.store.Clear(ctx); err != nil {
		logger.Error("clear credentials after failed refresh", "error", err)
	}
	logger.Warn("session expired", "error", cause)
	if c.onExpired != nil {
		c.onExpired(cause)
	}
	return fmt.Errorf("%w: %w", ErrSessionExpired, cause)
}

// postUnauthenticated posts a JSON payload without the bearer token or refresh handling.
func (c *Client) postUnauthenticated(ctx context.Context, client *http.Client, path string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path, nil), bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, readHTTPError(req, resp)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		return req.GetBody, nil
	}

	payload, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}, nil
}

func readHTTPError(req *http.Request, resp *http.Response) *HTTPError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_, _ = io.Copy(io.Discard, resp.Body)

	target := req.URL.Redacted()
	if u, err := url.Parse(target); err == nil {
		u.RawQuery = ""
		target = u.String()
	}
	return &HTTPError{StatusCode: resp.StatusCode, Method: req.Method, URL: target, Body: body}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
