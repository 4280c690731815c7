package discord

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
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://discord.com/api/v10"

const (
	// DefaultMaxRetries is the server-error retry budget of one call.
	DefaultMaxRetries = 3

	// DefaultServerErrorWait is the fixed pause before retrying a 5xx.
	DefaultServerErrorWait = 2 * time.Second

	// rateLimitPadding is added to the server supplied retry_after.
	rateLimitPadding = 200 * time.Millisecond

	// defaultRetryAfter applies when a 429 carries no retry_after, in seconds.
	defaultRetryAfter = 1.0

	maxResponseBytes = 1 << 20
)

var errBuildRequest = errors.New("discord: build request")

// WaitFunc pauses for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the API root. Defaults to https://discord.com/api/v10.
	BaseURL string

	// Token is the bot token, sent as "Authorization: Bot <token>".
	Token string

	// ChannelID is the channel all messages are posted to.
	ChannelID string

	// MaxRetries is the number of retries allowed for server errors and
	// transport failures. Zero disables them. Rate limits do not count.
	MaxRetries int

	// ServerErrorWait defaults to DefaultServerErrorWait.
	ServerErrorWait time.Duration

	// MaxRateLimitWait caps the total time one call may spend waiting on
	// 429 responses. Zero means no cap.
	MaxRateLimitWait time.Duration

	// RequestTimeout bounds every single HTTP attempt. Zero leaves only
	// the HTTP client's own timeout.
	RequestTimeout time.Duration

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Wait defaults to Sleep. Tests inject a recorder.
	Wait WaitFunc

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client creates, edits and deletes messages in a single Discord
// channel. Every call runs through the same retry loop: rate limits are
// waited out without consuming the budget, server errors are retried a
// bounded number of times with a fixed pause, anything else fails at once.
type Client struct {
	baseURL          string
	token            string
	channelID        string
	httpClient       *http.Client
	maxRetries       int
	serverErrorWait  time.Duration
	maxRateLimitWait time.Duration
	requestTimeout   time.Duration
	wait             WaitFunc
	logger           *slog.Logger
}

func NewClient(config Config) (*Client, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if config.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel id is required")
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
		return nil, fmt.Errorf("discord: invalid base url %q", config.BaseURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	serverErrorWait := config.ServerErrorWait
	if serverErrorWait <= 0 {
		serverErrorWait = DefaultServerErrorWait
	}

	wait := config.Wait
	if wait == nil {
		wait = Sleep
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:          baseURL,
		token:            config.Token,
		channelID:        config.ChannelID,
		httpClient:       httpClient,
		maxRetries:       max(config.MaxRetries, 0),
		serverErrorWait:  serverErrorWait,
		maxRateLimitWait: config.MaxRateLimitWait,
		requestTimeout:   config.RequestTimeout,
		wait:             wait,
		logger:           logger.With("component", "discord"),
	}, nil
}

// CreateMessage posts a new message and returns its id.
func (client *Client) CreateMessage(ctx context.Context, message Message) (string, error) {
	return client.send(ctx, http.MethodPost, client.messagesPath(), message)
}

// EditMessage replaces the content of an existing message and returns
// its id.
func (client *Client) EditMessage(ctx context.Context, messageID string, message Message) (string, error) {
	if messageID == "" {
		return "", fmt.Errorf("discord: edit requires a message id")
	}
	return client.send(ctx, http.MethodPatch, client.messagesPath()+"/"+url.PathEscape(messageID), message)
}

// DeleteMessage removes a message. A message that no longer exists is
// not an error.
func (client *Client) DeleteMessage(ctx context.Context, messageID string) error {
	if messageID == "" {
		return fmt.Errorf("discord: delete requires a message id")
	}
	_, err := client.do(ctx, http.MethodDelete, client.messagesPath()+"/"+url.PathEscape(messageID), nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}

func (client *Client) messagesPath() string {
	return "/channels/" + url.PathEscape(client.channelID) + "/messages"
}

func (client *Client) send(ctx context.Context, method, path string, message Message) (string, error) {
	body, err := client.do(ctx, method, path, message)
	if err != nil {
		return "", err
	}

	var response struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingMessageID, err)
	}
	if response.ID == "" {
		return "", ErrMissingMessageID
	}
	return response.ID, nil
}

// do runs one logical call through the retry loop and returns the body
// of the first 2xx response.
func (client *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("discord: encode payload: %w", err)
		}
		body = encoded
	}

	target := client.baseURL + path
	attemptsRemaining := client.maxRetries
	var rateLimitWaited time.Duration

	for {
		responseBody, err := client.attempt(ctx, method, target, body)
		if err == nil {
			return responseBody, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("discord: %s %s: %w", method, path, ctxErr)
		}
		if errors.Is(err, errBuildRequest) {
			return nil, err
		}

		var apiError *APIError
		isAPIError := errors.As(err, &apiError)

		switch {
		case isAPIError && apiError.StatusCode == http.StatusTooManyRequests:
			delay := rateLimitDelay(apiError)
			if client.maxRateLimitWait > 0 && rateLimitWaited+delay > client.maxRateLimitWait {
				client.logger.Error("rate limit wait budget exceeded",
					"method", method, "path", path, "waited", rateLimitWaited, "next_wait", delay)
				return nil, fmt.Errorf("%w after %s: %w", ErrRateLimitBudgetExceeded, rateLimitWaited, err)
			}
			rateLimitWaited += delay
			client.logger.Warn("Rate limit hit (429), retrying",
				"method", method, "path", path, "wait", delay, "global", apiError.Global)
			if err := client.pause(ctx, delay, "rate_limit"); err != nil {
				return nil, fmt.Errorf("discord: %s %s: %w", method, path, err)
			}

		case !isAPIError || (apiError.StatusCode >= 500 && apiError.StatusCode <= 599):
			if attemptsRemaining <= 0 {
				client.logger.Error("Max retries reached. Failing.",
					"method", method, "path", path, "retries", client.maxRetries, "error", err)
				return nil, fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
			}
			client.logger.Warn("Discord server error, retrying",
				"method", method, "path", path, "error", err, "attempts_remaining", attemptsRemaining)
			if err := client.pause(ctx, client.serverErrorWait, "server_error"); err != nil {
				return nil, fmt.Errorf("discord: %s %s: %w", method, path, err)
			}
			attemptsRemaining--

		default:
			client.logger.Error("Fatal error sending message",
				"method", method, "path", path, "status", apiError.StatusCode, "response", string(apiError.Body))
			return nil, err
		}
	}
}

// attempt issues exactly one HTTP request. Non-2xx responses come back
// as *APIError, transport failures as wrapped errors.
func (client *Client) attempt(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	if client.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, client.requestTimeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	request, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBuildRequest, err)
	}
	request.Header.Set("Authorization", "Bot "+client.token)
	request.Header.Set("User-Agent", "DiscordBot (freight, 1.0)")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	response, err := client.httpClient.Do(request)
	requestDuration.WithLabelValues(method).Observe(time.Since(started).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(method, "transport_error").Inc()
		return nil, fmt.Errorf("discord: %s: %w", method, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		requestsTotal.WithLabelValues(method, "transport_error").Inc()
		return nil, fmt.Errorf("discord: reading response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		requestsTotal.WithLabelValues(method, "success").Inc()
		return responseBody, nil
	}

	apiError := parseAPIError(response.StatusCode, response.Header, responseBody)
	requestsTotal.WithLabelValues(method, outcomeLabel(response.StatusCode)).Inc()
	return nil, apiError
}

func parseAPIError(status int, header http.Header, body []byte) *APIError {
	apiError := &APIError{StatusCode: status, Body: body}

	var raw struct {
		Message    string   `json:"message"`
		Code       int      `json:"code"`
		RetryAfter *float64 `json:"retry_after"`
		Global     bool     `json:"global"`
	}
	if err := json.Unmarshal(body, &raw); err == nil {
		apiError.Message = raw.Message
		apiError.Code = raw.Code
		apiError.Global = raw.Global
		if raw.RetryAfter != nil {
			apiError.RetryAfter = *raw.RetryAfter
			apiError.hasRetryAfter = true
		}
	}

	if !apiError.hasRetryAfter {
		if seconds, err := strconv.ParseFloat(header.Get("Retry-After"), 64); err == nil {
			apiError.RetryAfter = seconds
			apiError.hasRetryAfter = true
		}
	}

	return apiError
}

// rateLimitDelay is retry_after seconds plus a small padding.
func rateLimitDelay(apiError *APIError) time.Duration {
	seconds := defaultRetryAfter
	if apiError.hasRetryAfter && apiError.RetryAfter >= 0 {
		seconds = apiError.RetryAfter
	}
	return time.Duration(seconds*float64(time.Second)) + rateLimitPadding
}

func outcomeLabel(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status >= 500 && status <= 599:
		return "server_error"
	default:
		return "fatal"
	}
}

func (client *Client) pause(ctx context.Context, d time.Duration, reason string) error {
	retryWaitSeconds.WithLabelValues(reason).Add(d.Seconds())
	return client.wait(ctx, d)
}

// Sleep waits for d, returning early with ctx.Err() if ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
