package remnawave

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Asort97/promoBot/clients/metrics"
	promoname "github.com/Asort97/promoBot/clients/promoName"
)

const (
	defaultPageSize = 500
	maxErrorBody    = 512
)

var (
	ErrTransient    = errors.New("remnawave: transient error")
	ErrUnauthorized = errors.New("remnawave: authentication failed")
	ErrRejected     = errors.New("remnawave: request rejected")
	ErrNotFound     = errors.New("remnawave: not found")

	// errDecode marks a 2xx answer whose body could not be parsed.
	errDecode = errors.New("undecodable response")
)

// APIError is returned for every failed panel call. Kind is one of the Err* sentinels.
type APIError struct {
	Op     string
	Status int
	Body   string
	Kind   error
	Err    error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}

func (e *APIError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func kindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusTooManyRequests || status >= 500:
		return ErrTransient
	default:
		return ErrRejected
	}
}

type Options struct {
	BaseURL    string
	Token      string
	CaddyToken string

	// NamePrefix is prepended to every generated username.
	NamePrefix string
	// InboundIDs holds numeric or UUID inbound identifiers attached on creation.
	InboundIDs []string

	RequestsPerSecond float64
	PageSize          int

	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Client struct {
	baseURL    string
	token      string
	caddyToken string
	prefix     string
	plainHTTP  bool

	inboundUUIDs   []string
	inboundNumbers []int

	pageSize int
	limiter  *rate.Limiter
	http     *http.Client
	log      *zap.Logger

	shapes []createShape
}

func New(opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		caddyToken: opts.CaddyToken,
		prefix:     opts.NamePrefix,
		pageSize:   opts.PageSize,
		http:       opts.HTTPClient,
		log:        opts.Logger,
		shapes:     createLadder,
	}
	if c.prefix == "" {
		c.prefix = promoname.DefaultPrefix
	}
	if c.pageSize <= 0 {
		c.pageSize = defaultPageSize
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	c.log = c.log.Named("remnawave")

	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	} else {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	}

	if u, err := url.Parse(c.baseURL); err == nil && u.Scheme == "http" {
		c.plainHTTP = true
	}

	c.inboundUUIDs, c.inboundNumbers = splitInbounds(opts.InboundIDs)
	return c
}

// Prefix returns the username prefix promo accounts are created with.
func (c *Client) Prefix() string {
	return c.prefix
}

// do performs one panel call. out, when non-nil, receives the payload with the
// {"response": ...} envelope stripped.
func (c *Client) do(ctx context.Context, op, method, path string, payload any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &APIError{Op: op, Kind: ErrTransient, Err: err}
	}

	var body io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: marshal payload: %w", op, err)
		}
		body = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.caddyToken != "" {
		req.Header.Set("X-Api-Key", c.caddyToken)
	}
	if c.plainHTTP {
		// the panel refuses plain http unless it looks proxied
		req.Header.Set("X-Forwarded-Proto", "https")
		req.Header.Set("X-Forwarded-For", "127.0.0.1")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordRemnawaveRequest(op, "error", time.Since(started).Seconds())
		return &APIError{Op: op, Kind: ErrTransient, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	metrics.RecordRemnawaveRequest(op, strconv.Itoa(resp.StatusCode), time.Since(started).Seconds())
	if err != nil {
		return &APIError{Op: op, Status: resp.StatusCode, Kind: ErrTransient, Err: err}
	}

	c.log.Debug("panel call",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	if resp.StatusCode >= 400 {
		return &APIError{
			Op:     op,
			Status: resp.StatusCode,
			Body:   truncate(strings.TrimSpace(string(respBody)), maxErrorBody),
			Kind:   kindForStatus(resp.StatusCode),
		}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if !json.Valid(respBody) {
		// a proxy login or error page, the panel never saw the request
		return &APIError{
			Op:     op,
			Status: resp.StatusCode,
			Body:   truncate(strings.TrimSpace(string(respBody)), maxErrorBody),
			Kind:   ErrTransient,
			Err:    fmt.Errorf("non-JSON response (%s)", resp.Header.Get("Content-Type")),
		}
	}
	if err := json.Unmarshal(unwrapResponse(respBody), out); err != nil {
		return fmt.Errorf("%s: %w: %v", op, errDecode, err)
	}
	return nil
}

// unwrapResponse strips the {"response": ...} envelope when present.
func unwrapResponse(body []byte) []byte {
	var envelope struct {
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Response) > 0 && string(envelope.Response) != "null" {
		return envelope.Response
	}
	return body
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
