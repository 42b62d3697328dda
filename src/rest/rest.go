package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/hendrywilliam/sirengate/src/ratelimit"
	"github.com/hendrywilliam/sirengate/src/stats"
	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL     = "https://discord.com/api/v10"
	DefaultUserAgent   = "DiscordBot (https://github.com/hendrywilliam/siren, 1.0.0)"
	DefaultMaxAttempts = 4
)

var ErrMissingToken = errors.New("rest: bot token is not provided")

// RESTClient is what resource APIs need from the engine.
type RESTClient interface {
	URL() string
	Get(ctx context.Context, path string, options *RESTOptions) (json.RawMessage, error)
	Post(ctx context.Context, path string, body any, options *RESTOptions) (json.RawMessage, error)
	Put(ctx context.Context, path string, body any, options *RESTOptions) (json.RawMessage, error)
	Patch(ctx context.Context, path string, body any, options *RESTOptions) (json.RawMessage, error)
	Delete(ctx context.Context, path string, options *RESTOptions) (json.RawMessage, error)
}

// REST dispatches requests through per route buckets and a global limiter,
// retrying 429 responses up to maxAttempts.
type REST struct {
	httpClient  *http.Client
	botToken    string
	baseURL     string
	userAgent   string
	maxAttempts int

	global    *ratelimit.GlobalLimiter
	globalCap int
	globalPer time.Duration
	clockOpts []ratelimit.Option
	sleep     ratelimit.SleepFunc

	stats stats.Recorder
	log   zerolog.Logger

	mu          sync.Mutex
	routes      map[string]string
	buckets     map[string]*ratelimit.Bucket
	passthrough *ratelimit.Bucket
}

type RESTOptions struct {
	Headers map[string]string
	Query   url.Values
	// Reason is sent as X-Audit-Log-Reason.
	Reason string
}

type Option func(*REST)

func WithBaseURL(u string) Option {
	return func(r *REST) {
		if u != "" {
			r.baseURL = u
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(r *REST) {
		if ua != "" {
			r.userAgent = ua
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(r *REST) {
		if c != nil {
			r.httpClient = c
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(r *REST) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func WithGlobalLimit(capacity int, period time.Duration) Option {
	return func(r *REST) {
		r.globalCap = capacity
		r.globalPer = period
	}
}

// WithClock overrides the time source of the engine and its limiters.
func WithClock(now func() time.Time) Option {
	return func(r *REST) {
		r.clockOpts = append(r.clockOpts, ratelimit.WithClock(now))
	}
}

// WithSleep overrides every wait performed by the engine and its limiters.
func WithSleep(fn ratelimit.SleepFunc) Option {
	return func(r *REST) {
		if fn == nil {
			return
		}
		r.sleep = fn
		r.clockOpts = append(r.clockOpts, ratelimit.WithSleep(fn))
	}
}

func WithStats(rec stats.Recorder) Option {
	return func(r *REST) {
		if rec != nil {
			r.stats = rec
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(r *REST) {
		r.log = log
	}
}

func NewREST(botToken string, opts ...Option) *REST {
	r := &REST{
		httpClient:  http.DefaultClient,
		botToken:    botToken,
		baseURL:     DefaultBaseURL,
		userAgent:   DefaultUserAgent,
		maxAttempts: DefaultMaxAttempts,
		sleep:       ratelimit.Sleep,
		stats:       stats.Nop{},
		log:         zerolog.Nop(),
		routes:      make(map[string]string),
		buckets:     make(map[string]*ratelimit.Bucket),
		passthrough: ratelimit.Passthrough(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.global = ratelimit.NewGlobalLimiter(r.globalCap, r.globalPer, r.clockOpts...)
	return r
}

func (r *REST) URL() string {
	return r.baseURL
}

func (r *REST) Global() *ratelimit.GlobalLimiter {
	return r.global
}

func (r *REST) Get(ctx context.Context, path string, options *RESTOptions) (json.RawMessage, error) {
	return r.Do(ctx, http.MethodGet, path, nil, options)
}

func (r *REST) Post(ctx context.Context, path string, body any, options *RESTOptions) (json.RawMessage, error) {
	return r.Do(ctx, http.MethodPost, path, body, options)
}

func (r *REST) Put(ctx context.Context, path string, body any, options *RESTOptions) (json.RawMessage, error) {
	return r.Do(ctx, http.MethodPut, path, body, options)
}

func (r *REST) Patch(ctx context.Context, path string, body any, options *RESTOptions) (json.RawMessage, error) {
	return r.Do(ctx, http.MethodPatch, path, body, options)
}

func (r *REST) Delete(ctx context.Context, path string, options *RESTOptions) (json.RawMessage, error) {
	return r.Do(ctx, http.MethodDelete, path, nil, options)
}

// Do sends a request to path, relative to the base URL. The body is JSON
// encoded once so every retry sends the same bytes. A 204 yields a nil body.
func (r *REST) Do(ctx context.Context, method, path string, body any, options *RESTOptions) (json.RawMessage, error) {
	if r.botToken == "" {
		return nil, ErrMissingToken
	}
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = b
	}
	route := method + " " + path
	for attempt := 1; ; attempt++ {
		data, retry, err := r.attempt(ctx, method, path, route, payload, options, attempt == r.maxAttempts)
		if !retry {
			return data, err
		}
		r.log.Debug().
			Str("route", route).
			Int("attempt", attempt).
			Msg("rate limited, retrying")
	}
}

// attempt performs one pass of resolve, acquire, send and classify. retry
// is true when the request was rate limited and the cooldown has been served.
func (r *REST) attempt(ctx context.Context, method, path, route string, payload []byte, options *RESTOptions, last bool) (data json.RawMessage, retry bool, err error) {
	bucket := r.bucketFor(route)
	release, err := bucket.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	defer release()

	if err := r.global.Wait(ctx); err != nil {
		return nil, false, err
	}

	req, err := r.makeRequest(ctx, method, path, payload, options)
	if err != nil {
		return nil, false, err
	}
	res, err := r.httpClient.Do(req)
	if err != nil {
		r.record(ctx, method, path, bucket.ID(), 0, stats.OutcomeError)
		return nil, false, fmt.Errorf("%s: %w", route, err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		r.record(ctx, method, path, bucket.ID(), res.StatusCode, stats.OutcomeError)
		return nil, false, fmt.Errorf("%s: read body: %w", route, err)
	}

	target := bucket
	if info, ok := ratelimit.ParseInfo(res.Header); ok {
		target = r.learn(route, bucket, info)
	}

	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		httpErr := newHTTPError(method, path, res, raw)
		httpErr.RetryAfter = retryAfter(httpErr, res.Header)
		httpErr.Global = httpErr.Body.Global || res.Header.Get(ratelimit.HeaderGlobal) == "true" || res.Header.Get(ratelimit.HeaderScope) == "global"

		outcome := stats.OutcomeRateLimited
		if httpErr.Global {
			outcome = stats.OutcomeGlobalRateLimited
		}
		r.record(ctx, method, path, target.ID(), res.StatusCode, outcome)

		log := r.log.Warn().
			Str("route", route).
			Str("bucket", target.ID()).
			Bool("global", httpErr.Global).
			Dur("retry_after", httpErr.RetryAfter)

		// The quota is applied on every 429. The last attempt only skips
		// the wait.
		switch {
		case httpErr.Global && last:
			r.global.Cooldown(httpErr.RetryAfter)
		case httpErr.Global:
			release()
			if err := r.global.HandleViolation(ctx, httpErr.RetryAfter); err != nil {
				return nil, false, err
			}
		case !target.IsPassthrough():
			target.Exhaust(httpErr.RetryAfter)
		case !last:
			release()
			if err := r.sleep(ctx, httpErr.RetryAfter); err != nil {
				return nil, false, err
			}
		}
		if last {
			log.Msg("rate limited, giving up")
			return nil, false, httpErr
		}
		log.Msg("rate limited")
		return nil, true, nil

	case res.StatusCode < 200 || res.StatusCode > 299:
		r.record(ctx, method, path, target.ID(), res.StatusCode, stats.OutcomeError)
		return nil, false, newHTTPError(method, path, res, raw)
	}

	r.record(ctx, method, path, target.ID(), res.StatusCode, stats.OutcomeOK)
	if res.StatusCode == http.StatusNoContent || len(raw) == 0 {
		return nil, false, nil
	}
	return json.RawMessage(raw), false, nil
}

func (r *REST) makeRequest(ctx context.Context, method, path string, payload []byte, options *RESTOptions) (*http.Request, error) {
	u, err := url.Parse(r.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	u = u.JoinPath(path)
	if options != nil && len(options.Query) > 0 {
		u.RawQuery = options.Query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if options != nil {
		r.applyHeaders(req, options.Headers)
		if options.Reason != "" {
			req.Header.Set("X-Audit-Log-Reason", url.PathEscape(options.Reason))
		}
	}
	// Mandatory headers.
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("Authorization", fmt.Sprintf("Bot %s", r.botToken))
	req.Header.Set("User-Agent", r.userAgent)
	return req, nil
}

func (r *REST) applyHeaders(req *http.Request, headers map[string]string) {
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

func (r *REST) bucketFor(route string) *ratelimit.Bucket {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.routes[route]; ok {
		if b, ok := r.buckets[id]; ok {
			return b
		}
	}
	return r.passthrough
}

// learn records the bucket a route belongs to and applies info to it. The
// held bucket and a freshly created one are updated; an existing bucket held
// by someone else is left to its holder.
func (r *REST) learn(route string, held *ratelimit.Bucket, info ratelimit.Info) *ratelimit.Bucket {
	if info.Bucket == "" {
		held.Update(info)
		return held
	}

	r.mu.Lock()
	b, exists := r.buckets[info.Bucket]
	if !exists {
		// Filled in before it is reachable through routes.
		b = ratelimit.NewBucket(info.Bucket, r.clockOpts...)
		b.Update(info)
		r.buckets[info.Bucket] = b
	}
	prev := r.routes[route]
	r.routes[route] = info.Bucket
	r.mu.Unlock()

	if prev != info.Bucket {
		r.log.Debug().Str("route", route).Str("bucket", info.Bucket).Msg("route mapped to bucket")
	}
	if exists && b == held {
		b.Update(info)
	}
	return b
}

func (r *REST) record(ctx context.Context, method, path, bucket string, status int, outcome stats.Outcome) {
	ev := stats.Event{
		Method:  method,
		Route:   path,
		Bucket:  bucket,
		Status:  status,
		Outcome: outcome,
		At:      time.Now(),
	}
	if err := r.stats.Record(ctx, ev); err != nil {
		r.log.Debug().Err(err).Msg("failed to record request stats")
	}
}

type Snapshot struct {
	Global  ratelimit.GlobalSnapshot   `json:"global"`
	Buckets []ratelimit.BucketSnapshot `json:"buckets"`
	Routes  map[string]string          `json:"routes"`
}

// Snapshot reports the limiter state for diagnostics.
func (r *REST) Snapshot() Snapshot {
	r.mu.Lock()
	buckets := make([]*ratelimit.Bucket, 0, len(r.buckets))
	for _, b := range r.buckets {
		buckets = append(buckets, b)
	}
	routes := make(map[string]string, len(r.routes))
	for k, v := range r.routes {
		routes[k] = v
	}
	r.mu.Unlock()

	snap := Snapshot{
		Global:  r.global.Snapshot(),
		Buckets: make([]ratelimit.BucketSnapshot, 0, len(buckets)),
		Routes:  routes,
	}
	for _, b := range buckets {
		snap.Buckets = append(snap.Buckets, b.Snapshot())
	}
	sort.Slice(snap.Buckets, func(i, j int) bool {
		return snap.Buckets[i].ID < snap.Buckets[j].ID
	})
	return snap
}

func newHTTPError(method, path string, res *http.Response, raw []byte) *HTTPError {
	e := &HTTPError{
		Method: method,
		Path:   path,
		Status: res.StatusCode,
		Reason: http.StatusText(res.StatusCode),
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &e.Body); err != nil {
			e.Body.Message = string(raw)
		}
	}
	return e
}

// retryAfter prefers the body value, which carries sub-second precision.
func retryAfter(e *HTTPError, h http.Header) time.Duration {
	if d := ratelimit.Seconds(e.Body.RetryAfter); d > 0 {
		return d
	}
	return ratelimit.RetryAfterHeader(h)
}
