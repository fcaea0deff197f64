package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/AnshRaj112/serenify-conversations/internal/apperr"
	"github.com/AnshRaj112/serenify-conversations/internal/logger"
	"github.com/AnshRaj112/serenify-conversations/internal/metrics"
	"golang.org/x/sync/errgroup"
)

const serviceName = "identity"

type Options struct {
	BaseURL        string
	Timeout        time.Duration
	MaxConcurrency int
	Cache          ProfileCache
	HTTPClient     *http.Client
}

// Client talks to the identity service over HTTP, forwarding the caller's bearer token.
type Client struct {
	baseURL        string
	http           *http.Client
	maxConcurrency int
	cache          ProfileCache
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limit := opts.MaxConcurrency
	if limit <= 0 {
		limit = 8
	}
	cache := opts.Cache
	if cache == nil {
		cache = noopCache{}
	}
	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		http:           httpClient,
		maxConcurrency: limit,
		cache:          cache,
	}
}

// wireProfile accepts both "_id" and "id" from the identity service.
type wireProfile struct {
	MongoID  string `json:"_id"`
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	IsOnline bool   `json:"isOnline"`
}

func (w wireProfile) profile() Profile {
	id := w.MongoID
	if id == "" {
		id = w.ID
	}
	return Profile{ID: id, Username: w.Username, Avatar: w.Avatar, IsOnline: w.IsOnline}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperr.Collaborator(serviceName, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := CredentialFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Collaborator(serviceName, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperr.NotFound("User", path)
	case resp.StatusCode == http.StatusUnauthorized:
		return apperr.Unauthorized("Identity service rejected the credential")
	case resp.StatusCode >= 300:
		return apperr.Collaborator(serviceName, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return apperr.Collaborator(serviceName, fmt.Errorf("decode %s: %w", path, err))
	}
	if env.Status == "error" {
		return apperr.Collaborator(serviceName, fmt.Errorf("%s %s: %s", method, path, env.Message))
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return apperr.NotFound("User", path)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperr.Collaborator(serviceName, fmt.Errorf("decode %s data: %w", path, err))
	}
	return nil
}

// Lookup fetches one profile.
func (c *Client) Lookup(ctx context.Context, id string) (*Profile, error) {
	var w wireProfile
	if err := c.do(ctx, http.MethodGet, "/people/"+url.PathEscape(id), nil, &w); err != nil {
		return nil, err
	}
	p := w.profile()
	if p.ID == "" {
		p.ID = id
	}
	return &p, nil
}

// Resolve looks up every id concurrently, at most maxConcurrency at a time.
func (c *Client) Resolve(ctx context.Context, ids []string) (map[string]Profile, error) {
	out := make(map[string]Profile)
	if CredentialFrom(ctx) == "" {
		return out, nil
	}
	ids = Unique(ids)
	if len(ids) == 0 {
		return out, nil
	}

	cached := c.cache.GetMany(ctx, ids)
	var misses []string
	for _, id := range ids {
		if p, ok := cached[id]; ok {
			out[id] = p
			metrics.IdentityLookupsTotal.WithLabelValues("hit").Inc()
			continue
		}
		misses = append(misses, id)
	}

	var (
		mu      sync.Mutex
		fetched []Profile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrency)
	for _, id := range misses {
		g.Go(func() error {
			p, err := c.Lookup(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.FromContext(ctx).WithError(err).WithField("userId", id).Debug("identity lookup failed, using placeholder")
				metrics.IdentityLookupsTotal.WithLabelValues("fallback").Inc()
				out[id] = Placeholder(id)
				return nil
			}
			metrics.IdentityLookupsTotal.WithLabelValues("fetched").Inc()
			out[id] = *p
			fetched = append(fetched, *p)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.cache.SetMany(ctx, fetched)
	return out, nil
}

// Verify asks the batch endpoint which ids exist. A missing or rejected credential
// verifies nobody.
func (c *Client) Verify(ctx context.Context, ids []string) (map[string]Profile, error) {
	ids = Unique(ids)
	out := make(map[string]Profile, len(ids))
	if CredentialFrom(ctx) == "" || len(ids) == 0 {
		return out, nil
	}

	var wire []wireProfile
	err := c.do(ctx, http.MethodPost, "/people/batch", ids, &wire)
	var unauthorized *apperr.UnauthorizedError
	if apperr.IsNotFound(err) || errors.As(err, &unauthorized) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	profiles := make([]Profile, 0, len(wire))
	for _, w := range wire {
		p := w.profile()
		if _, ok := wanted[p.ID]; !ok {
			continue
		}
		out[p.ID] = p
		profiles = append(profiles, p)
	}
	c.cache.SetMany(ctx, profiles)
	return out, nil
}
