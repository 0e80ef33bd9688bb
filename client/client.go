package client

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
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/arxiv/relations"
)

const (
	defaultTimeout = 3 * time.Second
	userAgent      = "arxiv-relations-client"
)

// Client talks to the relations HTTP API. Relations are immutable, so those
// fetched by identifier are cached.
type Client struct {
	client    *http.Client
	cache     *cache.Cache
	baseURL   string
	apiKey    string
	requester string
}

type Option func(*Client)

// WithAPIKey sets the key sent on write requests.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithRequester sets the identity recorded as creator when a write does not
// name one.
func WithRequester(requester string) Option {
	return func(c *Client) { c.requester = requester }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		client:  &http.Client{Timeout: defaultTimeout},
		cache:   cache.New(10*time.Minute, 15*time.Minute),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status code: %d: %s", e.StatusCode, e.Message)
}

func IsNotFound(err error) bool { return hasStatus(err, http.StatusNotFound) }

// IsConflict reports a write against a predecessor that is no longer active.
func IsConflict(err error) bool { return hasStatus(err, http.StatusConflict) }

func hasStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

func (c *Client) HttpRequest(ctx context.Context, method, path string, body any, response any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}
	if c.requester != "" {
		req.Header.Set("X-Requester", c.requester)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp relations.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return &StatusError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	if response == nil {
		return nil
	}
	err = json.NewDecoder(resp.Body).Decode(response)
	if err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func (c *Client) Status(ctx context.Context) (relations.Status, error) {
	var status relations.Status
	err := c.HttpRequest(ctx, http.MethodGet, "/status", nil, &status)
	return status, err
}

func (c *Client) GetRelation(ctx context.Context, id string) (relations.Relation, error) {
	cacheKey := "relation:" + id
	if x, found := c.cache.Get(cacheKey); found {
		return x.(relations.Relation), nil
	}

	var rel relations.Relation
	err := c.HttpRequest(ctx, http.MethodGet, "/relations/"+url.PathEscape(id), nil, &rel)
	if err != nil {
		return relations.Relation{}, fmt.Errorf("failed to get relation %s: %w", id, err)
	}

	c.remember(rel)
	return rel, nil
}

// ListActive returns the relations that currently hold for the e-print.
func (c *Client) ListActive(ctx context.Context, ePrint relations.EPrint) ([]relations.Relation, error) {
	var rels []relations.Relation
	err := c.HttpRequest(ctx, http.MethodGet, ePrintPath(ePrint), nil, &rels)
	if err != nil {
		return nil, fmt.Errorf("failed to list relations of %s: %w", ePrint, err)
	}
	return rels, nil
}

// Log returns every relation ever recorded for the e-print.
func (c *Client) Log(ctx context.Context, ePrint relations.EPrint) ([]relations.LineageEntry, error) {
	var entries []relations.LineageEntry
	err := c.HttpRequest(ctx, http.MethodGet, ePrintPath(ePrint)+"/log", nil, &entries)
	if err != nil {
		return nil, fmt.Errorf("failed to get log of %s: %w", ePrint, err)
	}
	return entries, nil
}

func (c *Client) Lineage(ctx context.Context, id string) ([]relations.LineageEntry, error) {
	var entries []relations.LineageEntry
	err := c.HttpRequest(ctx, http.MethodGet, "/relations/"+url.PathEscape(id)+"/lineage", nil, &entries)
	if err != nil {
		return nil, fmt.Errorf("failed to get lineage of %s: %w", id, err)
	}
	return entries, nil
}

func (c *Client) IsActive(ctx context.Context, id string) (bool, error) {
	var activity relations.Activity
	err := c.HttpRequest(ctx, http.MethodGet, "/relations/"+url.PathEscape(id)+"/active", nil, &activity)
	if err != nil {
		return false, fmt.Errorf("failed to get activation of %s: %w", id, err)
	}
	return activity.Active, nil
}

func (c *Client) Create(ctx context.Context, ePrint relations.EPrint, in relations.RelationInput) (relations.Relation, error) {
	return c.write(ctx, ePrintPath(ePrint)+"/relations", in)
}

func (c *Client) Supersede(ctx context.Context, ePrint relations.EPrint, predecessor string, in relations.RelationInput) (relations.Relation, error) {
	return c.write(ctx, ePrintPath(ePrint)+"/relations/"+url.PathEscape(predecessor), in)
}

func (c *Client) Suppress(ctx context.Context, ePrint relations.EPrint, predecessor, description string) (relations.Relation, error) {
	return c.write(ctx, ePrintPath(ePrint)+"/relations/"+url.PathEscape(predecessor)+"/delete", relations.RelationInput{Description: description})
}

func (c *Client) write(ctx context.Context, path string, in relations.RelationInput) (relations.Relation, error) {
	var rel relations.Relation
	err := c.HttpRequest(ctx, http.MethodPost, path, in, &rel)
	if err != nil {
		return relations.Relation{}, err
	}
	c.remember(rel)
	return rel, nil
}

func (c *Client) remember(rel relations.Relation) {
	c.cache.Set("relation:"+rel.Identifier, rel, cache.DefaultExpiration)
}

func ePrintPath(e relations.EPrint) string {
	return "/" + url.PathEscape(e.String())
}
