// Package rest provides an engine.DataProvider backed by a JSON HTTP API.
//
// Paths map to collections under the base URL and keys to members of those
// collections. List parameters use the json-server query conventions:
// filters become plain query parameters and sort, order, offset and limit
// become _sort, _order, _start and _limit. The total number of matches is
// read from the X-Total-Count response header.
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
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/openfroyo/rbkit/pkg/engine"
)

// Query parameter names.
const (
	QuerySort   = "_sort"
	QueryOrder  = "_order"
	QueryStart  = "_start"
	QueryLimit  = "_limit"
	TotalHeader = "X-Total-Count"
)

var (
	// ErrNotFound matches errors for 404 responses.
	ErrNotFound = errors.New("not found")

	// ErrConflict matches errors for 409 responses.
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized matches errors for 401 and 403 responses.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrBadRequest matches errors for 400 and 422 responses.
	ErrBadRequest = errors.New("bad request")

	// ErrServer matches errors for 5xx and other unexpected responses.
	ErrServer = errors.New("server error")
)

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s: unexpected response code %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s: unexpected response code %d", e.Method, e.URL, e.StatusCode)
}

// Unwrap maps the status code onto one of the package sentinels.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusConflict:
		return ErrConflict
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case e.StatusCode == http.StatusBadRequest, e.StatusCode == http.StatusUnprocessableEntity:
		return ErrBadRequest
	}
	return ErrServer
}

// TokenFunc returns the bearer token to send, or "" to send none.
type TokenFunc func(ctx context.Context) (string, error)

// TokenFromStorage reads the bearer token from store under key.
func TokenFromStorage(store engine.StorageProvider, key string) TokenFunc {
	return func(ctx context.Context) (string, error) {
		token, _, err := store.GetItem(ctx, key)
		return token, err
	}
}

// Provider talks to a JSON HTTP API. It is safe for concurrent use.
type Provider struct {
	engine.BaseDataProvider

	baseURL string
	client  *http.Client
	headers http.Header
	token   TokenFunc
	key     string
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient sets the client used for requests. Its transport is used
// as is, so instrument it yourself if needed.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client = c
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(name, value string) Option {
	return func(p *Provider) {
		p.headers.Add(name, value)
	}
}

// WithToken sets the source of the bearer token.
func WithToken(fn TokenFunc) Option {
	return func(p *Provider) {
		p.token = fn
	}
}

// WithKey sets the identifier attribute used by UpdateMany. Defaults to "id".
func WithKey(attr string) Option {
	return func(p *Provider) {
		p.key = attr
	}
}

// New creates a provider for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Provider {
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		headers: make(http.Header),
		key:     "id",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetMany issues GET {base}/{path} with the params encoded as query parameters.
func (p *Provider) GetMany(ctx context.Context, path string, params engine.Params) (*engine.Response, error) {
	resp, body, err := p.do(ctx, http.MethodGet, p.collectionURL(path, listQuery(params)), nil)
	if err != nil {
		return nil, err
	}

	var records []engine.Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if records == nil {
		records = []engine.Record{}
	}

	total := int64(len(records))
	if h := resp.Header.Get(TotalHeader); h != "" {
		if n, err := strconv.ParseInt(h, 10, 64); err == nil {
			total = n
		}
	}
	return &engine.Response{Data: records, Total: total}, nil
}

// GetOne issues GET {base}/{path}/{key}.
func (p *Provider) GetOne(ctx context.Context, path string, key any, _ engine.Params) (*engine.Response, error) {
	return p.one(ctx, http.MethodGet, p.memberURL(path, key), nil)
}

// CreateOne issues POST {base}/{path}.
func (p *Provider) CreateOne(ctx context.Context, path string, data engine.Record, _ engine.Params) (*engine.Response, error) {
	return p.one(ctx, http.MethodPost, p.collectionURL(path, nil), data)
}

// UpdateOne issues PATCH {base}/{path}/{key}.
func (p *Provider) UpdateOne(ctx context.Context, path string, key any, data engine.Record, _ engine.Params) (*engine.Response, error) {
	return p.one(ctx, http.MethodPatch, p.memberURL(path, key), data)
}

// UpdateMany issues one PATCH per record, addressed by its key attribute.
// It stops at the first failure; records updated before it stay updated.
func (p *Provider) UpdateMany(ctx context.Context, path string, data []engine.Record, params engine.Params) (*engine.Response, error) {
	updated := make([]engine.Record, 0, len(data))
	for i, rec := range data {
		key, ok := rec[p.key]
		if !ok {
			return nil, fmt.Errorf("%s[%d]: record has no %q attribute", path, i, p.key)
		}
		resp, err := p.UpdateOne(ctx, path, key, rec, params)
		if err != nil {
			return nil, err
		}
		updated = append(updated, resp.Record())
	}
	return &engine.Response{Data: updated, Total: int64(len(updated))}, nil
}

// DeleteOne issues DELETE {base}/{path}/{key}.
func (p *Provider) DeleteOne(ctx context.Context, path string, key any, _ engine.Params) (*engine.Response, error) {
	return p.one(ctx, http.MethodDelete, p.memberURL(path, key), nil)
}

// DeleteMany issues one DELETE per key. It stops at the first failure.
func (p *Provider) DeleteMany(ctx context.Context, path string, keys []any, params engine.Params) (*engine.Response, error) {
	deleted := make([]engine.Record, 0, len(keys))
	for _, key := range keys {
		resp, err := p.DeleteOne(ctx, path, key, params)
		if err != nil {
			return nil, err
		}
		deleted = append(deleted, resp.Record())
	}
	return &engine.Response{Data: deleted, Total: int64(len(deleted))}, nil
}

func (p *Provider) one(ctx context.Context, method, target string, data engine.Record) (*engine.Response, error) {
	var payload io.Reader
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		payload = bytes.NewReader(b)
	}

	_, body, err := p.do(ctx, method, target, payload)
	if err != nil {
		return nil, err
	}

	rec := engine.Record{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, fmt.Errorf("decoding response from %s: %w", target, err)
		}
	}
	return &engine.Response{Data: rec}, nil
}

func (p *Provider) do(ctx context.Context, method, target string, body io.Reader) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, nil, err
	}

	for name, values := range p.headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if p.token != nil {
		token, err := p.token(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, nil, &StatusError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	return resp, respBody, nil
}

func (p *Provider) collectionURL(path string, query url.Values) string {
	u := p.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (p *Provider) memberURL(path string, key any) string {
	return p.collectionURL(path, nil) + "/" + url.PathEscape(fmt.Sprint(key))
}

// listQuery encodes params for GetMany. Slice filters are repeated.
func listQuery(params engine.Params) url.Values {
	q := url.Values{}

	filters := params.Filters()
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		switch v := filters[name].(type) {
		case []any:
			for _, item := range v {
				q.Add(name, fmt.Sprint(item))
			}
		case []string:
			for _, item := range v {
				q.Add(name, item)
			}
		case nil:
		default:
			q.Add(name, fmt.Sprint(v))
		}
	}

	if s := params.Sort(); s != "" {
		q.Set(QuerySort, s)
		q.Set(QueryOrder, params.Order())
	}
	if off := params.Offset(); off > 0 {
		q.Set(QueryStart, strconv.Itoa(off))
	}
	if limit, ok := params.Limit(); ok {
		q.Set(QueryLimit, strconv.Itoa(limit))
	}
	return q
}
