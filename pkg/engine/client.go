package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/olivere/elastic"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

const (
	DefaultURL            = "http://localhost:9200"
	DefaultIndex          = "test"
	DefaultMappingRoute   = "/_mapping/_doc"
	DefaultTranslateRoute = "/_xpack/sql/translate"
	DefaultTimeout        = 5 * time.Second
)

// ErrUnexpectedStatus is wrapped by every StatusError
var ErrUnexpectedStatus = errors.New("unexpected status code")

// StatusError reports a response whose status code was not one the caller accepts
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("cannot %s: %d: %s", e.Op, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("cannot %s: %d: %s: %s", e.Op, e.Code, http.StatusText(e.Code), body)
}

// Unwrap lets errors.Is match ErrUnexpectedStatus
func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// Config holds the connection settings for a Client
type Config struct {
	URL            string
	Index          string
	MappingRoute   string
	TranslateRoute string
	Timeout        time.Duration
}

// Client talks to the search engine REST API
type Client struct {
	es             *elastic.Client
	baseURL        string
	index          string
	mappingRoute   string
	translateRoute string
}

// NewClient creates a client, filling unset config fields with defaults.
// Sniffing and health checks are off so a single node (or the mock engine) is enough.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Index == "" {
		cfg.Index = DefaultIndex
	}
	if cfg.MappingRoute == "" {
		cfg.MappingRoute = DefaultMappingRoute
	}
	if cfg.TranslateRoute == "" {
		cfg.TranslateRoute = DefaultTranslateRoute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	baseURL := strings.TrimRight(cfg.URL, "/")
	es, err := elastic.NewClient(
		elastic.SetURL(baseURL),
		elastic.SetSniff(false),
		elastic.SetHealthcheck(false),
		elastic.SetHttpClient(&http.Client{Timeout: cfg.Timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine client: %w", err)
	}

	return &Client{
		es:             es,
		baseURL:        baseURL,
		index:          cfg.Index,
		mappingRoute:   cfg.MappingRoute,
		translateRoute: cfg.TranslateRoute,
	}, nil
}

// IndexURL returns the full URL of the client's index
func (c *Client) IndexURL() string {
	return c.baseURL + "/" + c.index
}

func (c *Client) indexPath() string {
	return "/" + c.index
}

// doRequest sends a request and returns the body if the status is one of accepted.
// body is sent verbatim when it is a string and JSON-encoded otherwise.
func (c *Client) doRequest(ctx context.Context, op, method, path string, body interface{}, accepted ...int) ([]byte, error) {
	resp, err := c.es.PerformRequest(ctx, elastic.PerformRequestOptions{
		Method: method,
		Path:   path,
		Body:   body,
	})
	if err != nil {
		if se := statusError(op, err); se != nil {
			return nil, se
		}
		return nil, errors.Wrapf(err, "cannot %s: request failed", op)
	}

	for _, code := range accepted {
		if resp.StatusCode == code {
			return resp.Body, nil
		}
	}

	return nil, &StatusError{Op: op, Code: resp.StatusCode, Body: string(resp.Body)}
}

// statusError converts an engine error response into a StatusError, nil for transport errors
func statusError(op string, err error) *StatusError {
	var ee *elastic.Error
	if !errors.As(err, &ee) || ee.Status == 0 {
		return nil
	}

	se := &StatusError{Op: op, Code: ee.Status}
	if ee.Details != nil {
		se.Body = ee.Details.Reason
		if ee.Details.Type != "" {
			se.Body = fmt.Sprintf("%s [type=%s]", ee.Details.Reason, ee.Details.Type)
		}
	}
	return se
}

// CreateIndex creates the index
func (c *Client) CreateIndex(ctx context.Context) error {
	_, err := c.doRequest(ctx, "create index", http.MethodPut, c.indexPath(), nil, http.StatusOK)
	return err
}

// DeleteIndex deletes the index
func (c *Client) DeleteIndex(ctx context.Context) error {
	_, err := c.doRequest(ctx, "delete index", http.MethodDelete, c.indexPath(), nil,
		http.StatusOK, http.StatusAccepted, http.StatusNoContent)
	return err
}

// PutMapping declares the field types of the index
func (c *Client) PutMapping(ctx context.Context, schema Schema) error {
	_, err := c.doRequest(ctx, "put mapping", http.MethodPut, c.indexPath()+c.mappingRoute, schema.Mapping(), http.StatusOK)
	return err
}

// IndexDocument posts a single document and returns the id the engine assigned
func (c *Client) IndexDocument(ctx context.Context, doc interface{}) (string, error) {
	data, err := c.doRequest(ctx, "insert data", http.MethodPost, c.indexPath()+"/_doc", doc, http.StatusCreated)
	if err != nil {
		return "", err
	}

	return gjson.GetBytes(data, "_id").String(), nil
}

// Search runs a query DSL body against the index.
// The raw body is kept so hits.total reads the same from 6.x and 7.x engines.
func (c *Client) Search(ctx context.Context, dsl string) (*SearchResult, error) {
	data, err := c.doRequest(ctx, "search", http.MethodPost, c.indexPath()+"/_search", dsl, http.StatusOK)
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("cannot search: response is not valid JSON")
	}

	return &SearchResult{raw: data}, nil
}

// Translate asks the engine to convert SQL into its query DSL
func (c *Client) Translate(ctx context.Context, sql string) (string, error) {
	body := map[string]string{"query": sql}

	data, err := c.doRequest(ctx, "translate", http.MethodPost, c.translateRoute, body, http.StatusOK)
	if err != nil {
		return "", err
	}

	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("cannot translate: response is not valid JSON")
	}

	return string(data), nil
}

// Count returns the number of documents in the index
func (c *Client) Count(ctx context.Context) (int64, error) {
	n, err := c.es.Count(c.index).Do(ctx)
	if err != nil {
		if se := statusError("count", err); se != nil {
			return 0, se
		}
		return 0, errors.Wrap(err, "cannot count")
	}
	return n, nil
}
