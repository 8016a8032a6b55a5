// Package remote holds the JSON-over-HTTP plumbing shared by the product
// and logistics clients: per-call timeout, circuit breaking and error
// classification into the apperrors taxonomy.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jogardn/order-orchestrator/internal/apperrors"
	"github.com/jogardn/order-orchestrator/internal/circuitbreaker"
	"github.com/sirupsen/logrus"
)

const maxErrorBody = 512

type Client struct {
	service    string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *logrus.Logger
}

// New builds a client for service rooted at baseURL. breaker may be nil.
func New(service, baseURL string, timeout time.Duration, breaker *circuitbreaker.CircuitBreaker, logger *logrus.Logger) *Client {
	return &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: breaker,
		logger:  logger,
	}
}

// IsBreakerFailure counts only errors that say something about the remote
// service's health; a 404 or a rejected request body does not.
func IsBreakerFailure(err error) bool {
	return errors.Is(err, apperrors.ErrRemoteService)
}

// Response is what Do hands back on a completed exchange.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Decode unmarshals a JSON body into out, failing with a remote service
// error when the payload is not valid JSON.
func (r *Response) Decode(service string, out interface{}) error {
	if len(r.Body) == 0 {
		return apperrors.Remote("%s returned an empty body", service)
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return apperrors.RemoteCause(err, "%s returned invalid JSON", service)
	}
	return nil
}

// Do performs one request and returns the raw response. Transport errors,
// timeouts and an open breaker come back as remote service errors; status
// handling is left to the caller through check.
func (c *Client) Do(ctx context.Context, method, path string, payload interface{}, check func(*Response) error) (*Response, error) {
	var resp *Response
	call := func(ctx context.Context) error {
		var err error
		resp, err = c.roundTrip(ctx, method, path, payload)
		if err != nil {
			return err
		}
		return check(resp)
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
		if errors.Is(err, circuitbreaker.ErrOpen) {
			err = apperrors.RemoteCause(err, "%s unavailable", c.service)
		}
	} else {
		err = call(ctx)
	}
	return resp, err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload interface{}) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s request: %w", c.service, err)
		}
		body = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", c.service, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"service": c.service,
			"method":  method,
			"url":     url,
		}).Warn("Remote call failed")
		return nil, apperrors.RemoteCause(err, "failed to call %s %s %s", c.service, method, path)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apperrors.RemoteCause(err, "failed to read %s response", c.service)
	}

	c.logger.WithFields(logrus.Fields{
		"service":  c.service,
		"method":   method,
		"path":     path,
		"status":   httpResp.StatusCode,
		"duration": time.Since(start).Milliseconds(),
	}).Debug("Remote call completed")

	return &Response{
		StatusCode:  httpResp.StatusCode,
		ContentType: httpResp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}

func IsSuccess(code int) bool {
	return code >= 200 && code < 300
}

// UnexpectedStatus is the standard remote error for a non-success status.
func UnexpectedStatus(service, action string, resp *Response) error {
	body := string(resp.Body)
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return apperrors.Remote("%s: error %s: %d - %s", service, action, resp.StatusCode, strings.TrimSpace(body))
}
