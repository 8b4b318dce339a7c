package client

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

	"github.com/dmitrijs2005/gophusers/internal/client/session"
	"github.com/dmitrijs2005/gophusers/internal/common"
	"github.com/dmitrijs2005/gophusers/internal/models"
)

const maxErrorBody = 64 << 10

// HTTPClient implements Client over the JSON HTTP API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient returns a client for the API at baseURL. Every request passes
// pipeline; timeout bounds each call (0 disables it).
func NewHTTPClient(baseURL string, timeout time.Duration, pipeline *session.Pipeline) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: &pipelineTransport{base: http.DefaultTransport, pipeline: pipeline},
		},
	}
}

// pipelineTransport runs the session pipeline around each round trip.
type pipelineTransport struct {
	base     http.RoundTripper
	pipeline *session.Pipeline
}

func (t *pipelineTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	ex := &session.Exchange{Operation: req.Method + " " + req.URL.Path}
	t.pipeline.BeforeSend(ctx, ex)

	if ex.Token != "" {
		req = req.Clone(ctx)
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+ex.Token)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		ex.Outcome, ex.Err = session.OutcomeTransportError, err
	} else {
		ex.Outcome = session.OutcomeForStatus(resp.StatusCode)
	}
	t.pipeline.AfterReceive(ctx, ex)
	return resp, err
}

func (c *HTTPClient) Exchange(ctx context.Context, assertion string) (session.Grant, error) {
	var out exchangeResponse
	err := c.do(ctx, http.MethodPost, "/auth/external", map[string]string{"assertion": assertion}, &out)
	if err != nil {
		return session.Grant{}, err
	}
	return out.grant(), nil
}

func (c *HTTPClient) Me(ctx context.Context) (models.User, error) {
	var u models.User
	err := c.do(ctx, http.MethodGet, "/users/me", nil, &u)
	return u, err
}

func (c *HTTPClient) UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (models.User, error) {
	var u models.User
	err := c.do(ctx, http.MethodPut, "/users/me/profile", upd, &u)
	return u, err
}

func (c *HTTPClient) UpdateAccount(ctx context.Context, upd models.AccountUpdate) (models.User, error) {
	var u models.User
	err := c.do(ctx, http.MethodPut, "/users/me", upd, &u)
	return u, err
}

func (c *HTTPClient) PresignAvatar(ctx context.Context, contentType string) (AvatarUpload, error) {
	var up AvatarUpload
	err := c.do(ctx, http.MethodPost, "/users/me/avatar", map[string]string{"content_type": contentType}, &up)
	return up, err
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorBody is the server's error document. Detail is a string, or a list
// of field errors for 422 responses.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

type fieldDetail struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var eb errorBody
	_ = json.Unmarshal(data, &eb)

	if resp.StatusCode == http.StatusUnprocessableEntity {
		var fields []fieldDetail
		if err := json.Unmarshal(eb.Detail, &fields); err == nil && len(fields) > 0 {
			fe := make(common.FieldErrors, 0, len(fields))
			for _, f := range fields {
				fe = append(fe, common.FieldError{Field: fieldName(f.Loc), Message: f.Msg})
			}
			return fe
		}
	}

	var detail string
	if err := json.Unmarshal(eb.Detail, &detail); err != nil {
		detail = strings.TrimSpace(string(data))
	}

	return &APIError{Status: resp.StatusCode, Detail: detail, Err: sentinelForStatus(resp.StatusCode)}
}

func sentinelForStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusUnprocessableEntity:
		return ErrValidation
	case code >= 500:
		return ErrServer
	default:
		return ErrBadRequest
	}
}

// fieldName picks the last string element of a validation location such as
// ["body", "phone"].
func fieldName(loc []any) string {
	for i := len(loc) - 1; i >= 0; i-- {
		if s, ok := loc[i].(string); ok {
			return s
		}
	}
	return ""
}

// IsTransportError reports whether err means no response was received.
func IsTransportError(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
