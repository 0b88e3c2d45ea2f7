package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Result is the uniform outcome of a gateway call.
//
// OK reflects HTTP-level success (2xx). Data is the decoded body, or a fallback
// error object when the body could not be decoded or the request never completed.
// Raw always holds JSON for Data so typed decoders can work from bytes.
type Result struct {
	OK         bool
	StatusCode int
	Data       any
	Raw        json.RawMessage
}

const (
	badJSONError   = "bad json"
	transportError = "transport error"
)

// Client is the single chokepoint through which the UI talks to the backend.
// Call never returns an error: transport and decode failures become data.
type Client struct {
	baseURL string
	http    *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		// no Timeout: a hung request only stalls the action that issued it
		http: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

type request struct {
	method  string
	headers http.Header
	body    func() (io.Reader, string, error)
}

// RequestOption mirrors the fetch-style options of a call (method, headers, body).
type RequestOption func(*request)

func WithMethod(method string) RequestOption {
	return func(r *request) { r.method = method }
}

func WithHeader(key, value string) RequestOption {
	return func(r *request) { r.headers.Set(key, value) }
}

// WithBody sends a raw body with the given content type.
func WithBody(contentType string, body []byte) RequestOption {
	return func(r *request) {
		r.body = func() (io.Reader, string, error) {
			return bytes.NewReader(body), contentType, nil
		}
	}
}

// WithJSON marshals v as the request body.
func WithJSON(v any) RequestOption {
	return func(r *request) {
		r.body = func() (io.Reader, string, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return nil, "", errors.Wrap(err, "marshal json body")
			}
			return bytes.NewReader(b), "application/json", nil
		}
	}
}

// WithMultipartFile sends a multipart form with a single file field.
func WithMultipartFile(field, filename string, content []byte) RequestOption {
	return func(r *request) {
		r.body = func() (io.Reader, string, error) {
			buf := &bytes.Buffer{}
			mw := multipart.NewWriter(buf)
			fw, err := mw.CreateFormFile(field, filename)
			if err != nil {
				return nil, "", errors.Wrap(err, "create form file")
			}
			if _, err := fw.Write(content); err != nil {
				return nil, "", errors.Wrap(err, "write form file")
			}
			if err := mw.Close(); err != nil {
				return nil, "", errors.Wrap(err, "close multipart writer")
			}
			return buf, mw.FormDataContentType(), nil
		}
	}
}

// Call issues the request and normalizes the response into a Result.
func (c *Client) Call(ctx context.Context, path string, opts ...RequestOption) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	req := &request{method: http.MethodGet, headers: http.Header{}}
	for _, o := range opts {
		o(req)
	}

	start := time.Now()
	res, err := c.do(ctx, path, req)
	if err != nil {
		log.Warn().Err(err).Str("method", req.method).Str("path", path).Msg("backend request failed")
		return transportFailure(err)
	}
	defer func() { _ = res.Body.Close() }()

	out := Result{
		OK:         res.StatusCode >= 200 && res.StatusCode < 300,
		StatusCode: res.StatusCode,
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("backend response read failed")
		out.Data, out.Raw = fallback(map[string]any{"ok": false, "error": badJSONError})
		return out
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		out.Data, out.Raw = fallback(map[string]any{"ok": false, "error": badJSONError})
	} else {
		out.Data = data
		out.Raw = json.RawMessage(body)
	}

	log.Debug().
		Str("method", req.method).
		Str("path", path).
		Int("status", res.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("backend request")
	return out
}

func (c *Client) do(ctx context.Context, path string, req *request) (*http.Response, error) {
	var body io.Reader
	if req.body != nil {
		b, contentType, err := req.body()
		if err != nil {
			return nil, err
		}
		body = b
		if req.headers.Get("Content-Type") == "" && contentType != "" {
			req.headers.Set("Content-Type", contentType)
		}
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header = req.headers
	return c.http.Do(httpReq)
}

func transportFailure(err error) Result {
	data, raw := fallback(map[string]any{
		"ok":     false,
		"error":  transportError,
		"detail": err.Error(),
	})
	return Result{OK: false, Data: data, Raw: raw}
}

func fallback(m map[string]any) (any, json.RawMessage) {
	raw, _ := json.Marshal(m)
	return m, raw
}
