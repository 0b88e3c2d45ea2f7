package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

const (
	PathHealth           = "/health"
	PathUpload           = "/upload"
	PathVerify           = "/verify"
	PathVerifyCompare    = "/verify/compare"
	PathChat             = "/chat"
	PathContractActivate = "/contract/activate"
	PathContractActive   = "/contract/active"
	PathDraft            = "/ask/draft"
	PathExecute          = "/ask/execute"
	PathSettings         = "/settings"
	PathCatalog          = "/catalog"

	UploadField = "file"
)

// Backend is the set of SmartSQL endpoints the client consumes.
type Backend interface {
	Health(ctx context.Context) Result
	Upload(ctx context.Context, filename string, content []byte) Result
	Verify(ctx context.Context, dataset string) Result
	VerifyCompare(ctx context.Context, dataset, table string) Result
	Chat(ctx context.Context, req ChatRequest) Result
	ActivateContract(ctx context.Context, contract json.RawMessage) Result
	ActiveContract(ctx context.Context) Result
	Draft(ctx context.Context, req DraftRequest) Result
	Execute(ctx context.Context, req ExecuteRequest) Result
	GetSettings(ctx context.Context) Result
	SetSettings(ctx context.Context, doc map[string]any) Result
	GetCatalog(ctx context.Context) Result
	SetCatalog(ctx context.Context, doc map[string]any) Result
}

var _ Backend = &Client{}

// ChatRequest is the /chat body. Table is omitted when empty.
type ChatRequest struct {
	Text    string `json:"text"`
	Dataset string `json:"dataset"`
	Table   string `json:"table,omitempty"`
}

// DraftRequest is the /ask/draft body.
type DraftRequest struct {
	NLQuery string `json:"nl_query"`
	Dataset string `json:"dataset"`
}

type ExecuteRequest struct {
	SQL     string `json:"sql"`
	Dataset string `json:"dataset"`
	Confirm bool   `json:"confirm"`
}

func (c *Client) Health(ctx context.Context) Result {
	return c.Call(ctx, PathHealth)
}

func (c *Client) Upload(ctx context.Context, filename string, content []byte) Result {
	return c.Call(ctx, PathUpload,
		WithMethod(http.MethodPost),
		WithMultipartFile(UploadField, filename, content),
	)
}

// Verify checks warehouse connectivity and, when dataset is set, that the
// dataset exists.
func (c *Client) Verify(ctx context.Context, dataset string) Result {
	return c.Call(ctx, VerifyPath(dataset))
}

func (c *Client) VerifyCompare(ctx context.Context, dataset, table string) Result {
	return c.Call(ctx, VerifyComparePath(dataset, table))
}

func (c *Client) Chat(ctx context.Context, req ChatRequest) Result {
	return c.Call(ctx, PathChat, WithMethod(http.MethodPost), WithJSON(req))
}

func (c *Client) ActivateContract(ctx context.Context, contract json.RawMessage) Result {
	return c.Call(ctx, PathContractActivate,
		WithMethod(http.MethodPost),
		WithBody("application/json", contract),
	)
}

func (c *Client) ActiveContract(ctx context.Context) Result {
	return c.Call(ctx, PathContractActive)
}

func (c *Client) Draft(ctx context.Context, req DraftRequest) Result {
	return c.Call(ctx, PathDraft, WithMethod(http.MethodPost), WithJSON(req))
}

func (c *Client) Execute(ctx context.Context, req ExecuteRequest) Result {
	return c.Call(ctx, PathExecute, WithMethod(http.MethodPost), WithJSON(req))
}

func (c *Client) GetSettings(ctx context.Context) Result {
	return c.Call(ctx, PathSettings)
}

func (c *Client) SetSettings(ctx context.Context, doc map[string]any) Result {
	return c.Call(ctx, PathSettings, WithMethod(http.MethodPost), WithJSON(doc))
}

func (c *Client) GetCatalog(ctx context.Context) Result {
	return c.Call(ctx, PathCatalog)
}

func (c *Client) SetCatalog(ctx context.Context, doc map[string]any) Result {
	return c.Call(ctx, PathCatalog, WithMethod(http.MethodPost), WithJSON(doc))
}

func VerifyPath(dataset string) string {
	if dataset == "" {
		return PathVerify
	}
	return PathVerify + "?dataset=" + EncodeURIComponent(dataset)
}

// VerifyComparePath builds the compare path with both parameters escaped.
func VerifyComparePath(dataset, table string) string {
	return PathVerifyCompare + "?dataset=" + EncodeURIComponent(dataset) + "&table=" + EncodeURIComponent(table)
}

// EncodeURIComponent escapes s for use as a query value, spaces as %20.
func EncodeURIComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
