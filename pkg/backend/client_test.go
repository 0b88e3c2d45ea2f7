package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientCall_DecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, PathHealth, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","provider":"gemini","offline":true}`))
	}))
	defer srv.Close()

	res := NewClient(srv.URL).Health(context.Background())
	require.True(t, res.OK)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "gemini", FieldOrNil(res.Data, "provider"))
	require.Equal(t, "Provider: gemini • Offline: yes", DecodeHealth(res).Line())
}

func TestClientCall_BadJSONBecomesFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	res := NewClient(srv.URL).Call(context.Background(), "/anything")
	require.False(t, res.OK)
	require.Equal(t, http.StatusInternalServerError, res.StatusCode)
	require.Equal(t, map[string]any{"ok": false, "error": "bad json"}, res.Data)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(res.Raw, &raw))
	require.Equal(t, "bad json", raw["error"])
}

func TestClientCall_OKWithBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	res := NewClient(srv.URL).Call(context.Background(), "/empty")
	require.True(t, res.OK)
	require.Equal(t, "bad json", FieldOrNil(res.Data, "error"))
}

func TestClientCall_TransportErrorBecomesData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := NewClient(url).Call(context.Background(), PathHealth)
	require.False(t, res.OK)
	require.Equal(t, 0, res.StatusCode)
	require.Equal(t, "transport error", FieldOrNil(res.Data, "error"))
	require.NotEmpty(t, FieldOrNil(res.Data, "detail"))
}

func TestClientUpload_SendsMultipartFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, PathUpload, r.URL.Path)
		f, hdr, err := r.FormFile(UploadField)
		require.NoError(t, err)
		defer func() { _ = f.Close() }()
		b, err := io.ReadAll(f)
		require.NoError(t, err)
		require.Equal(t, "contract.yaml", hdr.Filename)
		require.Equal(t, "entities: {}", string(b))
		_, _ = w.Write([]byte(`{"ok":true,"contract":{"entities":{}}}`))
	}))
	defer srv.Close()

	res := NewClient(srv.URL).Upload(context.Background(), "contract.yaml", []byte("entities: {}"))
	reply := DecodeUpload(res)
	require.True(t, reply.OK)
	require.Equal(t, map[string]any{"entities": map[string]any{}}, reply.Contract)
}

func TestClientChat_OmitsEmptyTable(t *testing.T) {
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	c.Chat(context.Background(), ChatRequest{Text: "hi", Dataset: "prod"})
	c.Chat(context.Background(), ChatRequest{Text: "hi", Dataset: "prod", Table: "spans"})

	require.Len(t, bodies, 2)
	_, hasTable := bodies[0]["table"]
	require.False(t, hasTable)
	require.Equal(t, "spans", bodies[1]["table"])
}

func TestVerifyComparePath_EncodesParameters(t *testing.T) {
	require.Equal(t, "/verify/compare?dataset=prod&table=spans", VerifyComparePath("prod", "spans"))
	require.Equal(t, "/verify/compare?dataset=my%20data%26x&table=a%2Fb%3Dc", VerifyComparePath("my data&x", "a/b=c"))
}

func TestClientVerifyCompare_ServerSeesDecodedValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "sales eu", r.URL.Query().Get("dataset"))
		require.Equal(t, "orders&items", r.URL.Query().Get("table"))
		_, _ = w.Write([]byte(`{"status":"match"}`))
	}))
	defer srv.Close()

	res := NewClient(srv.URL).VerifyCompare(context.Background(), "sales eu", "orders&items")
	require.True(t, DecodeVerify(res).Recognized)
}

func TestVerifyPath(t *testing.T) {
	require.Equal(t, "/verify", VerifyPath(""))
	require.Equal(t, "/verify?dataset=sales%20eu", VerifyPath("sales eu"))
}

func TestClientVerifyAndDraft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PathVerify:
			require.Equal(t, http.MethodGet, r.Method)
			require.Equal(t, "prod", r.URL.Query().Get("dataset"))
			_, _ = w.Write([]byte(`{"status":"ok","message":"Connected"}`))
		case PathDraft:
			require.Equal(t, http.MethodPost, r.Method)
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, map[string]any{"nl_query": "count spans", "dataset": "prod"}, body)
			_, _ = w.Write([]byte(`{"status":"draft","sql":"SELECT 1","policy_ok":true,"violations":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	v := DecodeVerifyDataset(c.Verify(context.Background(), "prod"))
	require.True(t, v.Recognized)
	require.Equal(t, VerifyDatasetIntent, v.Tagged()["intent"])

	d := DecodeDraft(c.Draft(context.Background(), DraftRequest{NLQuery: "count spans", Dataset: "prod"}))
	require.False(t, d.Failed)
	require.Equal(t, "draft", d.Status)
	require.Equal(t, "SELECT 1", d.Result.SQL)
	require.False(t, d.Result.HasViolations())
}
