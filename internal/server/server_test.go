package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/snapcache/cache"
	"github.com/IvanBrykalov/snapcache/snapshot"
)

func newTestServer(t *testing.T, maxSize int) (*httptest.Server, *snapshot.Memory) {
	t.Helper()
	tgt := &snapshot.Memory{}
	c, err := cache.New[json.RawMessage](cache.Options[json.RawMessage]{MaxSize: maxSize, Snapshot: tgt})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	srv := httptest.NewServer(New(c, nil, metrics))
	t.Cleanup(srv.Close)
	return srv, tgt
}

func do(t *testing.T, method, url, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func TestServer_KeyLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, 4)
	u := srv.URL + "/v1/keys/"

	resp, _ := do(t, http.MethodPut, u+"a", `{"n":1}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := do(t, http.MethodGet, u+"a", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"n":1}`, body)

	resp, _ = do(t, http.MethodHead, u+"a", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, u+"a", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, u+"a", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodHead, u+"a", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, u+"a", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_RejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t, 4)

	resp, _ := do(t, http.MethodPut, srv.URL+"/v1/keys/a", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, srv.URL+"/v1/keys/a?ttl=soon", `1`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, srv.URL+"/v1/snapshot", `garbage`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_KeysSizeClearAndEviction(t *testing.T) {
	srv, _ := newTestServer(t, 2)

	for _, k := range []string{"a", "b", "c"} {
		resp, _ := do(t, http.MethodPut, srv.URL+"/v1/keys/"+k+"?ttl=none", `"`+k+`"`)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
	}

	_, body := do(t, http.MethodGet, srv.URL+"/v1/keys", "")
	assert.JSONEq(t, `{"keys":["c","b"]}`, body)

	_, body = do(t, http.MethodGet, srv.URL+"/v1/size", "")
	assert.JSONEq(t, `{"size":2}`, body)

	resp, _ := do(t, http.MethodDelete, srv.URL+"/v1/keys", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, body = do(t, http.MethodGet, srv.URL+"/v1/keys", "")
	assert.JSONEq(t, `{"keys":[]}`, body)
}

func TestServer_SnapshotExportImport(t *testing.T) {
	srv, tgt := newTestServer(t, 4)

	do(t, http.MethodPut, srv.URL+"/v1/keys/x", `1`)
	do(t, http.MethodPut, srv.URL+"/v1/keys/y", `2`)

	resp, exported := do(t, http.MethodGet, srv.URL+"/v1/snapshot", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc, err := snapshot.Decode([]byte(exported))
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x"}, doc.LRUOrder)

	do(t, http.MethodDelete, srv.URL+"/v1/keys", "")
	resp, _ = do(t, http.MethodPut, srv.URL+"/v1/snapshot", exported)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, body := do(t, http.MethodGet, srv.URL+"/v1/keys", "")
	assert.JSONEq(t, `{"keys":["y","x"]}`, body)

	// Every mutation reached the snapshot target.
	persisted, err := tgt.Read()
	require.NoError(t, err)
	doc, err = snapshot.Decode(persisted)
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x"}, doc.LRUOrder)
}

func TestServer_Metrics(t *testing.T) {
	srv, _ := newTestServer(t, 1)
	resp, body := do(t, http.MethodGet, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)
}

func TestParseTTL(t *testing.T) {
	d, err := parseTTL("none")
	require.NoError(t, err)
	assert.Equal(t, cache.NoExpiration, d)

	_, err = parseTTL("-1s")
	assert.Error(t, err)
}

// A client trickling an import body must not hold up other requests.
func TestServer_SlowImportDoesNotBlockReads(t *testing.T) {
	srv, _ := newTestServer(t, 4)

	pr, pw := io.Pipe()
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/v1/snapshot", pr)
	require.NoError(t, err)

	done := make(chan int, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			done <- 0
			return
		}
		_ = resp.Body.Close()
		done <- resp.StatusCode
	}()

	_, err = pw.Write([]byte(`{"entries":[`))
	require.NoError(t, err)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(srv.URL + "/v1/size")
	require.NoError(t, err, "size must answer while an import body is pending")
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = pw.Write([]byte(`],"lruOrder":[]}`))
	require.NoError(t, err)
	require.NoError(t, pw.Close())
	assert.Equal(t, http.StatusNoContent, <-done)
}

func TestServer_ImportTooLarge(t *testing.T) {
	c, err := cache.New[json.RawMessage](cache.Options[json.RawMessage]{MaxSize: 1})
	require.NoError(t, err)
	h := New(c, nil, nil)

	body := strings.NewReader(`{"entries":[` + strings.Repeat(" ", maxBody) + `],"lruOrder":[]}`)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/v1/snapshot", body))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
