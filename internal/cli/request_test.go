package cli

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRequest_GetWithPlaceholders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gophers & co", r.URL.Query().Get("q"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, []string{"a", "b"}, r.URL.Query()["tag"])
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		assert.Equal(t, "ws-cli/2", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"name":"ws"}]}`))
	}))
	defer server.Close()

	stdout, _, err := run(t,
		"--user-agent", "ws-cli/2",
		"get", server.URL+"/search?q=%s&page=%s", "gophers & co", "2",
		"-H", "Accept: application/json",
		"-p", "tag=a", "-p", "tag=b",
		"--no-color",
	)
	require.NoError(t, err)

	assert.Contains(t, stdout, "RESPONSE: 200 OK")
	assert.Contains(t, stdout, `"name": "ws"`)
}

func TestRequest_PostForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Ada", r.PostForm.Get("name"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	stdout, _, err := run(t, "post", server.URL, "-p", "name=Ada", "--no-color")
	require.NoError(t, err)
	assert.Contains(t, stdout, "201 Created")
}

func TestRequest_PutJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"id":1}`, string(body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	_, _, err := run(t, "put", server.URL, "--json", `{"id":1}`)
	require.NoError(t, err)
}

func TestRequest_PatchMultipart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Len(t, r.MultipartForm.File["upload"], 1)
		assert.Equal(t, "data.csv", r.MultipartForm.File["upload"][0].Filename)
		assert.Equal(t, []string{"csv"}, r.MultipartForm.Value["kind"])
	}))
	defer server.Close()

	_, _, err := run(t, "patch", server.URL, "-F", "upload="+path, "-p", "kind=csv")
	require.NoError(t, err)
}

func TestRequest_FilesRejectedForGet(t *testing.T) {
	_, _, err := run(t, "get", "http://127.0.0.1:1", "-F", "x.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "files can only be sent")
}

func TestRequest_Extract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"id":42}]}`))
	}))
	defer server.Close()

	stdout, _, err := run(t, "get", server.URL, "--extract", "$.items[0].id")
	require.NoError(t, err)
	assert.Equal(t, "42\n", stdout)

	_, _, err = run(t, "get", server.URL, "--extract", "$.missing")
	assert.Error(t, err)
}

func TestRequest_XML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<feed><entry>one</entry></feed>`))
	}))
	defer server.Close()

	stdout, _, err := run(t, "get", server.URL, "--xml")
	require.NoError(t, err)
	assert.Contains(t, stdout, "<feed>\n  <entry>one</entry>\n</feed>")
}

func TestRequest_Schema(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"not a number"}`))
	}))
	defer server.Close()

	schema := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(schema, []byte(`{"type":"object","properties":{"id":{"type":"integer"}}}`), 0o644))

	_, _, err := run(t, "get", server.URL, "--schema", schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match schema")

	ok := filepath.Join(t.TempDir(), "ok.json")
	require.NoError(t, os.WriteFile(ok, []byte(`{"type":"object"}`), 0o644))
	_, stderr, err := run(t, "get", server.URL, "--schema", ok, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, stderr, "✓ response matches")
}

func TestRequest_OutputFormats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	stdout, _, err := run(t, "get", server.URL, "-o", "json")
	require.NoError(t, err)
	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &data))
	assert.Equal(t, float64(200), data["statusCode"])

	stdout, _, err = run(t, "get", server.URL, "-o", "yaml")
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &data))
	assert.Equal(t, 200, data["statusCode"])

	_, _, err = run(t, "get", server.URL, "-o", "junit")
	assert.Error(t, err)
}

func TestRequest_Verbose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Served-By", "test")
	}))
	defer server.Close()

	stdout, _, err := run(t, "delete", server.URL, "-v", "--no-color", "-H", "X-Trace: 1")
	require.NoError(t, err)

	assert.Contains(t, stdout, "REQUEST: DELETE "+server.URL)
	assert.Contains(t, stdout, "X-Trace: 1")
	assert.Contains(t, stdout, "X-Request-Id:")
	assert.Contains(t, stdout, "X-Served-By: test")
}

func TestRequest_BasicAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "alice" || pass != "secret" {
			w.Header().Set("WWW-Authenticate", `Basic realm="test"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("hello alice"))
	}))
	defer server.Close()

	stdout, _, err := run(t, "get", server.URL, "-u", "alice:secret", "--no-color")
	require.NoError(t, err)
	assert.Contains(t, stdout, "hello alice")

	_, _, err = run(t, "get", server.URL, "-u", "alice", "--fail")
	assert.Error(t, err)
}

func TestRequest_Fail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTeapot)
	}))
	defer server.Close()

	_, _, err := run(t, "get", server.URL)
	require.NoError(t, err)

	_, _, err = run(t, "get", server.URL, "--fail")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "418"))
}

func TestRequest_HeadAndOptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", "GET, HEAD, OPTIONS")
		w.Header().Set("X-Method", r.Method)
	}))
	defer server.Close()

	for _, verb := range []string{"head", "options", "trace"} {
		stdout, _, err := run(t, verb, server.URL, "-v", "--no-color")
		require.NoError(t, err)
		assert.Contains(t, stdout, "X-Method: "+strings.ToUpper(verb))
	}
}

func TestRequest_ConfigFileHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "from-file", r.Header.Get("X-Api-Key"))
	}))
	defer server.Close()

	cfg := filepath.Join(t.TempDir(), "ws.json")
	require.NoError(t, os.WriteFile(cfg, []byte(`{"headers":{"X-Api-Key":"from-file"}}`), 0o644))

	_, _, err := run(t, "--config", cfg, "get", server.URL)
	require.NoError(t, err)
}

func TestRequest_StalledBodyFails(t *testing.T) {
	stalled := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte("hello world"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-stalled:
		}
	}))
	defer server.Close()
	defer close(stalled)

	for _, format := range []string{"text", "json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			stdout, _, err := run(t, "--timeout", "150ms", "get", server.URL, "-o", format, "--no-color")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "error reading response body")
			assert.Empty(t, stdout)
		})
	}
}

func TestRequest_EmptyDataIsABody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, _, err := run(t, "post", server.URL, "-d", "", "-p", "a=1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parameters AND body")

	_, _, err = run(t, "post", server.URL, "-d", "")
	require.NoError(t, err)
}
