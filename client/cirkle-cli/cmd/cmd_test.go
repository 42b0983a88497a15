package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   map[string]string
}

func fakeServer(t *testing.T, status int, response string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
		if r.ContentLength > 0 {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		calls = append(calls, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGroupSync(t *testing.T) {
	srv, calls := fakeServer(t, http.StatusOK, `{
		"synced": true,
		"group": {"id": "g1", "name": "Algorithms", "resources": {"documents": [{"id": "d1", "name": "Week 1"}]}}
	}`)

	out, err := run(t, "group", "sync", "g1", "--server", srv.URL, "--token", "jwt")
	require.NoError(t, err)

	require.Len(t, *calls, 1)
	assert.Equal(t, http.MethodPost, (*calls)[0].method)
	assert.Equal(t, "/api/v1/groups/g1/sync", (*calls)[0].path)
	assert.Equal(t, "Bearer jwt", (*calls)[0].auth)
	assert.Contains(t, out, "Resource names updated.")
	assert.Contains(t, out, "Week 1")
}

func TestDriveRename(t *testing.T) {
	srv, calls := fakeServer(t, http.StatusOK, `{"file_id": "d1", "name": "Week 2"}`)

	out, err := run(t, "drive", "rename", "--server", srv.URL, "--token", "jwt",
		"--group", "g1", "--kind", "documents", "--id", "d1", "--name", "Week 2")
	require.NoError(t, err)

	require.Len(t, *calls, 1)
	assert.Equal(t, "/api/v1/drive/rename", (*calls)[0].path)
	assert.Equal(t, map[string]string{
		"group_id": "g1", "kind": "documents", "file_id": "d1", "new_name": "Week 2",
	}, (*calls)[0].body)
	assert.Contains(t, out, `Renamed d1 to "Week 2"`)
}

func TestServerErrorIsReported(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusForbidden, `{"error": "drive permission denied"}`)

	_, err := run(t, "drive", "delete", "--server", srv.URL, "--token", "jwt", "--id", "f1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "drive permission denied")
}

func TestMissingToken(t *testing.T) {
	_, err := run(t, "group", "get", "g1", "--server", "http://127.0.0.1:1", "--token", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token")
}

func TestWSURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080/ws/subscribe?token=t", newAPIClient("http://localhost:8080/", "t").wsURL("/ws/subscribe"))
	assert.Equal(t, "wss://cirkle.app/ws/subscribe?token=t", newAPIClient("https://cirkle.app", "t").wsURL("/ws/subscribe"))
}
