package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/talkroom/talkroom-server/internal/auth"
	"github.com/talkroom/talkroom-server/internal/chat"
	"github.com/talkroom/talkroom-server/internal/config"
	"github.com/talkroom/talkroom-server/internal/store"
	"github.com/talkroom/talkroom-server/internal/store/sqlite"
	"github.com/talkroom/talkroom-server/internal/upload"
)

// testEnv runs the full HTTP surface against a throwaway database.
type testEnv struct {
	ts      *httptest.Server
	store   *sqlite.SQLiteStore
	auth    *auth.Service
	gateway *chat.Gateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	st, err := sqlite.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := zerolog.Nop()
	cfg := config.Default()
	cfg.UploadDir = filepath.Join(dir, "uploads")

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})
	uploads, err := upload.NewService(cfg.UploadDir, cfg.UploadBaseURL, &logger)
	require.NoError(t, err)
	gateway := chat.NewGateway(st, authService, &logger)

	server := NewServer(gateway, authService, st, uploads, cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: st, auth: authService, gateway: gateway}
}

// register creates a user directly through the auth service and returns
// a valid session token alongside the stored profile.
func (e *testEnv) register(t *testing.T, username string) (string, *store.User) {
	t.Helper()
	token, user, err := e.auth.Register(context.Background(), username, username+"@example.com", "secret123")
	require.NoError(t, err)
	return token, user
}

// doJSON issues a request with an optional JSON body and bearer token.
func (e *testEnv) doJSON(t *testing.T, method, path, token string, body any) *stdhttp.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := stdhttp.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *stdhttp.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}
