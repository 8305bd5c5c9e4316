package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sekiba/kifuroom/internal/httpapi"
	"github.com/sekiba/kifuroom/internal/sync"
	"github.com/sekiba/kifuroom/internal/wsconn"
	"github.com/sekiba/kifuroom/pkg/store"
	"github.com/sekiba/kifuroom/pkg/usi"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	hub := wsconn.NewHub()
	synchronizer := sync.New(ctx, hub, st, usi.Config{})
	return httpapi.New(st, hub, synchronizer)
}

func postJSON(t *testing.T, h http.Handler, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// TestHandleImportRejectsOversizedBody exercises spec §5's "HTTP import
// body capped (e.g., 2 MiB)": a body over the cap must fail with 413
// before any JSON decoding or parsing is attempted, per pkg/kifuerr's
// TooLarge kind.
func TestHandleImportRejectsOversizedBody(t *testing.T) {
	h := newTestServer(t)

	oversized := `{"text":"` + strings.Repeat("x", 3<<20) + `"}`
	rec := postJSON(t, h, "/api/import", []byte(oversized))

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	var resp struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Detail)
}

// TestHandleImportRejectsIllegalMove covers the other half of the same
// defect: syntactically well-formed USI text whose move is illegal
// against the position it is played from must come back as a 400 with a
// detail string, never a panic, per spec §6's documented /api/import
// error contract.
func TestHandleImportRejectsIllegalMove(t *testing.T) {
	h := newTestServer(t)

	req, err := json.Marshal(map[string]string{
		"text": "position startpos moves 9i9i",
	})
	require.NoError(t, err)

	rec := postJSON(t, h, "/api/import", req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Detail)
}

func TestHandleImportAcceptsLegalMoves(t *testing.T) {
	h := newTestServer(t)

	req, err := json.Marshal(map[string]string{
		"text": "position startpos moves 7g7f 3c3d",
	})
	require.NoError(t, err)

	rec := postJSON(t, h, "/api/import", req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Format string `json:"format"`
		GameID string `json:"game_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "usi", resp.Format)
	require.NotEmpty(t, resp.GameID)
}
