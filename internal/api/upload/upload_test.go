package upload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/elastic-io/ferry/internal/backend"
	"github.com/elastic-io/ferry/internal/backend/local"
	"github.com/elastic-io/ferry/internal/config"
	"github.com/elastic-io/ferry/internal/log"
	"github.com/elastic-io/ferry/internal/store"
	_ "github.com/elastic-io/ferry/internal/store/bolt"
	"github.com/elastic-io/ferry/internal/types"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAPI(t *testing.T) (*fiber.App, func()) {
	log.Init("", "debug")
	tempDir, err := ioutil.TempDir("", "upload_api_test_*")
	require.NoError(t, err)

	st, err := store.NewSessionStore("bolt", filepath.Join(tempDir, "sessions.db"))
	require.NoError(t, err)

	be, err := local.NewLocalBackend(backend.Options{
		Dir:           filepath.Join(tempDir, "objects"),
		SigningSecret: "test-secret",
		Expiry:        time.Hour,
	})
	require.NoError(t, err)

	c := &config.Config{
		PresignExpiry: time.Hour,
		SigningSecret: "test-secret",
		Store:         st,
		Backend:       be,
	}

	a := &UploadAPI{name: "upload"}
	a.Init(c)

	app := fiber.New()
	a.RegisterRoutes(app)

	return app, func() {
		st.Close()
		os.RemoveAll(tempDir)
	}
}

func initiate(t *testing.T, app *fiber.App, body string) *types.InitiateResult {
	req := httptest.NewRequest("POST", "/v1/uploads", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var res types.InitiateResult
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &res))
	return &res
}

func TestInitiateEndpoint(t *testing.T) {
	app, cleanup := setupAPI(t)
	defer cleanup()

	res := initiate(t, app, `{"fileId":"file-1","objectName":"data.bin","totalParts":2}`)
	assert.NotEmpty(t, res.SessionID)
	assert.Len(t, res.Parts, 2)

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/uploads", strings.NewReader("{not json"))
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing file id", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/uploads", strings.NewReader(`{"totalParts":1}`))
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestUploadFlowOverHTTP(t *testing.T) {
	app, cleanup := setupAPI(t)
	defer cleanup()

	res := initiate(t, app, `{"fileId":"file-2","objectName":"data.bin","totalParts":2}`)

	var tags [2]string
	for i, part := range res.Parts {
		content := strings.Repeat(string(rune('A'+i)), 4)
		req := httptest.NewRequest("PUT", part.AccessURL, strings.NewReader(content))
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var out struct {
			IntegrityTag string `json:"integrityTag"`
		}
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &out))
		tags[i] = out.IntegrityTag
	}

	body, err := json.Marshal(map[string]interface{}{
		"parts": []types.CompletedPart{
			{PartNumber: 1, IntegrityTag: tags[0]},
			{PartNumber: 2, IntegrityTag: tags[1]},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", fmt.Sprintf("/v1/uploads/%s/complete", res.SessionID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	t.Run("status shows completed", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/uploads/"+res.SessionID, nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"status":"COMPLETED"`)
	})

	t.Run("object url resolves", func(t *testing.T) {
		req := httptest.NewRequest("GET", fmt.Sprintf("/v1/uploads/%s/url", res.SessionID), nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(data), "file://")
	})

	t.Run("second complete conflicts", func(t *testing.T) {
		req := httptest.NewRequest("POST", fmt.Sprintf("/v1/uploads/%s/complete", res.SessionID), bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	})
}

func TestUploadPartTokenChecks(t *testing.T) {
	app, cleanup := setupAPI(t)
	defer cleanup()

	res := initiate(t, app, `{"fileId":"file-3","objectName":"data.bin","totalParts":2}`)

	t.Run("missing token", func(t *testing.T) {
		url := fmt.Sprintf("/v1/uploads/%s/parts/1", res.SessionID)
		req := httptest.NewRequest("PUT", url, strings.NewReader("data"))
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("token for another part", func(t *testing.T) {
		// part 2's token used against part 1
		tok := res.Parts[1].AccessURL[strings.Index(res.Parts[1].AccessURL, "token=")+len("token="):]
		url := fmt.Sprintf("/v1/uploads/%s/parts/1?token=%s", res.SessionID, tok)
		req := httptest.NewRequest("PUT", url, strings.NewReader("data"))
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("non numeric part", func(t *testing.T) {
		url := fmt.Sprintf("/v1/uploads/%s/parts/abc", res.SessionID)
		req := httptest.NewRequest("PUT", url, strings.NewReader("data"))
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestAbortEndpoint(t *testing.T) {
	app, cleanup := setupAPI(t)
	defer cleanup()

	res := initiate(t, app, `{"fileId":"file-4","objectName":"data.bin","totalParts":1}`)

	req := httptest.NewRequest("DELETE", "/v1/uploads/"+res.SessionID, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	t.Run("status shows aborted", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/uploads/"+res.SessionID, nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"status":"ABORTED"`)
	})

	t.Run("unknown session", func(t *testing.T) {
		req := httptest.NewRequest("DELETE", "/v1/uploads/no-such-session", nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})
}
