package so_sim

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

var testPNG = []byte("\x89PNG\r\n\x1a\nfake image bytes")

func newTestStore(t *testing.T) *CaptureStore {
	t.Helper()
	store, err := NewCaptureStore(t.TempDir(), logging.NewTestLogger(t))
	require.NoError(t, err)
	return store
}

func TestCaptureStoreSaveAndGet(t *testing.T) {
	store := newTestStore(t)

	status := SimStatus{
		Scene:      "table",
		HeldObject: "cube",
		Joints:     map[string]float64{"gripper": 0.1},
	}
	saved, err := store.Save(testPNG, status)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "table", saved.Scene)
	assert.Equal(t, "cube", saved.Held)

	got, err := store.Get(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, 0.1, got.Joints["gripper"])

	raw, err := store.RawImage(got)
	require.NoError(t, err)
	assert.Equal(t, testPNG, raw)

	_, err = store.Get("nonexistent")
	assert.Error(t, err)
}

func TestCaptureStoreList(t *testing.T) {
	store := newTestStore(t)

	first, err := store.Save(testPNG, SimStatus{Scene: "table"})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	second, err := store.Save(testPNG, SimStatus{Scene: "lunar"})
	require.NoError(t, err)

	caps, err := store.List()
	require.NoError(t, err)
	require.Len(t, caps, 2)
	// newest first
	assert.Equal(t, second.ID, caps[0].ID)
	assert.Equal(t, first.ID, caps[1].ID)
}

func TestCaptureStoreAttachStylized(t *testing.T) {
	store := newTestStore(t)

	saved, err := store.Save(testPNG, SimStatus{Scene: "table"})
	require.NoError(t, err)

	styled := []byte("stylized bytes")
	got, err := store.AttachStylized(saved.ID, styled, "lunar surface")
	require.NoError(t, err)
	assert.Equal(t, saved.ID+".styled.png", got.StylizedFile)
	assert.Equal(t, "lunar surface", got.Style)

	// metadata round-trips through disk
	again, err := store.Get(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, got.StylizedFile, again.StylizedFile)

	_, err = store.AttachStylized("nonexistent", styled, "x")
	assert.Error(t, err)
}

func TestGenerator(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("success", func(t *testing.T) {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			var req generateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "ghibli", req.Style)

			writeJSON(w, generateResponse{
				Image: base64.StdEncoding.EncodeToString([]byte("styled:" + req.Style)),
			})
		}))
		defer srv.Close()

		g := NewGenerator(GenerationConfig{
			URL: srv.URL, APIKey: "sekrit", Style: "ghibli", Timeout: time.Second,
		}, logger)

		img, err := g.Generate(context.Background(), testPNG)
		require.NoError(t, err)
		assert.Equal(t, []byte("styled:ghibli"), img)
		assert.Equal(t, "Bearer sekrit", gotAuth)
	})

	t.Run("api error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		g := NewGenerator(GenerationConfig{URL: srv.URL, Timeout: time.Second}, logger)
		_, err := g.Generate(context.Background(), testPNG)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "quota exceeded")
	})

	t.Run("api error field", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, generateResponse{Error: "unsupported style"})
		}))
		defer srv.Close()

		g := NewGenerator(GenerationConfig{URL: srv.URL, Timeout: time.Second}, logger)
		_, err := g.Generate(context.Background(), testPNG)
		assert.Error(t, err)
	})

	t.Run("unconfigured", func(t *testing.T) {
		g := NewGenerator(GenerationConfig{}, logger)
		_, err := g.Generate(context.Background(), testPNG)
		assert.Error(t, err)
	})
}

func newTestCaptureServer(t *testing.T, genURL string) (*CaptureServer, *Sim) {
	t.Helper()
	logger := logging.NewTestLogger(t)
	s := newTestSim(t)
	store, err := NewCaptureStore(t.TempDir(), logger)
	require.NoError(t, err)
	gen := NewGenerator(GenerationConfig{URL: genURL, Style: "lunar", Timeout: time.Second}, logger)
	return NewCaptureServer(s, store, gen, logger), s
}

func TestCaptureAPI(t *testing.T) {
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, generateResponse{Image: base64.StdEncoding.EncodeToString([]byte("styled"))})
	}))
	defer stub.Close()

	api, sim := newTestCaptureServer(t, stub.URL)
	srv := httptest.NewServer(api.ServeMux())
	defer srv.Close()

	t.Run("state", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/state")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var st SimStatus
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
		assert.Equal(t, "table", st.Scene)
	})

	var captureID string
	t.Run("create capture", func(t *testing.T) {
		body, _ := json.Marshal(map[string]string{
			"image": base64.StdEncoding.EncodeToString(testPNG),
		})
		resp, err := http.Post(srv.URL+"/api/captures", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var c Capture
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&c))
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, "table", c.Scene)
		captureID = c.ID
	})

	t.Run("create capture bad image", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/captures", "application/json",
			bytes.NewReader([]byte(`{"image": "!!!not base64!!!"}`)))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("list captures", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/captures")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var caps []Capture
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&caps))
		assert.Len(t, caps, 1)
	})

	t.Run("get capture", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/captures/" + captureID)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp2, err := http.Get(srv.URL + "/api/captures/nonexistent")
		require.NoError(t, err)
		resp2.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
	})

	t.Run("generate", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/captures/"+captureID+"/generate", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var c Capture
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&c))
		assert.NotEmpty(t, c.StylizedFile)
		assert.Equal(t, "lunar", c.Style)
	})

	t.Run("generate unknown id", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/captures/nonexistent/generate", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("switch scene", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/scene", "application/json",
			bytes.NewReader([]byte(`{"scene": "lunar"}`)))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "lunar", sim.Status().Scene)

		resp2, err := http.Post(srv.URL+"/api/scene", "application/json",
			bytes.NewReader([]byte(`{"scene": "warehouse"}`)))
		require.NoError(t, err)
		resp2.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
	})

	t.Run("list scenes", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/scene")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			Scenes []string `json:"scenes"`
			Active string   `json:"active"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Contains(t, out.Scenes, "table")
		assert.Contains(t, out.Scenes, "cat_car")
		assert.Equal(t, "lunar", out.Active)
	})

	t.Run("reset scene", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/scene/reset", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("method not allowed", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/scene/reset")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}
