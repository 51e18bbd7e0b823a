package so_sim

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.viam.com/rdk/logging"
)

// Capture is one stored camera frame plus its metadata. Stylized is set
// once the external image-generation API has produced the paired image.
type Capture struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Scene     string    `json:"scene"`
	Held      string    `json:"held_object,omitempty"`

	Joints map[string]float64 `json:"joints"`

	RawFile      string `json:"raw_file"`
	StylizedFile string `json:"stylized_file,omitempty"`
	Style        string `json:"style,omitempty"`
}

// CaptureStore persists raw/stylized image pairs and their metadata on disk:
// <id>.png, <id>.styled.png, <id>.json under a single directory.
type CaptureStore struct {
	dir    string
	logger logging.Logger

	mu sync.Mutex
}

func NewCaptureStore(dir string, logger logging.Logger) (*CaptureStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create capture dir: %w", err)
	}
	return &CaptureStore{dir: dir, logger: logger}, nil
}

// Save writes the raw image and its metadata, returning the new capture.
func (s *CaptureStore) Save(raw []byte, status SimStatus) (Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := Capture{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Scene:     status.Scene,
		Held:      status.HeldObject,
		Joints:    status.Joints,
	}
	c.RawFile = c.ID + ".png"

	if err := os.WriteFile(filepath.Join(s.dir, c.RawFile), raw, 0o644); err != nil {
		return Capture{}, fmt.Errorf("failed to write capture image: %w", err)
	}
	if err := s.writeMeta(c); err != nil {
		return Capture{}, err
	}
	s.logger.Debugf("saved capture %s (%d bytes, scene %s)", c.ID, len(raw), c.Scene)
	return c, nil
}

// Get loads one capture's metadata by id.
func (s *CaptureStore) Get(id string) (Capture, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		return Capture{}, fmt.Errorf("capture %s not found: %w", id, err)
	}
	var c Capture
	if err := json.Unmarshal(data, &c); err != nil {
		return Capture{}, fmt.Errorf("capture %s metadata corrupt: %w", id, err)
	}
	return c, nil
}

// RawImage loads the raw image bytes for a capture.
func (s *CaptureStore) RawImage(c Capture) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.dir, c.RawFile))
}

// List returns all captures, newest first.
func (s *CaptureStore) List() ([]Capture, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture dir: %w", err)
	}
	var caps []Capture
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".json")]
		c, err := s.Get(id)
		if err != nil {
			s.logger.Warnf("skipping unreadable capture %s: %v", id, err)
			continue
		}
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i].CreatedAt.After(caps[j].CreatedAt) })
	return caps, nil
}

// AttachStylized stores the generated counterpart image for a capture.
func (s *CaptureStore) AttachStylized(id string, img []byte, style string) (Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.Get(id)
	if err != nil {
		return Capture{}, err
	}
	c.StylizedFile = c.ID + ".styled.png"
	c.Style = style
	if err := os.WriteFile(filepath.Join(s.dir, c.StylizedFile), img, 0o644); err != nil {
		return Capture{}, fmt.Errorf("failed to write stylized image: %w", err)
	}
	if err := s.writeMeta(c); err != nil {
		return Capture{}, err
	}
	return c, nil
}

func (s *CaptureStore) writeMeta(c Capture) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal capture metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, c.ID+".json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write capture metadata: %w", err)
	}
	return nil
}

// Generator calls the external image-generation API to stylize a capture.
type Generator struct {
	cfg    GenerationConfig
	client *http.Client
	logger logging.Logger
}

func NewGenerator(cfg GenerationConfig, logger logging.Logger) *Generator {
	return &Generator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type generateRequest struct {
	Image string `json:"image"`
	Style string `json:"style,omitempty"`
}

type generateResponse struct {
	Image string `json:"image"`
	Error string `json:"error,omitempty"`
}

// Generate submits the raw image and returns the stylized counterpart.
func (g *Generator) Generate(ctx context.Context, raw []byte) ([]byte, error) {
	if g.cfg.URL == "" {
		return nil, fmt.Errorf("no generation API configured")
	}

	body, err := json.Marshal(generateRequest{
		Image: base64.StdEncoding.EncodeToString(raw),
		Style: g.cfg.Style,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read generation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generation API returned %d: %s", resp.StatusCode, data)
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse generation response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("generation API error: %s", out.Error)
	}
	img, err := base64.StdEncoding.DecodeString(out.Image)
	if err != nil {
		return nil, fmt.Errorf("generation API returned invalid image data: %w", err)
	}
	return img, nil
}

// CaptureServer exposes the capture/dataset API and the scene controls.
type CaptureServer struct {
	sim    *Sim
	store  *CaptureStore
	gen    *Generator
	logger logging.Logger
}

func NewCaptureServer(sim *Sim, store *CaptureStore, gen *Generator, logger logging.Logger) *CaptureServer {
	return &CaptureServer{sim: sim, store: store, gen: gen, logger: logger}
}

// ServeMux routes the HTTP API.
func (s *CaptureServer) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.stateHandler)
	mux.HandleFunc("/api/scene", s.sceneHandler)
	mux.HandleFunc("/api/scene/reset", s.resetHandler)
	mux.HandleFunc("/api/captures", s.capturesHandler)
	mux.HandleFunc("/api/captures/", s.captureHandler)
	return mux
}

func (s *CaptureServer) stateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.sim.Status())
}

func (s *CaptureServer) sceneHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		names := []string{}
		for _, spec := range BuiltinScenes() {
			names = append(names, spec.Name)
		}
		writeJSON(w, map[string]interface{}{"scenes": names, "active": s.sim.Status().Scene})
	case http.MethodPost:
		var req struct {
			Scene string `json:"scene"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.sim.SwitchScene(req.Scene); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, s.sim.Status())
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *CaptureServer) resetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.sim.ResetScene()
	writeJSON(w, s.sim.Status())
}

func (s *CaptureServer) capturesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		caps, err := s.store.List()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to list captures: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, caps)
	case http.MethodPost:
		var req struct {
			Image string `json:"image"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 64<<20)).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		raw, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil || len(raw) == 0 {
			http.Error(w, "Invalid image data", http.StatusBadRequest)
			return
		}
		c, err := s.store.Save(raw, s.sim.Status())
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to save capture: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, c)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// captureHandler handles /api/captures/{id} and /api/captures/{id}/generate.
func (s *CaptureServer) captureHandler(w http.ResponseWriter, r *http.Request) {
	rest := r.URL.Path[len("/api/captures/"):]
	if rest == "" {
		http.Error(w, "Capture id required", http.StatusBadRequest)
		return
	}

	if id, found := strings.CutSuffix(rest, "/generate"); found {
		s.generateHandler(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	c, err := s.store.Get(rest)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, c)
}

func (s *CaptureServer) generateHandler(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	c, err := s.store.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	raw, err := s.store.RawImage(c)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read capture image: %v", err), http.StatusInternalServerError)
		return
	}
	img, err := s.gen.Generate(r.Context(), raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("Generation failed: %v", err), http.StatusBadGateway)
		return
	}
	c, err = s.store.AttachStylized(id, img, s.gen.cfg.Style)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to store stylized image: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, c)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
