package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/time/rate"

	"imgsearch/internal/domain"
)

// knownDimensions lists output sizes of common CLIP checkpoints, used when
// no dimension is configured.
var knownDimensions = map[string]int{
	"clip-ViT-B-32": 512,
	"clip-ViT-B-16": 512,
	"clip-ViT-L-14": 768,
}

// HTTPOptions configures an HTTPEncoder.
type HTTPOptions struct {
	BaseURL           string
	Model             string
	APIKeyEnv         string
	Dimension         int
	Device            string
	ImageSize         int
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxBatch          int
}

// HTTPEncoder talks to a CLIP embedding server exposing an
// OpenAI-compatible /embeddings endpoint that accepts text and base64 image
// items in one request.
type HTTPEncoder struct {
	apiKey    string
	model     string
	baseURL   string
	dimension int
	imageSize int
	maxBatch  int
	backend   Backend
	limiter   *rate.Limiter
	client    *http.Client
}

type embeddingItem struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"` // base64 JPEG
}

type embeddingRequest struct {
	Input  []embeddingItem `json:"input"`
	Model  string          `json:"model"`
	Device string          `json:"device,omitempty"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Error *apiError       `json:"error,omitempty"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func NewHTTPEncoder(opts HTTPOptions) (*HTTPEncoder, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("%w: embedding base_url is required for the http provider", domain.ErrInvalidConfig)
	}
	dimension := opts.Dimension
	if dimension == 0 {
		dimension = knownDimensions[opts.Model]
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: unknown dimension for model %q", domain.ErrInvalidConfig, opts.Model)
	}

	var apiKey string
	if opts.APIKeyEnv != "" {
		apiKey = os.Getenv(opts.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("%w: API key not found in environment variable: %s", domain.ErrInvalidConfig, opts.APIKeyEnv)
		}
	}

	backend, err := DetectBackend(opts.Device)
	if err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxBatch := opts.MaxBatch
	if maxBatch <= 0 {
		maxBatch = 64
	}
	imageSize := opts.ImageSize
	if imageSize <= 0 {
		imageSize = 224
	}

	return &HTTPEncoder{
		apiKey:    apiKey,
		model:     opts.Model,
		baseURL:   opts.BaseURL,
		dimension: dimension,
		imageSize: imageSize,
		maxBatch:  maxBatch,
		backend:   backend,
		limiter:   limiter,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

// Encode serialises every decodable input and sends them in requests of at
// most maxBatch items. Inputs that cannot be serialised get a per-item
// decode error and are not sent.
func (e *HTTPEncoder) Encode(ctx context.Context, inputs []domain.Input) ([]domain.Encoded, error) {
	out := make([]domain.Encoded, len(inputs))

	items := make([]embeddingItem, 0, len(inputs))
	slots := make([]int, 0, len(inputs)) // items[j] answers inputs[slots[j]]
	for i, in := range inputs {
		item, err := e.toItem(in)
		if err != nil {
			out[i].Err = err
			continue
		}
		items = append(items, item)
		slots = append(slots, i)
	}

	for start := 0; start < len(items); start += e.maxBatch {
		end := min(start+e.maxBatch, len(items))

		vectors, err := e.embedBatch(ctx, items[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrEncode, err)
		}
		for j, vec := range vectors {
			out[slots[start+j]].Vector = vec
		}
	}
	return out, nil
}

func (e *HTTPEncoder) toItem(in domain.Input) (embeddingItem, error) {
	switch in.Kind {
	case domain.InputText:
		return embeddingItem{Text: in.Text}, nil
	case domain.InputImage:
		if in.Image == nil || in.Image.Bounds().Empty() {
			return embeddingItem{}, fmt.Errorf("%w: %s: empty image", domain.ErrDecode, in.Path)
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, e.resize(in.Image), &jpeg.Options{Quality: 90}); err != nil {
			return embeddingItem{}, fmt.Errorf("%w: %s: %w", domain.ErrDecode, in.Path, err)
		}
		return embeddingItem{Image: base64.StdEncoding.EncodeToString(buf.Bytes())}, nil
	default:
		return embeddingItem{}, fmt.Errorf("%w: unsupported input kind %s", domain.ErrDecode, in.Kind)
	}
}

// resize scales the shorter side down to the model input size; smaller
// images are sent as they are.
func (e *HTTPEncoder) resize(img image.Image) image.Image {
	b := img.Bounds()
	short := min(b.Dx(), b.Dy())
	if short <= e.imageSize {
		return img
	}
	w := b.Dx() * e.imageSize / short
	h := b.Dy() * e.imageSize / short
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func (e *HTTPEncoder) embedBatch(ctx context.Context, items []embeddingItem) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqBody := embeddingRequest{
		Input:  items,
		Model:  e.model,
		Device: e.backend.device(),
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, preview(body))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response (body: %s): %w", preview(body), err)
	}
	if embResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", embResp.Error.Message)
	}

	vectors := make([][]float32, len(items))
	for _, data := range embResp.Data {
		if data.Index < 0 || data.Index >= len(vectors) {
			return nil, fmt.Errorf("response index %d out of range", data.Index)
		}
		if len(data.Embedding) != e.dimension {
			return nil, fmt.Errorf("%w: model returned %d values, expected %d", domain.ErrDimensionMismatch, len(data.Embedding), e.dimension)
		}
		vec := data.Embedding
		if !domain.Normalize(vec) {
			return nil, fmt.Errorf("model returned a zero vector for item %d", data.Index)
		}
		vectors[data.Index] = vec
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("response is missing item %d", i)
		}
	}
	return vectors, nil
}

func preview(body []byte) string {
	if len(body) > 200 {
		return string(body[:200])
	}
	return string(body)
}

func (e *HTTPEncoder) Dimension() int    { return e.dimension }
func (e *HTTPEncoder) ModelName() string { return e.model }
func (e *HTTPEncoder) Backend() Backend  { return e.backend }
