// Package fingerprint turns camera frames and enrollment photos into face
// descriptors using the external embedding server (POST /embed/face).
package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/staff-portal/internal/facematch"
)

const (
	defaultEmbeddingURL   = "http://localhost:8000"
	defaultEmbeddingModel = "face-128"
)

var (
	// ErrNoFace means no face above the detection score was found in the image.
	ErrNoFace = errors.New("no face detected")
	// ErrBadImage means the bytes could not be decoded as an image.
	ErrBadImage = errors.New("undecodable image")
	// ErrModelUnavailable means the embedding server cannot be reached or
	// reports that its models are not loaded.
	ErrModelUnavailable = errors.New("face model unavailable")
)

// Options tune descriptor extraction.
type Options struct {
	URL          string
	Model        string
	Dim          int     // expected descriptor length
	MinDetScore  float64 // faces detected with a lower score are ignored
	MaxFrameSize int     // longest edge frames are downscaled to, 0 keeps the original
}

// FaceClient computes face descriptors using the embedding server.
type FaceClient struct {
	baseURL      string
	model        string
	dim          int
	minDetScore  float64
	maxFrameSize int
	client       *http.Client
}

func NewFaceClient(opts Options) *FaceClient {
	baseURL := opts.URL
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	model := opts.Model
	if model == "" {
		model = defaultEmbeddingModel
	}
	return &FaceClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		model:        model,
		dim:          opts.Dim,
		minDetScore:  opts.MinDetScore,
		maxFrameSize: opts.MaxFrameSize,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Model returns the model name descriptors are attributed to.
func (c *FaceClient) Model() string {
	return c.model
}

// Ping checks that the embedding server is up and its models are loaded.
func (c *FaceClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrModelUnavailable, resp.StatusCode)
	}
	return nil
}

// Describe extracts the descriptor of the most confident face in image.
func (c *FaceClient) Describe(ctx context.Context, image []byte) (facematch.Descriptor, error) {
	frame, err := PrepareFrame(image, c.maxFrameSize)
	if err != nil {
		return nil, err
	}

	resp, err := c.ComputeFaceEmbeddings(ctx, frame)
	if err != nil {
		return nil, err
	}

	face, ok := SelectFace(resp.Faces, c.minDetScore)
	if !ok {
		return nil, ErrNoFace
	}
	if c.dim > 0 && len(face.Embedding) != c.dim {
		return nil, fmt.Errorf("%w: model returned %d, expected %d",
			facematch.ErrDimensionMismatch, len(face.Embedding), c.dim)
	}
	return facematch.FromFloat32(face.Embedding), nil
}

// ComputeFaceEmbeddings detects faces and computes their embeddings
func (c *FaceClient) ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &faceResp, nil
}

// postMultipartImage posts the image as the "file" form field with an
// explicit Content-Type based on magic byte detection.
func (c *FaceClient) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		// The server rejects images it cannot decode.
		return nil, fmt.Errorf("%w: %s", ErrBadImage, string(body))
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d: %s", ErrModelUnavailable, resp.StatusCode, string(body))
	default:
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
