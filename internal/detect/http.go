package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"github.com/trackv/trackv/internal/video"
)

// jpegQuality for frames sent to the inference service. Detection quality is
// insensitive to mild compression and the upload dominates call latency.
const jpegQuality = 85

// HTTPDetector delegates inference to an external HTTP service. The frame is
// posted as a JPEG body; the service answers with a JSON detection list.
type HTTPDetector struct {
	url    string
	client *http.Client
}

// NewHTTPDetector builds a detector client for the given endpoint. timeout
// bounds one inference round trip; zero falls back to 15s.
func NewHTTPDetector(url string, timeout time.Duration) *HTTPDetector {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPDetector{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// wireDetection is the service response schema. Services report either a
// class label or a raw COCO class id.
type wireDetection struct {
	Class      string    `json:"class,omitempty"`
	ClassID    *int      `json:"class_id,omitempty"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"` // [x1, y1, x2, y2]
}

type wireResponse struct {
	Detections []wireDetection `json:"detections"`
}

// Detect sends one frame to the inference service and returns contract-
// filtered detections.
func (d *HTTPDetector) Detect(ctx context.Context, frame video.Frame) ([]Detection, error) {
	var body bytes.Buffer
	if err := jpeg.Encode(&body, frame.Image, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("detect: encode frame %d: %w", frame.Index, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, &body)
	if err != nil {
		return nil, fmt.Errorf("detect: build request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect: call inference service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detect: inference service status %d: %s", resp.StatusCode, msg)
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("detect: decode response: %w", err)
	}

	dets := make([]Detection, 0, len(wire.Detections))
	for _, w := range wire.Detections {
		class := w.Class
		if class == "" && w.ClassID != nil {
			class = VehicleClassFromID(*w.ClassID)
		}
		if len(w.BBox) != 4 {
			continue
		}
		dets = append(dets, Detection{
			Class:      class,
			Confidence: w.Confidence,
			Box:        Box{X1: w.BBox[0], Y1: w.BBox[1], X2: w.BBox[2], Y2: w.BBox[3]},
		})
	}
	return FilterContract(dets), nil
}
