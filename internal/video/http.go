package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// openTimeout bounds the initial connection and response headers for
// network sources. Frame reads are bounded separately by Options.ReadTimeout.
const openTimeout = 10 * time.Second

// httpSource reads frames from an HTTP MJPEG stream. Both
// multipart/x-mixed-replace responses (the common IP camera framing) and raw
// concatenated-JPEG bodies are supported.
type httpSource struct {
	resp        *http.Response
	parts       *multipart.Reader
	scanner     *mjpegScanner
	cancel      context.CancelFunc
	readTimeout time.Duration

	index     uint64
	closeOnce sync.Once
}

func openHTTPStream(ctx context.Context, url string, opts Options) (Source, error) {
	// The request context outlives this call; it is cancelled by Close so
	// the body read loop can be unblocked at any time.
	reqCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, url, err)
	}

	client := &http.Client{Timeout: 0} // streaming body, no overall timeout
	type openResult struct {
		resp *http.Response
		err  error
	}
	resCh := make(chan openResult, 1)
	go func() {
		resp, err := client.Do(req)
		resCh <- openResult{resp, err}
	}()

	var resp *http.Response
	select {
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	case <-time.After(openTimeout):
		cancel()
		return nil, fmt.Errorf("%w: %s: open timed out", ErrSourceUnavailable, url)
	case res := <-resCh:
		if res.err != nil {
			cancel()
			return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, url, res.err)
		}
		resp = res.resp
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: %s: status %d", ErrSourceUnavailable, url, resp.StatusCode)
	}

	src := &httpSource{resp: resp, cancel: cancel, readTimeout: opts.ReadTimeout}

	mediaType, params, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "" {
		src.parts = multipart.NewReader(resp.Body, params["boundary"])
	} else {
		src.scanner = newMJPEGScanner(resp.Body)
	}
	return src, nil
}

func (s *httpSource) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	// A stalled remote stream must not block forever: arm a watchdog that
	// tears down the connection if the frame read exceeds the bound.
	var timedOut atomic.Bool
	if s.readTimeout > 0 {
		timer := time.AfterFunc(s.readTimeout, func() {
			timedOut.Store(true)
			s.cancel()
		})
		defer timer.Stop()
	}
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()

	data, err := s.nextFrameBytes()
	if err != nil {
		if timedOut.Load() {
			return Frame{}, fmt.Errorf("video: frame read timed out after %v", s.readTimeout)
		}
		if ctx.Err() != nil {
			return Frame{}, ctx.Err()
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrEndOfStream
		}
		return Frame{}, fmt.Errorf("video: read frame: %w", err)
	}

	frame, err := decodeJPEG(data)
	if err != nil {
		return Frame{}, err
	}
	frame.Index = s.index
	frame.Timestamp = time.Now()
	s.index++
	return frame, nil
}

func (s *httpSource) nextFrameBytes() ([]byte, error) {
	if s.parts != nil {
		part, err := s.parts.NextPart()
		if err != nil {
			return nil, err
		}
		defer part.Close()
		return io.ReadAll(io.LimitReader(part, maxFrameBytes))
	}
	return s.scanner.Next()
}

func (s *httpSource) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.resp.Body.Close()
	})
	return nil
}
