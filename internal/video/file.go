package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// fileSource reads frames from an uploaded recording: either a raw MJPEG
// file (concatenated JPEGs) or a directory of still JPEG frames, ordered by
// file name.
type fileSource struct {
	scanner *mjpegScanner
	file    *os.File

	// directory mode
	frames []string
	next   int

	index     uint64
	closeOnce sync.Once
}

func openFile(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}

	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
		}
		var frames []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := strings.ToLower(e.Name())
			if strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".jpeg") {
				frames = append(frames, filepath.Join(path, e.Name()))
			}
		}
		if len(frames) == 0 {
			return nil, fmt.Errorf("%w: %s: no frames found", ErrSourceUnavailable, path)
		}
		sort.Strings(frames)
		return &fileSource{frames: frames}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}
	return &fileSource{file: f, scanner: newMJPEGScanner(f)}, nil
}

func (s *fileSource) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	var data []byte
	var err error
	if s.scanner != nil {
		data, err = s.scanner.Next()
		if errors.Is(err, io.EOF) {
			return Frame{}, ErrEndOfStream
		}
	} else {
		if s.next >= len(s.frames) {
			return Frame{}, ErrEndOfStream
		}
		data, err = os.ReadFile(s.frames[s.next])
		s.next++
	}
	if err != nil {
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

func (s *fileSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.file != nil {
			err = s.file.Close()
		}
	})
	return err
}
