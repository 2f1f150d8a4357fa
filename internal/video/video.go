// Package video provides the source abstraction for the four supported feed
// kinds: uploaded files, remote stream URLs, IP cameras, and local capture
// devices. Decoding is delegated to the JPEG level; every source yields a
// sequence of decoded frames through the same pull-based Source interface.
package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

// Source errors. ErrSourceUnavailable is fatal to the feed that hit it;
// ErrEndOfStream is the normal termination of a finite source.
var (
	ErrSourceUnavailable = errors.New("video: source unavailable")
	ErrEndOfStream       = errors.New("video: end of stream")
)

// SourceKind discriminates the Descriptor tagged union.
type SourceKind string

const (
	SourceUploaded SourceKind = "uploaded"
	SourceRemote   SourceKind = "remote"
	SourceCamera   SourceKind = "camera"
	SourceLocal    SourceKind = "local"
)

// Descriptor describes how to open a video source. Exactly the fields for the
// given Kind are meaningful; Validate enforces that.
type Descriptor struct {
	Kind SourceKind `json:"kind"`

	// Uploaded
	Path string `json:"path,omitempty"`

	// Remote
	URL string `json:"url,omitempty"`

	// Camera
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// Local
	Index int `json:"index,omitempty"`
}

// Validate checks that the descriptor carries the fields its kind requires.
func (d Descriptor) Validate() error {
	switch d.Kind {
	case SourceUploaded:
		if d.Path == "" {
			return fmt.Errorf("video: uploaded descriptor requires a path")
		}
	case SourceRemote:
		if d.URL == "" {
			return fmt.Errorf("video: remote descriptor requires a url")
		}
	case SourceCamera:
		if d.Host == "" {
			return fmt.Errorf("video: camera descriptor requires a host")
		}
	case SourceLocal:
		if d.Index < 0 {
			return fmt.Errorf("video: local descriptor requires a non-negative index")
		}
	default:
		return fmt.Errorf("video: unknown source kind %q", d.Kind)
	}
	return nil
}

// String returns a loggable identity for the descriptor without credentials.
func (d Descriptor) String() string {
	switch d.Kind {
	case SourceUploaded:
		return fmt.Sprintf("uploaded:%s", d.Path)
	case SourceRemote:
		return fmt.Sprintf("remote:%s", d.URL)
	case SourceCamera:
		return fmt.Sprintf("camera:%s:%d", d.Host, d.Port)
	case SourceLocal:
		return fmt.Sprintf("local:%d", d.Index)
	}
	return string(d.Kind)
}

// Frame is one decoded video frame. Index is monotonic per source.
type Frame struct {
	Index     uint64
	Image     image.Image
	Timestamp time.Time
}

// Source is the capability interface every source kind implements. Read
// blocks until a frame is available, the context is done, or the stream
// ends (ErrEndOfStream). Close releases the underlying handle and is safe
// to call more than once.
type Source interface {
	Read(ctx context.Context) (Frame, error)
	Close() error
}

// Options tunes source behaviour at open time.
type Options struct {
	// ReadTimeout bounds a single frame read. Zero means no bound beyond
	// the caller's context.
	ReadTimeout time.Duration
}

// Open dispatches on the descriptor kind exactly once and returns the
// matching Source implementation. An open failure is reported as
// ErrSourceUnavailable so callers can distinguish it from read-time errors.
func Open(ctx context.Context, d Descriptor, opts Options) (Source, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	switch d.Kind {
	case SourceUploaded:
		return openFile(d.Path)
	case SourceRemote:
		return openHTTPStream(ctx, d.URL, opts)
	case SourceCamera:
		return openCamera(ctx, d, opts)
	case SourceLocal:
		return openLocal(ctx, d.Index, opts)
	}
	return nil, fmt.Errorf("video: unknown source kind %q", d.Kind)
}
