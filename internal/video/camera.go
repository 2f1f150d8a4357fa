package video

import (
	"context"
	"fmt"
	"net/url"

	"github.com/trackv/trackv/internal/monitoring"
)

// cameraStreamPaths is the ordered list of stream endpoints IP cameras
// commonly expose. The first endpoint that opens wins.
var cameraStreamPaths = []string{
	"/video",
	"/mjpg/video.mjpg",
	"/stream.mjpg",
	"/cgi-bin/mjpg/video.cgi",
}

const defaultCameraPort = 8080

// openCamera probes the known stream URL templates for the camera and
// returns the first source that opens. Credentials, when present, are
// carried as URL userinfo the way camera firmwares expect.
func openCamera(ctx context.Context, d Descriptor, opts Options) (Source, error) {
	port := d.Port
	if port == 0 {
		port = defaultCameraPort
	}

	var lastErr error
	for _, path := range cameraStreamPaths {
		u := url.URL{
			Scheme: "http",
			Host:   fmt.Sprintf("%s:%d", d.Host, port),
			Path:   path,
		}
		if d.Username != "" {
			u.User = url.UserPassword(d.Username, d.Password)
		}

		src, err := openHTTPStream(ctx, u.String(), opts)
		if err == nil {
			monitoring.Logf("camera %s:%d connected via %s", d.Host, port, path)
			return src, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		monitoring.Logf("camera %s:%d endpoint %s failed: %v", d.Host, port, path, err)
	}

	return nil, fmt.Errorf("%w: camera %s:%d: no stream endpoint answered (last: %v)",
		ErrSourceUnavailable, d.Host, port, lastErr)
}

// localStreamerBasePort is where per-device MJPEG gateways (mjpg-streamer or
// equivalent) are expected to listen: device N on basePort+N.
const localStreamerBasePort = 8081

// openLocal resolves a local capture device index to its MJPEG gateway
// endpoint. Raw V4L2 capture is outside this process; a local streamer is
// expected to sit in front of the device.
func openLocal(ctx context.Context, index int, opts Options) (Source, error) {
	u := fmt.Sprintf("http://127.0.0.1:%d/?action=stream", localStreamerBasePort+index)
	src, err := openHTTPStream(ctx, u, opts)
	if err != nil {
		return nil, fmt.Errorf("local camera %d: %w", index, err)
	}
	return src, nil
}
