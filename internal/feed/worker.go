package feed

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/trackv/trackv/internal/alert"
	"github.com/trackv/trackv/internal/congestion"
	"github.com/trackv/trackv/internal/detect"
	"github.com/trackv/trackv/internal/metrics"
	"github.com/trackv/trackv/internal/monitoring"
	"github.com/trackv/trackv/internal/store"
	"github.com/trackv/trackv/internal/tracker"
	"github.com/trackv/trackv/internal/video"
)

// worker is the single goroutine that owns a feed's source and tracker.
// Nothing here is shared; the feed's snapshot is the only published state.
type worker struct {
	feed     *Feed
	cfg      Config
	src      video.Source
	detector detect.Detector
	store    DetectionStore
	alerts   *alert.Generator
	metrics  *metrics.Metrics
	trk      *tracker.Tracker
}

func (w *worker) run(ctx context.Context) {
	logf := monitoring.FeedLogf(w.feed.ID)
	defer close(w.feed.doneCh)
	defer w.src.Close()
	defer w.metrics.ActiveFeeds.Add(-1)

	w.feed.setState(StateRunning)
	logf("running: junction=%s source=%s", w.feed.JunctionID, w.feed.Source)

	frameArea := w.cfg.TargetWidth * w.cfg.TargetHeight
	readFailures := 0
	detectorFailures := 0
	var frames uint64

	for {
		frame, err := w.src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.feed.setTerminal(StateStopped, nil)
				logf("stopped after %d frames", frames)
				return
			}
			if errors.Is(err, video.ErrEndOfStream) {
				w.feed.setTerminal(StateStopped, nil)
				logf("end of stream after %d frames", frames)
				return
			}
			readFailures++
			w.metrics.ReadErrors.Add(1)
			logf("read error %d/%d: %v", readFailures, w.cfg.MaxReadRetries, err)
			if readFailures >= w.cfg.MaxReadRetries {
				w.fail(logf, fmt.Errorf("source failed after %d read errors: %w", readFailures, err))
				return
			}
			continue
		}
		readFailures = 0
		frames++
		w.metrics.FramesRead.Add(1)

		if frames%uint64(w.cfg.SampleInterval) != 0 {
			w.metrics.FramesDropped.Add(1)
			continue
		}
		w.metrics.FramesSampled.Add(1)

		img := downscale(frame.Image, w.cfg.TargetWidth, w.cfg.TargetHeight)
		dets, err := w.detector.Detect(ctx, video.Frame{
			Index:     frame.Index,
			Image:     img,
			Timestamp: frame.Timestamp,
		})
		w.metrics.DetectorCalls.Add(1)
		if err != nil {
			if ctx.Err() != nil {
				w.feed.setTerminal(StateStopped, nil)
				logf("stopped after %d frames", frames)
				return
			}
			detectorFailures++
			w.metrics.DetectorFailures.Add(1)
			logf("detector error %d/%d: %v", detectorFailures, w.cfg.MaxDetectorFailures, err)
			if detectorFailures >= w.cfg.MaxDetectorFailures {
				w.fail(logf, fmt.Errorf("detector failed %d times in a row: %w", detectorFailures, err))
				return
			}
			continue
		}
		detectorFailures = 0
		w.metrics.VehiclesDetected.Add(uint64(len(dets)))

		w.analyse(ctx, logf, frames, frame.Timestamp, dets, frameArea)
	}
}

// analyse runs the post-detection stages for one sampled frame: tracking,
// congestion scoring, snapshot publication, alerting, and persistence.
func (w *worker) analyse(ctx context.Context, logf func(string, ...interface{}), frames uint64, ts time.Time, dets []detect.Detection, frameArea int) {
	stable := w.trk.Update(dets, ts)
	score, level := congestion.Score(len(dets), frameArea)

	w.feed.setSnapshot(Snapshot{
		FeedID:          w.feed.ID,
		JunctionID:      w.feed.JunctionID,
		FrameCount:      frames,
		VehicleCount:    len(dets),
		VehicleTypes:    detect.CountByClass(dets),
		AvgConfidence:   detect.AverageConfidence(dets),
		CongestionScore: score,
		CongestionLevel: level,
		StableVehicles:  len(stable),
		Timestamp:       ts,
	})

	results, err := w.alerts.Evaluate(ctx, alert.Observation{
		JunctionID:     w.feed.JunctionID,
		FeedID:         w.feed.ID,
		VehicleCount:   len(dets),
		StableVehicles: stable,
		Now:            ts,
	})
	if err != nil {
		logf("alert evaluation: %v", err)
	}
	for _, res := range results {
		if res.Outcome == alert.OutcomeCreated {
			w.metrics.AlertsCreated.Add(1)
		} else {
			w.metrics.AlertsSuppressed.Add(1)
		}
	}

	rec := store.DetectionRecord{
		JunctionID:    w.feed.JunctionID,
		FeedID:        w.feed.ID,
		VehicleCount:  len(dets),
		VehicleTypes:  detect.CountByClass(dets),
		AvgConfidence: detect.AverageConfidence(dets),
		Congested:     level == congestion.LevelHigh || level == congestion.LevelCritical,
		CreatedAt:     ts,
	}
	if err := w.store.InsertDetection(ctx, rec); err != nil {
		// Best effort: the feed keeps flowing when the store is down.
		logf("persist detection: %v", err)
	}
}

func (w *worker) fail(logf func(string, ...interface{}), err error) {
	w.feed.setTerminal(StateFailed, err)
	w.metrics.FeedsFailed.Add(1)
	logf("failed: %v", err)
}

// downscale resizes an image to fit within the target bounds, preserving
// aspect ratio. Frames already within bounds pass through untouched.
func downscale(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	if b.Dx() <= maxW && b.Dy() <= maxH {
		return src
	}

	scaleW := float64(maxW) / float64(b.Dx())
	scaleH := float64(maxH) / float64(b.Dy())
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	w := int(float64(b.Dx()) * scale)
	h := int(float64(b.Dy()) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}
