// Package detect defines the object detection boundary. The model itself is
// an external, replaceable capability; this package owns the Detection data
// model and the contract every detector implementation must honour: results
// filtered to vehicle classes with confidence >= MinConfidence.
package detect

import (
	"context"
	"math"

	"github.com/trackv/trackv/internal/video"
)

// MinConfidence is the lower bound for detections admitted into the
// analytics pipeline. Anything below is excluded at this boundary.
const MinConfidence = 0.5

// Vehicle classes the system understands. Detections with other classes are
// dropped at the boundary.
const (
	ClassCar        = "car"
	ClassMotorcycle = "motorcycle"
	ClassBus        = "bus"
	ClassTruck      = "truck"
)

// cocoVehicleClasses maps COCO numeric class ids to vehicle class labels,
// for detector services that report raw model ids.
var cocoVehicleClasses = map[int]string{
	2: ClassCar,
	3: ClassMotorcycle,
	5: ClassBus,
	7: ClassTruck,
}

// VehicleClassFromID resolves a COCO class id to a vehicle class label.
// Returns empty string for non-vehicle classes.
func VehicleClassFromID(id int) string {
	return cocoVehicleClasses[id]
}

// IsVehicleClass reports whether label is one of the supported vehicle classes.
func IsVehicleClass(label string) bool {
	switch label {
	case ClassCar, ClassMotorcycle, ClassBus, ClassTruck:
		return true
	}
	return false
}

// Box is an axis-aligned bounding box in frame pixel coordinates.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Origin returns the top-left corner of the box.
func (b Box) Origin() (x, y float64) {
	return b.X1, b.Y1
}

// Center returns the box centre point.
func (b Box) Center() (x, y float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Area returns the box area in square pixels.
func (b Box) Area() float64 {
	return math.Abs(b.X2-b.X1) * math.Abs(b.Y2-b.Y1)
}

// Detection is one detected vehicle in one frame.
type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Detector produces per-frame detections. Implementations are expected to
// block for the duration of inference; the pipeline relies on that latency
// as its backpressure mechanism.
type Detector interface {
	Detect(ctx context.Context, frame video.Frame) ([]Detection, error)
}

// FilterContract enforces the detector contract on a result set: vehicle
// classes only, confidence >= MinConfidence. Well-behaved services already
// comply; this keeps a misconfigured one from polluting tracker state.
func FilterContract(dets []Detection) []Detection {
	out := dets[:0]
	for _, d := range dets {
		if d.Confidence >= MinConfidence && IsVehicleClass(d.Class) {
			out = append(out, d)
		}
	}
	return out
}

// AverageConfidence returns the mean confidence across detections, or zero
// for an empty set.
func AverageConfidence(dets []Detection) float64 {
	if len(dets) == 0 {
		return 0
	}
	var sum float64
	for _, d := range dets {
		sum += d.Confidence
	}
	return sum / float64(len(dets))
}

// CountByClass builds the vehicle type histogram for a result set.
func CountByClass(dets []Detection) map[string]int {
	types := make(map[string]int, 4)
	for _, d := range dets {
		types[d.Class]++
	}
	return types
}
