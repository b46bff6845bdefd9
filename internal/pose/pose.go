// Package pose defines the keypoint data the rest of the engine consumes.
// The joint order follows the 17-point COCO/MoveNet schema and is fixed:
// exercise logic indexes into it directly.
package pose

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Joint indices into a Set.
const (
	Nose          = 0
	LeftEye       = 1
	RightEye      = 2
	LeftEar       = 3
	RightEar      = 4
	LeftShoulder  = 5
	RightShoulder = 6
	LeftElbow     = 7
	RightElbow    = 8
	LeftWrist     = 9
	RightWrist    = 10
	LeftHip       = 11
	RightHip      = 12
	LeftKnee      = 13
	RightKnee     = 14
	LeftAnkle     = 15
	RightAnkle    = 16

	NumJoints = 17
)

// ErrInvalidKeypoints is returned when a set carries coordinates that no
// detector could have produced (NaN, Inf).
var ErrInvalidKeypoints = errors.New("invalid keypoints")

// Keypoint is one detected joint. Y and X are normalized to [0,1] of the
// frame height and width; Confidence is in [0,1].
type Keypoint struct {
	Y          float64 `json:"y"          msgpack:"y"`
	X          float64 `json:"x"          msgpack:"x"`
	Confidence float64 `json:"confidence" msgpack:"c"`
}

// Set is one person's keypoints for one frame.
type Set [NumJoints]Keypoint

// Validate rejects sets with non-finite values.
func (s *Set) Validate() error {
	for i, kp := range s {
		for _, v := range [3]float64{kp.Y, kp.X, kp.Confidence} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: joint %d is not finite", ErrInvalidKeypoints, i)
			}
		}
	}
	return nil
}

// MeanConfidence averages the confidence over all joints.
func (s *Set) MeanConfidence() float64 {
	var sum float64
	for _, kp := range s {
		sum += kp.Confidence
	}
	return sum / NumJoints
}

// Pixel converts a joint to pixel coordinates for a frame of w x h.
func (s *Set) Pixel(joint, w, h int) (x, y float64) {
	kp := s[joint]
	return kp.X * float64(w), kp.Y * float64(h)
}

// Frame is what a keypoint source hands the pipeline once per iteration.
// Keypoints is nil when the detector found nobody.
type Frame struct {
	Seq       uint64
	At        time.Time
	Width     int
	Height    int
	Keypoints *Set
}

// Detected reports whether the frame carries keypoints.
func (f Frame) Detected() bool {
	return f.Keypoints != nil
}

// BestPerson picks the candidate with the highest mean confidence. It
// returns nil when there are no candidates or all of them are empty.
func BestPerson(candidates []Set) *Set {
	var best *Set
	bestScore := 0.0
	for i := range candidates {
		score := candidates[i].MeanConfidence()
		if score > bestScore {
			bestScore = score
			best = &candidates[i]
		}
	}
	return best
}
