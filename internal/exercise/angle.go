package exercise

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/large-farva/rehab-engine/internal/pose"
)

// Side is the body side an angle was measured on.
type Side string

const (
	SideNone  Side = ""
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Sample is one per-frame signal value.
type Sample struct {
	Value float64
	Side  Side
}

// Extractor turns keypoints into a Sample for a given exercise. It keeps no
// state between frames; side selection is redone on every call.
type Extractor struct {
	// HeadMinShoulderConfidence gates the head offset: if either shoulder is
	// below it the offset is reported as 0.
	HeadMinShoulderConfidence float64
}

// Extract computes the sample for spec from kps in a w x h frame.
func (e Extractor) Extract(spec Spec, kps *pose.Set, w, h int) (Sample, error) {
	if err := kps.Validate(); err != nil {
		return Sample{}, err
	}

	switch spec.Measure {
	case MeasureHeadOffset:
		return Sample{Value: e.headOffset(kps, w, h)}, nil
	default:
		side, t := SelectSide(kps, spec.Left, spec.Right)
		a := point(kps, t.A, w, h)
		b := point(kps, t.B, w, h)
		c := point(kps, t.C, w, h)
		return Sample{Value: Angle(a, b, c), Side: side}, nil
	}
}

// SelectSide sums joint confidence over each triplet and returns the side
// with the higher total. Ties go to the right side.
func SelectSide(kps *pose.Set, left, right Triplet) (Side, Triplet) {
	l := kps[left.A].Confidence + kps[left.B].Confidence + kps[left.C].Confidence
	r := kps[right.A].Confidence + kps[right.B].Confidence + kps[right.C].Confidence
	if r >= l {
		return SideRight, right
	}
	return SideLeft, left
}

// Angle returns the angle at b between rays b->a and b->c, in degrees within
// [0,180]. A zero-length ray yields 0.
func Angle(a, b, c r2.Point) float64 {
	ba := a.Sub(b)
	bc := c.Sub(b)
	denom := ba.Norm() * bc.Norm()
	if denom == 0 {
		return 0
	}
	cos := ba.Dot(bc) / denom
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

func (e Extractor) headOffset(kps *pose.Set, w, h int) float64 {
	ls, rs := kps[pose.LeftShoulder], kps[pose.RightShoulder]
	if ls.Confidence < e.HeadMinShoulderConfidence || rs.Confidence < e.HeadMinShoulderConfidence {
		return 0
	}
	noseX := kps[pose.Nose].X * float64(w)
	midX := (ls.X + rs.X) / 2 * float64(w)
	return noseX - midX
}

// ShoulderWidth is the pixel distance between the shoulders, used as a
// one-shot body-size proxy. ok is false when either shoulder is below
// minConf.
func ShoulderWidth(kps *pose.Set, w, h int, minConf float64) (width float64, ok bool) {
	if kps[pose.LeftShoulder].Confidence < minConf || kps[pose.RightShoulder].Confidence < minConf {
		return 0, false
	}
	return point(kps, pose.LeftShoulder, w, h).Sub(point(kps, pose.RightShoulder, w, h)).Norm(), true
}

func point(kps *pose.Set, joint, w, h int) r2.Point {
	x, y := kps.Pixel(joint, w, h)
	return r2.Point{X: x, Y: y}
}
