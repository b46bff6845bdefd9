package source

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/large-farva/rehab-engine/internal/pose"
)

// Demo synthesizes a standing figure whose elbows, knees and head all follow
// one slow sinusoid, so every exercise produces reps without a camera or a
// pose model. It never closes.
type Demo struct {
	Width, Height int
	// Period is the length of one full movement cycle.
	Period time.Duration
	// Noise is the standard deviation of per-joint jitter, in normalized
	// coordinates.
	Noise float64
	// DropEvery makes every n-th frame a no-detection frame. Zero disables.
	DropEvery uint64

	pace  *pacer
	rng   *rand.Rand
	seq   uint64
	start time.Time
	dt    time.Duration
}

// NewDemo returns a demo source paced at fps. A non-positive fps runs
// unpaced, which is what the tests use.
func NewDemo(width, height int, fps float64, seed uint64) *Demo {
	dt := time.Second / 15
	if fps > 0 {
		dt = time.Duration(float64(time.Second) / fps)
	}
	return &Demo{
		Width:     width,
		Height:    height,
		Period:    4 * time.Second,
		Noise:     0.002,
		DropEvery: 97,
		pace:      newPacer(fps),
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		start:     time.Now(),
		dt:        dt,
	}
}

// Next implements Source.
func (d *Demo) Next(ctx context.Context) (pose.Frame, error) {
	if err := d.pace.wait(ctx); err != nil {
		return pose.Frame{}, err
	}
	seq := d.seq
	d.seq++

	elapsed := time.Duration(seq) * d.dt
	f := pose.Frame{
		Seq:    seq,
		At:     d.start.Add(elapsed),
		Width:  d.Width,
		Height: d.Height,
	}
	if d.DropEvery > 0 && seq > 0 && seq%d.DropEvery == 0 {
		return f, nil
	}

	s := math.Sin(2 * math.Pi * elapsed.Seconds() / d.Period.Seconds())
	kps := d.body(s)
	f.Keypoints = &kps
	return f, nil
}

// body builds the figure for phase s in [-1, 1]. Geometry is laid out in
// pixels so the joint angles come out exact before normalization.
func (d *Demo) body(s float64) pose.Set {
	w, h := float64(d.Width), float64(d.Height)
	u := (1 + s) / 2

	elbow := 25 + 135*u // degrees, 25..160
	knee := 80 + 98*u   // degrees, 80..178
	nose := 0.1 * s     // fraction of frame width

	var kps pose.Set
	set := func(joint int, x, y, conf float64) {
		kps[joint] = pose.Keypoint{
			X:          x/w + d.jitter(),
			Y:          y/h + d.jitter(),
			Confidence: conf,
		}
	}

	cx := w / 2
	upper := 0.12 * h
	shin := 0.18 * h

	set(pose.Nose, cx+nose*w, 0.15*h, 0.95)
	set(pose.LeftEye, cx+nose*w+0.02*w, 0.13*h, 0.9)
	set(pose.RightEye, cx+nose*w-0.02*w, 0.13*h, 0.9)
	set(pose.LeftEar, cx+0.05*w, 0.14*h, 0.8)
	set(pose.RightEar, cx-0.05*w, 0.14*h, 0.8)

	for _, side := range []struct {
		dir                    float64
		shoulder, elbow, wrist int
		hip, knee, ankle       int
	}{
		{1, pose.LeftShoulder, pose.LeftElbow, pose.LeftWrist, pose.LeftHip, pose.LeftKnee, pose.LeftAnkle},
		{-1, pose.RightShoulder, pose.RightElbow, pose.RightWrist, pose.RightHip, pose.RightKnee, pose.RightAnkle},
	} {
		sx, sy := cx+side.dir*0.1*w, 0.25*h
		ex, ey := sx, sy+upper
		wx, wy := limb(ex, ey, upper, elbow, side.dir)
		set(side.shoulder, sx, sy, 0.9)
		set(side.elbow, ex, ey, 0.9)
		set(side.wrist, wx, wy, 0.85)

		hx, hy := cx+side.dir*0.06*w, 0.55*h
		kx, ky := hx, hy+shin
		ax, ay := limb(kx, ky, shin, knee, side.dir)
		set(side.hip, hx, hy, 0.9)
		set(side.knee, kx, ky, 0.9)
		set(side.ankle, ax, ay, 0.85)
	}
	return kps
}

// limb places the distal joint so the angle at (jx, jy) between the upward
// segment and the distal segment is deg.
func limb(jx, jy, length, deg, dir float64) (x, y float64) {
	rad := deg * math.Pi / 180
	return jx + dir*length*math.Sin(rad), jy - length*math.Cos(rad)
}

func (d *Demo) jitter() float64 {
	if d.Noise == 0 {
		return 0
	}
	return d.rng.NormFloat64() * d.Noise
}
