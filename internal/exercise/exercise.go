// Package exercise maps each supported rehabilitation exercise to the joints
// it watches and the hysteresis band that segments it into repetitions, and
// turns a keypoint set into the scalar signal the rest of the pipeline uses.
package exercise

import (
	"errors"
	"fmt"
	"strings"

	"github.com/large-farva/rehab-engine/internal/config"
	"github.com/large-farva/rehab-engine/internal/pose"
)

// ErrUnknownKind is returned when an exercise name does not match any Kind.
var ErrUnknownKind = errors.New("unknown exercise")

// Kind identifies an exercise.
type Kind int

const (
	ArmRaise Kind = iota
	SitToStand
	KneeExtension
	HeadMovement
)

var kindNames = [...]string{
	ArmRaise:      config.ArmRaise,
	SitToStand:    config.SitToStand,
	KneeExtension: config.KneeExtension,
	HeadMovement:  config.HeadMovement,
}

var kindLabels = [...]string{
	ArmRaise:      "Arm Raise",
	SitToStand:    "Sit-to-Stand",
	KneeExtension: "Knee Extension",
	HeadMovement:  "Head Rotation",
}

// Kinds lists every exercise in identifier order.
func Kinds() []Kind {
	return []Kind{ArmRaise, SitToStand, KneeExtension, HeadMovement}
}

// String returns the config key, e.g. "arm_raise".
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("exercise(%d)", int(k))
	}
	return kindNames[k]
}

// Label is the human-readable name.
func (k Kind) Label() string {
	if k < 0 || int(k) >= len(kindLabels) {
		return k.String()
	}
	return kindLabels[k]
}

// ID is the numeric identifier placed in feature vectors.
func (k Kind) ID() int {
	return int(k)
}

// ParseKind accepts the config key or the label, case-insensitively.
func ParseKind(s string) (Kind, error) {
	norm := normalizeName(s)
	for _, k := range Kinds() {
		if norm == k.String() || norm == normalizeName(k.Label()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

var nameReplacer = strings.NewReplacer("-", "_", " ", "_")

func normalizeName(s string) string {
	return nameReplacer.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// Measure is how a Spec turns keypoints into a sample.
type Measure int

const (
	// MeasureAngle is the joint angle at the middle joint of a triplet.
	MeasureAngle Measure = iota
	// MeasureHeadOffset is the signed horizontal nose offset from the
	// shoulder midpoint, in pixels.
	MeasureHeadOffset
)

func (m Measure) String() string {
	if m == MeasureHeadOffset {
		return "head_offset"
	}
	return "angle"
}

// Triplet names three joints; the angle is measured at B.
type Triplet struct {
	A, B, C int
}

// Spec is the process-wide description of one exercise.
type Spec struct {
	Kind    Kind
	Measure Measure
	Left    Triplet
	Right   Triplet
	Up      float64
	Down    float64
}

var (
	leftArm  = Triplet{pose.LeftShoulder, pose.LeftElbow, pose.LeftWrist}
	rightArm = Triplet{pose.RightShoulder, pose.RightElbow, pose.RightWrist}
	leftLeg  = Triplet{pose.LeftHip, pose.LeftKnee, pose.LeftAnkle}
	rightLeg = Triplet{pose.RightHip, pose.RightKnee, pose.RightAnkle}
)

// Catalog holds one validated Spec per Kind. It is built once from config
// and never mutated.
type Catalog struct {
	specs [len(kindNames)]Spec
}

// NewCatalog builds the catalog from the [exercises] config tables and
// rejects any band whose up threshold is not strictly above its down.
func NewCatalog(thresholds map[string]config.ThresholdPair) (*Catalog, error) {
	c := &Catalog{}
	for _, k := range Kinds() {
		th, ok := thresholds[k.String()]
		if !ok {
			return nil, fmt.Errorf("no thresholds for %s", k)
		}
		if !(th.Up > th.Down) {
			return nil, fmt.Errorf("%s: up threshold %g must exceed down threshold %g", k, th.Up, th.Down)
		}
		spec := Spec{Kind: k, Up: th.Up, Down: th.Down}
		switch k {
		case ArmRaise:
			spec.Measure, spec.Left, spec.Right = MeasureAngle, leftArm, rightArm
		case SitToStand, KneeExtension:
			spec.Measure, spec.Left, spec.Right = MeasureAngle, leftLeg, rightLeg
		case HeadMovement:
			spec.Measure = MeasureHeadOffset
		}
		c.specs[k] = spec
	}
	return c, nil
}

// Spec returns the spec for k.
func (c *Catalog) Spec(k Kind) Spec {
	return c.specs[k]
}

// Specs returns every spec in identifier order.
func (c *Catalog) Specs() []Spec {
	out := make([]Spec, len(c.specs))
	copy(out, c.specs[:])
	return out
}

// MarshalText renders the config key so Kind reads naturally in JSON.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts anything ParseKind does.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
