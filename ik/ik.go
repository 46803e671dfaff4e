// Package ik solves the inverse kinematics of a single three-segment leg.
// Everything here is pure; the same inputs always produce the same outputs,
// and it's safe to solve for different legs concurrently.
package ik

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnreachable is returned when a target is outside the annulus which the
// leg can physically reach. Callers should hold the previous pose rather
// than clamping; a clamped target would silently desync the kinematic model
// from the actual structure.
var ErrUnreachable = errors.New("target unreachable")

// Geometry is the fixed link lengths of one leg, in mm, ordered from the
// body outwards. It never changes after construction.
type Geometry struct {
	CoxaLength  float64 `json:"coxa_length"`
	FemurLength float64 `json:"femur_length"`
	TibiaLength float64 `json:"tibia_length"`
}

func (g Geometry) Validate() error {
	if g.CoxaLength <= 0 || g.FemurLength <= 0 || g.TibiaLength <= 0 {
		return fmt.Errorf("link lengths must be positive: %+v", g)
	}

	return nil
}

// MaxReach returns the furthest distance from the femur pivot which the
// foot can reach.
func (g Geometry) MaxReach() float64 {
	return g.FemurLength + g.TibiaLength
}

// MinReach returns the closest distance to the femur pivot which the foot
// can reach, with the tibia folded all the way back.
func (g Geometry) MinReach() float64 {
	return math.Abs(g.FemurLength - g.TibiaLength)
}

// FootTarget is a foot position in the leg's local frame, relative to the
// coxa pivot: +X outwards along the mount heading, +Y to the left, +Z up.
// A foot on the ground is at negative Z. Targets are produced fresh each
// tick and never persisted.
type FootTarget struct {
	X float64
	Y float64
	Z float64
}

func (t FootTarget) String() string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f)", t.X, t.Y, t.Z)
}

// Angles are leg-local joint angles in degrees. Zero on every joint sticks
// the leg straight out from the body, parallel to the ground. The servo
// layer owns the translation into physical servo positions.
type Angles struct {
	Coxa  float64
	Femur float64
	Tibia float64
}

// Solve returns the joint angles which place the foot at the given target.
// The coxa angle comes from the target heading; the femur and tibia angles
// come from the law of cosines in the leg's sagittal plane.
func Solve(t FootTarget, g Geometry) (Angles, error) {

	// Rotation of the hip around the vertical axis, to point the rest of
	// the leg at the target.
	coxa := deg(math.Atan2(t.Y, t.X))

	// Project into the sagittal plane. Everything below is 2d trig on the
	// (planar, z) axes.
	planar := math.Hypot(t.X, t.Y) - g.CoxaLength
	foot := math.Hypot(planar, t.Z)

	// Hard reachability boundaries. Exactly on the boundary is fine (the
	// leg fully extended or fully folded); strictly outside is not, and is
	// an error rather than a clamp.
	if foot > g.MaxReach() || foot < g.MinReach() {
		return Angles{}, fmt.Errorf("%w: %s (foot distance %.1f, annulus [%.1f, %.1f])",
			ErrUnreachable, t, foot, g.MinReach(), g.MaxReach())
	}

	fl := g.FemurLength
	tl := g.TibiaLength

	// The acos operands are clamped to [-1, 1] only to guard against float
	// rounding at the exact boundary; reachability was checked above.
	tibia := deg(math.Acos(clamp((fl*fl+tl*tl-foot*foot)/(2*fl*tl), -1, 1)))
	femur := deg(math.Atan2(t.Z, planar)) + deg(math.Acos(clamp((fl*fl+foot*foot-tl*tl)/(2*fl*foot), -1, 1)))

	return Angles{
		Coxa:  coxa,
		Femur: femur,
		Tibia: tibia,
	}, nil
}

// Forward is the closed-form forward kinematics companion to Solve: it
// returns the foot position produced by the given joint angles. It exists
// for self-tests and property verification, and is never on the hot path.
func Forward(a Angles, g Geometry) FootTarget {
	fr := rad(a.Femur)
	tr := rad(a.Tibia)

	// Position of the foot in the sagittal plane, relative to the femur
	// pivot. The interior tibia angle opens the knee from fully folded
	// (0 degrees) to fully extended (180 degrees).
	planar := g.FemurLength*math.Cos(fr) + g.TibiaLength*math.Cos(fr+tr-math.Pi)
	z := g.FemurLength*math.Sin(fr) + g.TibiaLength*math.Sin(fr+tr-math.Pi)

	cr := rad(a.Coxa)
	reach := g.CoxaLength + planar

	return FootTarget{
		X: reach * math.Cos(cr),
		Y: reach * math.Sin(cr),
		Z: z,
	}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func deg(rads float64) float64 {
	return rads / (math.Pi / 180)
}

func rad(degrees float64) float64 {
	return (math.Pi / 180) * degrees
}
