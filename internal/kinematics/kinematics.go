// Package kinematics turns predicted joint angles into the joint positions
// of a planar three-segment arm. Angles are in degrees and the y axis
// points down, as on a screen.
package kinematics

import (
	"fmt"
	"math"

	"armpose/internal/config"
	"armpose/internal/prediction"
)

// Geometry describes the arm and the dart target
type Geometry struct {
	Shoulder Point   `json:"shoulder"`
	UpperArm float64 `json:"upper_arm"`
	Forearm  float64 `json:"forearm"`
	Hand     float64 `json:"hand"`
	Target   Point   `json:"target"`
	// ThrowElbowBelow is the elbow angle under which a frame counts as a throw
	ThrowElbowBelow float64 `json:"throw_elbow_below"`
}

// Point is a position in screen coordinates
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pose is the solved arm for one frame
type Pose struct {
	Shoulder Point `json:"shoulder"`
	Elbow    Point `json:"elbow"`
	Wrist    Point `json:"wrist"`
	Hand     Point `json:"hand"`
	Throwing bool  `json:"throwing"`
	// Target is set only while throwing
	Target *Point `json:"target,omitempty"`
}

// DefaultGeometry returns the shoulder at (150,200), segments of 100, 100
// and 50, and the target at (500,200).
func DefaultGeometry() Geometry {
	return FromConfig(config.Default().Kinematics)
}

// FromConfig builds a Geometry from the kinematics config section
func FromConfig(c config.KinematicsConfig) Geometry {
	return Geometry{
		Shoulder:        Point{X: c.ShoulderX, Y: c.ShoulderY},
		UpperArm:        c.UpperArm,
		Forearm:         c.Forearm,
		Hand:            c.Hand,
		Target:          Point{X: c.TargetX, Y: c.TargetY},
		ThrowElbowBelow: c.ThrowElbowBelow,
	}
}

// Solve places each segment relative to the previous joint. The upper arm
// points along the shoulder angle; the forearm and hand subtract the
// elbow and wrist angles in turn.
func (g Geometry) Solve(p prediction.Prediction) Pose {
	sh := p.ShoulderAngle
	el := sh - p.ElbowAngle
	wr := el - p.WristAngle

	pose := Pose{Shoulder: g.Shoulder}
	pose.Elbow = advance(pose.Shoulder, sh, g.UpperArm)
	pose.Wrist = advance(pose.Elbow, el, g.Forearm)
	pose.Hand = advance(pose.Wrist, wr, g.Hand)

	if p.ElbowAngle < g.ThrowElbowBelow {
		pose.Throwing = true
		target := g.Target
		pose.Target = &target
	}
	return pose
}

func advance(from Point, degrees, length float64) Point {
	rad := degrees * math.Pi / 180
	return Point{
		X: from.X + math.Cos(rad)*length,
		Y: from.Y - math.Sin(rad)*length,
	}
}

// FrameLabel returns the 1-based "frame i/N" caption of frame index i
func FrameLabel(i, n int) string {
	return fmt.Sprintf("frame %d/%d", i+1, n)
}
