package legs

import (
	"github.com/kevintmckay/hexapod/gait"
	"github.com/kevintmckay/hexapod/ik"
)

// Leg is one of the six legs: fixed identity and geometry, plus the
// mutable joint angles and contact flag. The whole arena is owned by the
// Legs component; nothing else mutates it.
type Leg struct {
	Name      string
	Geometry  ik.Geometry
	Placement gait.Placement

	// The angles most recently solved and dispatched. Held (re-sent
	// unchanged) when a target is unreachable or the verdict halts.
	Angles ik.Angles

	// Whether the foot switch reports ground contact, per the latest
	// snapshot. Advisory.
	Contact bool
}

// Names, indexed L1, L2, L3, R1, R2, R3: front to back down the left
// side, then front to back down the right.
var legNames = [6]string{"L1", "L2", "L3", "R1", "R2", "R3"}

// DefaultPlacements returns each leg's mount, from the CAD: mounts on a
// 175mm radius at 30/90/150 degrees either side of forward.
func DefaultPlacements() [6]gait.Placement {
	return [6]gait.Placement{
		{MountX: 151.6, MountY: 87.5, Yaw: 30},     // L1
		{MountX: 0, MountY: 175, Yaw: 90},          // L2
		{MountX: -151.6, MountY: 87.5, Yaw: 150},   // L3
		{MountX: 151.6, MountY: -87.5, Yaw: -30},   // R1
		{MountX: 0, MountY: -175, Yaw: -90},        // R2
		{MountX: -151.6, MountY: -87.5, Yaw: -150}, // R3
	}
}
