package so_sim

import (
	"go.viam.com/rdk/logging"
)

// DefaultGripDistance is the contact threshold in scene units. Objects vary
// from rigid meshes to point-cloud splat volumes, so an exact geometry test
// is not tractable uniformly; a single radius proxy centered at each node's
// origin is symmetric and tunable per robot scale.
const DefaultGripDistance = 0.15

// ProximityDetector decides whether the gripper jaw is touching a candidate
// object, using world-space point distance against a fixed threshold.
type ProximityDetector struct {
	threshold float64
	logger    logging.Logger
}

func NewProximityDetector(threshold float64, logger logging.Logger) *ProximityDetector {
	if threshold <= 0 {
		threshold = DefaultGripDistance
	}
	return &ProximityDetector{threshold: threshold, logger: logger}
}

// Threshold returns the configured contact distance.
func (d *ProximityDetector) Threshold() float64 { return d.threshold }

// IsTouching returns the distance between the gripper link and the object
// and whether it is strictly below the threshold. The object's world matrix
// is refreshed first since application code may have moved it since the
// last render pass. If the object's world position cannot be computed the
// local position stands in rather than failing the frame.
func (d *ProximityDetector) IsTouching(gripperLink, object *Node) (float64, bool) {
	gpos, err := gripperLink.WorldPosition()
	if err != nil {
		d.logger.Debugf("gripper link world position unavailable: %v", err)
		return 0, false
	}

	object.UpdateWorldTree()
	opos, err := object.WorldPosition()
	if err != nil {
		d.logger.Debugf("world position unavailable for %q, using local: %v", object.Name, err)
		opos = object.Pose.Pos
	}

	dist := gpos.Sub(opos).Len()
	return dist, dist < d.threshold
}
