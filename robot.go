package so_sim

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// JointType is the URDF joint type.
type JointType string

const (
	JointRevolute   JointType = "revolute"
	JointContinuous JointType = "continuous"
	JointPrismatic  JointType = "prismatic"
	JointFixed      JointType = "fixed"
)

// Joint is a named degree of freedom connecting two links. Setting its value
// rewrites the child link's local pose; world poses are refreshed by the
// frame loop before grasp evaluation.
type Joint struct {
	Name       string
	Type       JointType
	Axis       mgl64.Vec3
	LimitLower float64
	LimitUpper float64

	origin Pose
	child  *Node
	value  float64
}

// Value returns the joint's instantaneous scalar value.
func (j *Joint) Value() float64 { return j.value }

// ChildLink returns the link node this joint drives.
func (j *Joint) ChildLink() *Node { return j.child }

// SetValue sets the joint value, clamping to the declared limits for
// limited joint types, and updates the child link's local pose.
func (j *Joint) SetValue(v float64) {
	switch j.Type {
	case JointRevolute, JointPrismatic:
		if j.LimitUpper > j.LimitLower {
			if v < j.LimitLower {
				v = j.LimitLower
			}
			if v > j.LimitUpper {
				v = j.LimitUpper
			}
		}
	case JointFixed:
		return
	}
	j.value = v

	j.child.Pose = j.origin
	switch j.Type {
	case JointPrismatic:
		j.child.Pose.Pos = j.origin.Pos.Add(j.origin.Quat.Rotate(j.Axis.Mul(v)))
	default:
		j.child.Pose.Quat = j.origin.Quat.Mul(mgl64.QuatRotate(v, j.Axis)).Normalize()
	}
}

// Robot is a loaded manipulator: a link tree rooted at Root plus the named
// joints that articulate it.
type Robot struct {
	Name string
	Root *Node

	joints map[string]*Joint
	order  []string
}

// Joint returns the named joint.
func (r *Robot) Joint(name string) (*Joint, bool) {
	j, ok := r.joints[name]
	return j, ok
}

// Joints returns all joints in definition order.
func (r *Robot) Joints() []*Joint {
	out := make([]*Joint, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.joints[name])
	}
	return out
}

// SetJointValue sets one joint by name.
func (r *Robot) SetJointValue(name string, v float64) error {
	j, ok := r.joints[name]
	if !ok {
		return fmt.Errorf("robot %s has no joint %q", r.Name, name)
	}
	j.SetValue(v)
	return nil
}

// ApplyActions applies a joint-name to value mapping, as delivered by the
// teleop feed. Unknown names are skipped: the leader streams every motor it
// has, and a viewer may render a reduced model.
func (r *Robot) ApplyActions(actions map[string]float64) {
	for name, v := range actions {
		if j, ok := r.joints[name]; ok {
			j.SetValue(v)
		}
	}
	r.Root.UpdateWorldTree()
}

// Link returns the named link node from the robot's tree, or nil.
func (r *Robot) Link(name string) *Node {
	return r.Root.FindName(name)
}
