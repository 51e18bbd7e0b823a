package so_sim

import (
	"strings"

	"go.viam.com/rdk/logging"
)

// GripperMatch decides which link and joint form the gripper. Explicit names
// take precedence; the substring heuristic is the fallback for robot
// descriptions that don't declare them. SO-101 has a fixed
// "gripper_frame_joint" sharing a substring with the actuated "gripper"
// joint, so fixed joints and frame/mount names are excluded from the
// heuristic.
type GripperMatch struct {
	LinkName  string `json:"link_name,omitempty"`
	JointName string `json:"joint_name,omitempty"`

	Pattern         string   `json:"pattern,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
}

// DefaultGripperMatch matches the SO-101 naming convention.
func DefaultGripperMatch() GripperMatch {
	return GripperMatch{
		Pattern:         "gripper",
		ExcludePatterns: []string{"frame", "mount"},
	}
}

func (m GripperMatch) matches(name string) bool {
	lower := strings.ToLower(name)
	if !strings.Contains(lower, strings.ToLower(m.Pattern)) {
		return false
	}
	for _, ex := range m.ExcludePatterns {
		if strings.Contains(lower, strings.ToLower(ex)) {
			return false
		}
	}
	return true
}

// GripperLocator resolves the scene-graph node for the gripper jaw and the
// actuated gripper joint. Both lookups are cached for the lifetime of the
// loaded robot; call Reset after a robot reload.
type GripperLocator struct {
	match  GripperMatch
	logger logging.Logger

	link        *Node
	linkMissing bool

	jointName    string
	joint        *Joint
	jointMissing bool
}

func NewGripperLocator(match GripperMatch, logger logging.Logger) *GripperLocator {
	if match.Pattern == "" && match.LinkName == "" && match.JointName == "" {
		match = DefaultGripperMatch()
	}
	return &GripperLocator{match: match, logger: logger}
}

// Reset drops the cached resolutions.
func (l *GripperLocator) Reset() {
	l.link = nil
	l.linkMissing = false
	l.jointName = ""
	l.joint = nil
	l.jointMissing = false
}

// FindGripperLink returns the node representing the gripper's physical jaw,
// or nil if no link matches. A miss is logged once and then cached so the
// tree is not re-traversed every frame.
func (l *GripperLocator) FindGripperLink(robotRoot *Node) *Node {
	if l.link != nil || l.linkMissing {
		return l.link
	}
	if robotRoot == nil {
		return nil
	}

	if l.match.LinkName != "" {
		l.link = robotRoot.FindName(l.match.LinkName)
		if l.link == nil {
			l.linkMissing = true
			l.logger.Warnf("configured gripper link %q not found in robot tree", l.match.LinkName)
		}
		return l.link
	}

	robotRoot.Walk(func(n *Node) bool {
		if l.link != nil {
			return false
		}
		if l.match.matches(n.Name) {
			l.link = n
			return false
		}
		return true
	})
	if l.link == nil {
		l.linkMissing = true
		l.logger.Warnf("no link matching %q found; grasp detection disabled", l.match.Pattern)
	} else {
		l.logger.Debugf("resolved gripper link %q", l.link.Name)
	}
	return l.link
}

// FindGripperJoint returns the actuated gripper joint. Fixed joints are
// never accepted, and the frame/mount exclusion keeps a mounting frame from
// shadowing the moving jaw. A miss disables grasp detection for this robot
// load (logged once, not fatal).
func (l *GripperLocator) FindGripperJoint(robot *Robot) (string, *Joint, bool) {
	if l.joint != nil {
		return l.jointName, l.joint, true
	}
	if l.jointMissing || robot == nil {
		return "", nil, false
	}

	if l.match.JointName != "" {
		j, ok := robot.Joint(l.match.JointName)
		if !ok || j.Type == JointFixed {
			l.jointMissing = true
			l.logger.Warnf("configured gripper joint %q not usable; grasp detection disabled", l.match.JointName)
			return "", nil, false
		}
		l.jointName, l.joint = l.match.JointName, j
		return l.jointName, l.joint, true
	}

	for _, j := range robot.Joints() {
		if j.Type == JointFixed {
			continue
		}
		if l.match.matches(j.Name) {
			l.jointName, l.joint = j.Name, j
			l.logger.Debugf("resolved gripper joint %q (type %s)", j.Name, j.Type)
			return l.jointName, l.joint, true
		}
	}

	l.jointMissing = true
	l.logger.Warnf("no actuated joint matching %q found; grasp detection disabled", l.match.Pattern)
	return "", nil, false
}
