package so_sim

import (
	"go.viam.com/rdk/logging"
)

// DefaultClosedBelow is the gripper joint value under which the jaw counts
// as closed, in the joint's native units. Near fully closed for the SO-101
// gripper joint.
const DefaultClosedBelow = 0.25

// GraspConfig tunes the grasp state machine.
type GraspConfig struct {
	// GripDistance is the contact threshold in scene units (default 0.15).
	GripDistance float64 `json:"grip_distance,omitempty"`
	// ClosedBelow classifies the gripper joint: value strictly below means
	// closed. One threshold for both directions; no hysteresis.
	ClosedBelow float64 `json:"closed_below,omitempty"`
	// Match selects the gripper link and joint.
	Match GripperMatch `json:"gripper_match,omitempty"`

	// Strict lets invariant-violation panics propagate out of Tick instead
	// of being recovered and logged. Test builds only.
	Strict bool `json:"-"`
}

func (c *GraspConfig) applyDefaults() {
	if c.GripDistance == 0 {
		c.GripDistance = DefaultGripDistance
	}
	if c.ClosedBelow == 0 {
		c.ClosedBelow = DefaultClosedBelow
	}
}

// GraspMachine runs once per animation frame and moves the single held-object
// slot between Free and Held. It keeps polling regardless of state: release
// must be detected even when nothing can be grabbed.
type GraspMachine struct {
	cfg      GraspConfig
	robot    *Robot
	registry *GrippableRegistry
	locator  *GripperLocator
	detector *ProximityDetector
	logger   logging.Logger

	held           *Node
	heldName       string
	originalParent *Node

	// Previous sample and classification, kept only to avoid logging the
	// same transition every frame. Not part of correctness.
	lastValue  float64
	lastClosed bool
	haveLast   bool
}

func NewGraspMachine(cfg GraspConfig, robot *Robot, registry *GrippableRegistry, logger logging.Logger) *GraspMachine {
	cfg.applyDefaults()
	return &GraspMachine{
		cfg:      cfg,
		robot:    robot,
		registry: registry,
		locator:  NewGripperLocator(cfg.Match, logger),
		detector: NewProximityDetector(cfg.GripDistance, logger),
		logger:   logger,
	}
}

// Held returns the name of the currently held object, if any.
func (m *GraspMachine) Held() (string, bool) {
	return m.heldName, m.held != nil
}

// SetRobot swaps in a freshly loaded robot and drops the cached gripper
// resolution. A held object is released first.
func (m *GraspMachine) SetRobot(robot *Robot) {
	m.ForceRelease()
	m.robot = robot
	m.locator.Reset()
	m.haveLast = false
}

// Tick evaluates one frame: classify the gripper joint, then grab or
// release. Faults never propagate past the frame boundary (an escaped
// panic would stop the whole render loop) except in strict mode.
func (m *GraspMachine) Tick() {
	if m.cfg.Strict {
		m.tick()
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorf("grasp tick recovered: %v", r)
		}
	}()
	m.tick()
}

func (m *GraspMachine) tick() {
	if m.robot == nil {
		return
	}
	name, joint, ok := m.locator.FindGripperJoint(m.robot)
	if !ok {
		return
	}

	value := joint.Value()
	closed := value < m.cfg.ClosedBelow
	if !m.haveLast || closed != m.lastClosed {
		m.logger.Debugf("gripper joint %s value %.3f classified %s", name, value, openClosed(closed))
	}
	m.lastValue, m.lastClosed, m.haveLast = value, closed, true

	if closed {
		if m.held != nil {
			// Held→Held: the object's local transform in the gripper frame
			// is untouched, so it rides the arm's kinematics for free.
			return
		}
		m.tryGrab()
		return
	}
	if m.held != nil {
		m.release()
	}
}

// tryGrab scans the registry in insertion order and grabs the first object
// inside the contact threshold.
func (m *GraspMachine) tryGrab() {
	link := m.locator.FindGripperLink(m.robot.Root)
	if link == nil {
		return
	}
	for _, obj := range m.registry.All() {
		if obj.Node.Disposed() {
			continue
		}
		dist, touching := m.detector.IsTouching(link, obj.Node)
		if !touching {
			continue
		}
		m.originalParent = Attach(link, obj.Node)
		m.held = obj.Node
		m.heldName = obj.Name
		m.logger.Debugf("gripped %q at distance %.3f", obj.Name, dist)
		return
	}
}

// release restores the held object under its original parent at its current
// world pose, regardless of proximity.
func (m *GraspMachine) release() {
	if m.held.Disposed() {
		// Scene was torn down around us; nothing left to restore.
		m.logger.Warnf("held object %q was disposed before release", m.heldName)
	} else {
		Detach(m.held, m.originalParent)
		m.logger.Debugf("released %q", m.heldName)
	}
	m.held = nil
	m.heldName = ""
	m.originalParent = nil
}

// ForceRelease detaches a held object immediately. Scene switching must call
// this before replacing the registry so the outgoing scene never keeps a
// node parented under the gripper.
func (m *GraspMachine) ForceRelease() {
	if m.held == nil {
		return
	}
	m.release()
}

func openClosed(closed bool) string {
	if closed {
		return "closed"
	}
	return "open"
}
