package so_sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"
)

// DefaultFPS is the frame rate of the simulation loop, matching the
// original streamer's default.
const DefaultFPS = 30

// SimStatus is a point-in-time snapshot of the simulator, served by the
// capture API and recorded into capture metadata.
type SimStatus struct {
	Scene      string             `json:"scene"`
	HeldObject string             `json:"held_object,omitempty"`
	Joints     map[string]float64 `json:"joints"`
}

// Sim owns the robot, the active scene, and the grasp machine, and drives
// them from a single frame-loop goroutine. Joint updates arriving from the
// network are queued and applied on the loop, so the grasp machine never
// observes a torn joint value. The loop thread is the only mutator of the
// scene graph; everything else reads snapshots.
type Sim struct {
	cfg    SimConfig
	logger logging.Logger

	robot    *Robot
	registry *GrippableRegistry
	machine  *GraspMachine
	splats   SplatLoader

	// mu serializes frame evaluation with the HTTP-facing entry points
	// (scene switch, reset, status). Within a frame, the core itself is
	// single-threaded.
	mu    sync.RWMutex
	scene *Scene

	actions chan map[string]float64
}

// NewSim builds a simulator around a loaded robot. The initial scene is
// taken from the config.
func NewSim(cfg SimConfig, robot *Robot, splats SplatLoader, logger logging.Logger) (*Sim, error) {
	registry := NewGrippableRegistry()
	s := &Sim{
		cfg:      cfg,
		logger:   logger,
		robot:    robot,
		registry: registry,
		machine:  NewGraspMachine(cfg.Grasp, robot, registry, logger),
		splats:   splats,
		actions:  make(chan map[string]float64, 8),
	}

	spec, ok := FindSceneSpec(cfg.Scene)
	if !ok {
		return nil, fmt.Errorf("unknown scene %q", cfg.Scene)
	}
	if err := s.SetScene(spec); err != nil {
		return nil, err
	}
	return s, nil
}

// Registry returns the grippable registry for the active scene.
func (s *Sim) Registry() *GrippableRegistry { return s.registry }

// Machine returns the grasp state machine.
func (s *Sim) Machine() *GraspMachine { return s.machine }

// SetScene swaps the active scene. A held object is released first, since an
// object left parented to a gripper while its scene is destroyed would leak
// into an inconsistent hierarchy. The outgoing scene's nodes are then
// disposed and the registry replaced wholesale.
func (s *Sim) SetScene(spec SceneSpec) error {
	next, err := BuildScene(spec, s.splats, s.logger)
	if err != nil {
		return fmt.Errorf("failed to build scene %q: %w", spec.Name, err)
	}

	s.mu.Lock()
	s.machine.ForceRelease()
	old := s.scene
	s.scene = next
	s.registry.SetGrippables(next.Grippables())
	if old != nil {
		old.Dispose()
	}
	s.mu.Unlock()

	s.logger.Infof("scene switched to %q (%d objects)", spec.Name, len(next.Grippables()))
	return nil
}

// SwitchScene switches to a builtin scene by name.
func (s *Sim) SwitchScene(name string) error {
	spec, ok := FindSceneSpec(name)
	if !ok {
		return fmt.Errorf("unknown scene %q", name)
	}
	return s.SetScene(spec)
}

// ResetScene restores every free object in the active scene to its home pose.
func (s *Sim) ResetScene() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.ResetPoses()
}

// QueueActions hands a joint update to the frame loop. Updates are coalesced
// under backpressure; only the freshest sample matters for teleoperation.
func (s *Sim) QueueActions(actions map[string]float64) {
	select {
	case s.actions <- actions:
	default:
		select {
		case <-s.actions:
		default:
		}
		select {
		case s.actions <- actions:
		default:
		}
	}
}

// Step advances one frame: apply pending joint updates, refresh kinematics,
// then evaluate the grasp machine.
func (s *Sim) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := false
	for {
		select {
		case actions := <-s.actions:
			s.robot.ApplyActions(actions)
			applied = true
			continue
		default:
		}
		break
	}
	if !applied {
		// Kinematics may still have been mutated through the robot handle.
		s.robot.Root.UpdateWorldTree()
	}
	s.machine.Tick()
}

// Run drives the frame loop until the context is cancelled.
func (s *Sim) Run(ctx context.Context) {
	fps := s.cfg.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	interval := time.Second / time.Duration(fps)
	s.logger.Infof("frame loop running at %d fps", fps)
	for goutils.SelectContextOrWait(ctx, interval) {
		s.Step()
	}
	s.logger.Info("frame loop stopped")
}

// Status returns a snapshot for the capture API.
func (s *Sim) Status() SimStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sceneName := ""
	if s.scene != nil {
		sceneName = s.scene.Spec.Name
	}
	joints := make(map[string]float64)
	for _, j := range s.robot.Joints() {
		joints[j.Name] = j.Value()
	}
	st := SimStatus{Scene: sceneName, Joints: joints}
	if name, ok := s.machine.Held(); ok {
		st.HeldObject = name
	}
	return st
}
