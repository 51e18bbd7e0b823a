package so_sim

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"go.viam.com/rdk/logging"
)

// ObjectKind distinguishes rigid mesh objects from Gaussian-splat volumes.
// Splats load through an external renderer and arrive as multi-node groups
// with disposable resources; meshes are single nodes. Both behave as plain
// scene-graph nodes once loaded.
type ObjectKind string

const (
	ObjectMesh  ObjectKind = "mesh"
	ObjectSplat ObjectKind = "splat"
)

// ObjectSpec describes one pickable entity in a scene.
type ObjectSpec struct {
	Name  string     `json:"name"`
	Kind  ObjectKind `json:"kind"`
	Asset string     `json:"asset,omitempty"`
	Pos   [3]float64 `json:"pos"`
	Scale float64    `json:"scale,omitempty"`
}

// SceneSpec describes a complete swappable scene.
type SceneSpec struct {
	Name    string       `json:"name"`
	Objects []ObjectSpec `json:"objects"`
}

// BuiltinScenes returns the demo scene catalog: table objects, lunar
// rock/tool splats, and the cat/car scene.
func BuiltinScenes() []SceneSpec {
	return []SceneSpec{
		{
			Name: "table",
			Objects: []ObjectSpec{
				{Name: "cube", Kind: ObjectMesh, Pos: [3]float64{0.18, 0.02, 0.08}, Scale: 0.04},
				{Name: "ball", Kind: ObjectMesh, Pos: [3]float64{0.22, 0.02, -0.06}, Scale: 0.03},
				{Name: "mug", Kind: ObjectMesh, Pos: [3]float64{0.14, 0.04, -0.12}, Scale: 0.05},
			},
		},
		{
			Name: "lunar",
			Objects: []ObjectSpec{
				{Name: "rock", Kind: ObjectSplat, Asset: "lunar_rock.splat", Pos: [3]float64{0.20, 0.03, 0.05}, Scale: 0.06},
				{Name: "scoop", Kind: ObjectSplat, Asset: "lunar_scoop.splat", Pos: [3]float64{0.16, 0.02, -0.10}, Scale: 0.08},
			},
		},
		{
			Name: "cat_car",
			Objects: []ObjectSpec{
				{Name: "cat", Kind: ObjectSplat, Asset: "cat.splat", Pos: [3]float64{0.19, 0.05, 0.00}, Scale: 0.10},
				{Name: "car", Kind: ObjectSplat, Asset: "car.splat", Pos: [3]float64{0.25, 0.02, -0.08}, Scale: 0.07},
			},
		},
	}
}

// FindSceneSpec returns the builtin scene with the given name.
func FindSceneSpec(name string) (SceneSpec, bool) {
	for _, s := range BuiltinScenes() {
		if s.Name == name {
			return s, true
		}
	}
	return SceneSpec{}, false
}

// SplatLoader is the external splat-rendering collaborator: it loads a
// visual asset and returns a release function for its renderer-owned
// resources.
type SplatLoader interface {
	Load(asset string) (release func(), err error)
}

// noopSplatLoader stands in when no renderer is attached (headless runs).
type noopSplatLoader struct {
	logger logging.Logger
}

func (l noopSplatLoader) Load(asset string) (func(), error) {
	l.logger.Debugf("loaded splat asset %s (headless)", asset)
	return func() {
		l.logger.Debugf("released splat asset %s", asset)
	}, nil
}

// Scene is a loaded scene: a root node owning all object nodes, plus the
// grippable handles handed to the registry.
type Scene struct {
	Spec       SceneSpec
	Root       *Node
	grippables []Grippable
}

// Grippables returns the scene's pickable objects in catalog order.
func (s *Scene) Grippables() []Grippable {
	return s.grippables
}

// Dispose tears down the scene's entire node tree and releases splat
// resources. Objects still parented elsewhere (a bug upstream) are not
// reached; callers release held objects before disposing.
func (s *Scene) Dispose() {
	s.Root.Dispose()
}

// BuildScene instantiates a scene spec into a node tree. Splat objects
// become a group wrapping the renderer-owned node, so grabbing one moves
// the whole group.
func BuildScene(spec SceneSpec, splats SplatLoader, logger logging.Logger) (*Scene, error) {
	if splats == nil {
		splats = noopSplatLoader{logger: logger}
	}

	root := NewNode("scene_root")
	sc := &Scene{Spec: spec, Root: root}

	for _, def := range spec.Objects {
		scale := def.Scale
		if scale == 0 {
			scale = 1
		}
		pos := mgl64.Vec3{def.Pos[0], def.Pos[1], def.Pos[2]}

		var obj *Node
		switch def.Kind {
		case ObjectMesh:
			obj = NewNodeAt(def.Name, pos)
			obj.Pose.Scale = mgl64.Vec3{scale, scale, scale}
		case ObjectSplat:
			release, err := splats.Load(def.Asset)
			if err != nil {
				root.Dispose()
				return nil, fmt.Errorf("failed to load splat %q for %q: %w", def.Asset, def.Name, err)
			}
			obj = NewNodeAt(def.Name, pos)
			inner := NewNode(def.Name + "_splat")
			inner.Pose.Scale = mgl64.Vec3{scale, scale, scale}
			inner.OnDispose(release)
			obj.AddChild(inner)
		default:
			root.Dispose()
			return nil, fmt.Errorf("object %q has unknown kind %q", def.Name, def.Kind)
		}

		root.AddChild(obj)
		sc.grippables = append(sc.grippables, NewGrippable(def.Name, obj))
	}

	root.UpdateWorldTree()
	logger.Debugf("built scene %q with %d grippable objects", spec.Name, len(sc.grippables))
	return sc, nil
}
