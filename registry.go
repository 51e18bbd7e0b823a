package so_sim

import (
	"sync"
)

// Grippable is a named handle to a scene-graph object the gripper may pick
// up. The registry holds a non-owning reference; the scene loader owns the
// node's lifetime. Home records the object's load-time local pose for the
// external reset feature and plays no part in attach/detach correctness.
type Grippable struct {
	Name string
	Node *Node
	Home Pose

	homeParent *Node
}

// NewGrippable captures the node's current local pose and parent as the
// home configuration.
func NewGrippable(name string, node *Node) Grippable {
	node.Pose.Defaults()
	return Grippable{Name: name, Node: node, Home: node.Pose, homeParent: node.Parent()}
}

// GrippableRegistry holds the set of pickable objects for the active scene.
// The whole set is replaced on scene switch; there are no partial updates.
// Iteration order is insertion order, which makes the first-touching-wins
// rule in the grasp machine deterministic.
type GrippableRegistry struct {
	mu      sync.RWMutex
	objects []Grippable
}

func NewGrippableRegistry() *GrippableRegistry {
	return &GrippableRegistry{}
}

// SetGrippables atomically replaces the entire grippable set. Callers supply
// the complete mapping for a freshly loaded scene; the registry never
// disposes the outgoing nodes (the scene loader does).
func (r *GrippableRegistry) SetGrippables(objects []Grippable) {
	cp := make([]Grippable, len(objects))
	copy(cp, objects)
	r.mu.Lock()
	r.objects = cp
	r.mu.Unlock()
}

// All returns the registered objects in insertion order.
func (r *GrippableRegistry) All() []Grippable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := make([]Grippable, len(r.objects))
	copy(cp, r.objects)
	return cp
}

// Get returns the object with the given name.
func (r *GrippableRegistry) Get(name string) (Grippable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.objects {
		if o.Name == name {
			return o, true
		}
	}
	return Grippable{}, false
}

// Contains reports whether node is one of the registered objects.
func (r *GrippableRegistry) Contains(node *Node) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.objects {
		if o.Node == node {
			return true
		}
	}
	return false
}

// Len returns the number of registered objects.
func (r *GrippableRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}

// ResetPoses restores every registered object to its home pose. Callers
// must release a held object first; a node still parented under the gripper
// is skipped so the reset cannot teleport it inside the jaw frame.
func (r *GrippableRegistry) ResetPoses() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.objects {
		if o.Node.Disposed() || o.Node.Parent() != o.homeParent {
			continue
		}
		o.Node.Pose = o.Home
		o.Node.UpdateWorldTree()
	}
}
