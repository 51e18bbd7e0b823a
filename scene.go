package so_sim

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// Pose is a local or world transform: position, rotation as a unit
// quaternion, and per-axis scale.
type Pose struct {
	Pos   mgl64.Vec3
	Quat  mgl64.Quat
	Scale mgl64.Vec3
}

// IdentityPose returns a pose at the origin with identity rotation and unit scale.
func IdentityPose() Pose {
	return Pose{
		Quat:  mgl64.QuatIdent(),
		Scale: mgl64.Vec3{1, 1, 1},
	}
}

// Defaults fixes up a zero-valued pose so it behaves as identity.
func (p *Pose) Defaults() {
	if p.Quat.W == 0 && p.Quat.V.Len() == 0 {
		p.Quat = mgl64.QuatIdent()
	}
	if p.Scale.Len() == 0 {
		p.Scale = mgl64.Vec3{1, 1, 1}
	}
}

// Compose returns the world pose of a child with local pose l under parent pose p.
func (p Pose) Compose(l Pose) Pose {
	return Pose{
		Pos:   p.Pos.Add(p.Quat.Rotate(mulElem(p.Scale, l.Pos))),
		Quat:  p.Quat.Mul(l.Quat).Normalize(),
		Scale: mulElem(p.Scale, l.Scale),
	}
}

// RelativeTo returns the local pose that, composed under parent, reproduces
// the world pose p. It is the exact inverse of Compose.
func (p Pose) RelativeTo(parent Pose) Pose {
	inv := parent.Quat.Inverse()
	return Pose{
		Pos:   divElem(inv.Rotate(p.Pos.Sub(parent.Pos)), parent.Scale),
		Quat:  inv.Mul(p.Quat).Normalize(),
		Scale: divElem(p.Scale, parent.Scale),
	}
}

// Matrix returns the pose as a column-major TRS matrix.
func (p Pose) Matrix() mgl64.Mat4 {
	m := mgl64.Translate3D(p.Pos.X(), p.Pos.Y(), p.Pos.Z())
	m = m.Mul4(p.Quat.Mat4())
	return m.Mul4(mgl64.Scale3D(p.Scale.X(), p.Scale.Y(), p.Scale.Z()))
}

func mulElem(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{a.X() * b.X(), a.Y() * b.Y(), a.Z() * b.Z()}
}

func divElem(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{a.X() / b.X(), a.Y() / b.Y(), a.Z() / b.Z()}
}

// Node is one element of the scene hierarchy. A node's Pose is expressed
// relative to its parent; World caches the composed transform and is only
// valid after UpdateWorld or UpdateWorldTree.
//
// Grippable objects, robot links, and splat groups are all plain nodes, so
// the attach/detach code never cares which concrete kind it is moving.
type Node struct {
	Name  string
	Pose  Pose
	World Pose

	parent   *Node
	children []*Node

	disposed bool
	disposer func()
}

// NewNode returns a parentless node with identity transform.
func NewNode(name string) *Node {
	return &Node{Name: name, Pose: IdentityPose(), World: IdentityPose()}
}

// NewNodeAt returns a node translated to pos.
func NewNodeAt(name string, pos mgl64.Vec3) *Node {
	n := NewNode(name)
	n.Pose.Pos = pos
	return n
}

// Parent returns the node's current parent, or nil for a root or detached node.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the node's direct children.
func (n *Node) Children() []*Node { return n.children }

// AddChild appends c under n. c must not currently have a parent; callers
// reparenting a node remove it from its old parent first so the hierarchy
// mutation is always explicit.
func (n *Node) AddChild(c *Node) {
	if c.parent != nil {
		panic(fmt.Sprintf("scene: node %q already has parent %q", c.Name, c.parent.Name))
	}
	c.parent = n
	n.children = append(n.children, c)
}

// RemoveFromParent unlinks n from its parent's child list and nulls the
// parent reference. No-op for a root node.
func (n *Node) RemoveFromParent() {
	p := n.parent
	if p == nil {
		return
	}
	for i, c := range p.children {
		if c == n {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	n.parent = nil
}

// UpdateWorld recomputes the node's world pose from its ancestor chain,
// refreshing each ancestor on the way up. Local poses changed since the
// last call are picked up.
func (n *Node) UpdateWorld() {
	n.Pose.Defaults()
	if n.parent == nil {
		n.World = n.Pose
		return
	}
	n.parent.UpdateWorld()
	n.World = n.parent.World.Compose(n.Pose)
}

// UpdateWorldTree refreshes the world pose of n and every descendant.
// Required after reparenting: loaders produce multi-node groups whose
// descendants would otherwise keep stale world transforms.
func (n *Node) UpdateWorldTree() {
	n.UpdateWorld()
	n.updateKidsWorld()
}

func (n *Node) updateKidsWorld() {
	for _, c := range n.children {
		c.Pose.Defaults()
		c.World = n.World.Compose(c.Pose)
		c.updateKidsWorld()
	}
}

// WorldPosition refreshes and returns the node's world-space position.
// Fails once the node has been disposed.
func (n *Node) WorldPosition() (mgl64.Vec3, error) {
	if n.disposed {
		return mgl64.Vec3{}, fmt.Errorf("scene: node %q is disposed", n.Name)
	}
	n.UpdateWorld()
	return n.World.Pos, nil
}

// WorldMatrix refreshes and returns the node's composed world matrix.
func (n *Node) WorldMatrix() mgl64.Mat4 {
	n.UpdateWorld()
	return n.World.Matrix()
}

// Walk visits n and its descendants in depth-first order. Returning false
// from fn skips the subtree below that node.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// FindName returns the first node in the subtree whose name matches, or nil.
func (n *Node) FindName(name string) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if found != nil {
			return false
		}
		if c.Name == name {
			found = c
			return false
		}
		return true
	})
	return found
}

// OnDispose registers a hook run when the node is disposed. Splat-backed
// objects use this to free their renderer-owned buffers.
func (n *Node) OnDispose(fn func()) { n.disposer = fn }

// Disposed reports whether Dispose has run on this node.
func (n *Node) Disposed() bool { return n.disposed }

// Dispose detaches the subtree from its parent, runs dispose hooks
// bottom-up, and marks every node in the subtree unusable.
func (n *Node) Dispose() {
	if n.disposed {
		return
	}
	n.RemoveFromParent()
	for _, c := range n.children {
		c.parent = nil
		c.Dispose()
	}
	n.children = nil
	if n.disposer != nil {
		n.disposer()
		n.disposer = nil
	}
	n.disposed = true
}
