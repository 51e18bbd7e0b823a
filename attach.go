package so_sim

// Attach reparents object from wherever it currently sits to under
// gripperLink, leaving its world-space pose visually unchanged: only the
// hierarchy and the local transform move. Returns the object's previous
// parent, which Detach needs to restore the hierarchy.
//
// The object's new local pose is its pose expressed in the gripper frame:
// position rotated into the frame by the inverse gripper rotation, rotation
// composed with the inverse, scale carried over unchanged (gripper links
// are unit-scale in every robot description we load).
//
// Both nodes must be resolved; calling with nil is a programmer error.
func Attach(gripperLink, object *Node) *Node {
	if gripperLink == nil || object == nil {
		panic("so_sim: Attach requires resolved gripper and object nodes")
	}

	original := object.Parent()

	object.UpdateWorld()
	world := object.World

	object.RemoveFromParent()

	gripperLink.UpdateWorld()
	grip := gripperLink.World
	inv := grip.Quat.Inverse()

	object.Pose = Pose{
		Pos:   inv.Rotate(world.Pos.Sub(grip.Pos)),
		Quat:  inv.Mul(world.Quat).Normalize(),
		Scale: world.Scale,
	}

	gripperLink.AddChild(object)
	// Splat loaders produce multi-node groups; without the full-subtree
	// refresh their descendants keep stale world matrices.
	object.UpdateWorldTree()
	return original
}

// Detach restores object under originalParent at its current world pose,
// wherever the arm left it, not where it was grabbed. The round trip
// Detach(Attach(object)) with no gripper motion in between reproduces the
// pre-attach world transform exactly, modulo floating point.
//
// A nil originalParent indicates a state-machine bug upstream; the call is
// a no-op.
func Detach(object, originalParent *Node) {
	if object == nil {
		panic("so_sim: Detach requires a resolved object node")
	}
	if originalParent == nil {
		return
	}

	object.UpdateWorld()
	world := object.World

	// Null the parent link before the reattachment target's transform is
	// computed; a stale parent would corrupt the world refresh below.
	object.RemoveFromParent()

	originalParent.UpdateWorld()
	object.Pose = world.RelativeTo(originalParent.World)

	originalParent.AddChild(object)
	object.UpdateWorldTree()
}
