package so_sim

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poseApproxEqual(t *testing.T, want, got Pose, tol float64) {
	t.Helper()
	assert.InDelta(t, want.Pos.X(), got.Pos.X(), tol, "pos x")
	assert.InDelta(t, want.Pos.Y(), got.Pos.Y(), tol, "pos y")
	assert.InDelta(t, want.Pos.Z(), got.Pos.Z(), tol, "pos z")
	// q and -q are the same rotation
	dot := want.Quat.W*got.Quat.W + want.Quat.V.Dot(got.Quat.V)
	assert.InDelta(t, 1.0, math.Abs(dot), tol, "rotation")
	assert.InDelta(t, want.Scale.X(), got.Scale.X(), tol, "scale x")
	assert.InDelta(t, want.Scale.Y(), got.Scale.Y(), tol, "scale y")
	assert.InDelta(t, want.Scale.Z(), got.Scale.Z(), tol, "scale z")
}

func TestPoseComposeRelativeToRoundTrip(t *testing.T) {
	parent := Pose{
		Pos:   mgl64.Vec3{0.3, -0.1, 0.25},
		Quat:  mgl64.QuatRotate(0.7, mgl64.Vec3{0, 0, 1}).Mul(mgl64.QuatRotate(-0.3, mgl64.Vec3{1, 0, 0})).Normalize(),
		Scale: mgl64.Vec3{2, 2, 2},
	}
	local := Pose{
		Pos:   mgl64.Vec3{0.05, 0.02, -0.04},
		Quat:  mgl64.QuatRotate(1.1, mgl64.Vec3{0, 1, 0}),
		Scale: mgl64.Vec3{0.5, 0.5, 0.5},
	}

	world := parent.Compose(local)
	back := world.RelativeTo(parent)
	poseApproxEqual(t, local, back, 1e-9)

	again := parent.Compose(back)
	poseApproxEqual(t, world, again, 1e-9)
}

func TestPoseComposeIdentity(t *testing.T) {
	p := Pose{
		Pos:   mgl64.Vec3{1, 2, 3},
		Quat:  mgl64.QuatRotate(0.4, mgl64.Vec3{0, 1, 0}),
		Scale: mgl64.Vec3{1, 1, 1},
	}
	poseApproxEqual(t, p, IdentityPose().Compose(p), 1e-12)
	poseApproxEqual(t, p, p.Compose(IdentityPose()), 1e-12)
}

func TestNodeWorldUpdates(t *testing.T) {
	root := NewNode("root")
	mid := NewNodeAt("mid", mgl64.Vec3{1, 0, 0})
	leaf := NewNodeAt("leaf", mgl64.Vec3{0, 1, 0})
	root.AddChild(mid)
	mid.AddChild(leaf)

	root.UpdateWorldTree()
	assert.Equal(t, mgl64.Vec3{1, 1, 0}, leaf.World.Pos)

	mid.Pose.Pos = mgl64.Vec3{2, 0, 0}
	root.UpdateWorldTree()
	assert.Equal(t, mgl64.Vec3{2, 1, 0}, leaf.World.Pos)

	// rotating the root carries the whole subtree
	root.Pose.Quat = mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 0, 1})
	root.UpdateWorldTree()
	pos, err := leaf.WorldPosition()
	require.NoError(t, err)
	assert.InDelta(t, -1.0, pos.X(), 1e-12)
	assert.InDelta(t, 2.0, pos.Y(), 1e-12)
}

func TestNodeScaleAffectsChildPositions(t *testing.T) {
	root := NewNode("root")
	root.Pose.Scale = mgl64.Vec3{2, 2, 2}
	child := NewNodeAt("child", mgl64.Vec3{1, 0, 0})
	root.AddChild(child)
	root.UpdateWorldTree()

	assert.Equal(t, mgl64.Vec3{2, 0, 0}, child.World.Pos)
	assert.Equal(t, mgl64.Vec3{2, 2, 2}, child.World.Scale)
}

func TestAddChildPanicsOnReparent(t *testing.T) {
	a := NewNode("a")
	b := NewNode("b")
	c := NewNode("c")
	a.AddChild(c)

	assert.Panics(t, func() { b.AddChild(c) })

	c.RemoveFromParent()
	assert.NotPanics(t, func() { b.AddChild(c) })
	assert.Same(t, b, c.Parent())
	assert.Empty(t, a.Children())
}

func TestFindNameAndWalk(t *testing.T) {
	root := NewNode("root")
	arm := NewNode("arm")
	jaw := NewNode("gripper_jaw")
	root.AddChild(arm)
	arm.AddChild(jaw)

	assert.Same(t, jaw, root.FindName("gripper_jaw"))
	assert.Nil(t, root.FindName("missing"))

	var visited []string
	root.Walk(func(n *Node) bool {
		visited = append(visited, n.Name)
		return true
	})
	assert.Equal(t, []string{"root", "arm", "gripper_jaw"}, visited)
}

func TestDispose(t *testing.T) {
	root := NewNode("root")
	group := NewNode("group")
	inner := NewNode("inner")
	root.AddChild(group)
	group.AddChild(inner)

	released := false
	inner.OnDispose(func() { released = true })

	group.Dispose()

	assert.True(t, group.Disposed())
	assert.True(t, inner.Disposed())
	assert.True(t, released)
	assert.Empty(t, root.Children())

	_, err := inner.WorldPosition()
	assert.Error(t, err)

	// disposing twice is a no-op
	assert.NotPanics(t, func() { group.Dispose() })
}
