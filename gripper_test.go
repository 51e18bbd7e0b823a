package so_sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

func TestGripperMatchHeuristic(t *testing.T) {
	m := DefaultGripperMatch()

	tests := []struct {
		name    string
		matches bool
	}{
		{"gripper", true},
		{"gripper_jaw", true},
		{"Gripper_Link", true},
		{"moving_jaw_gripper", true},
		{"gripper_frame_link", false},
		{"gripper_frame_joint", false},
		{"camera_mount_gripper", false},
		{"wrist_roll", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.matches, m.matches(tt.name))
		})
	}
}

func TestFindGripperLink(t *testing.T) {
	logger := logging.NewTestLogger(t)
	robot := newTestRobot(t)

	t.Run("heuristic resolves the jaw, not the frame", func(t *testing.T) {
		l := NewGripperLocator(GripperMatch{}, logger)
		link := l.FindGripperLink(robot.Root)
		require.NotNil(t, link)
		assert.Equal(t, "gripper_jaw", link.Name)

		// second call returns the cached node
		assert.Same(t, link, l.FindGripperLink(robot.Root))
	})

	t.Run("explicit link name wins", func(t *testing.T) {
		l := NewGripperLocator(GripperMatch{LinkName: "upper_arm"}, logger)
		link := l.FindGripperLink(robot.Root)
		require.NotNil(t, link)
		assert.Equal(t, "upper_arm", link.Name)
	})

	t.Run("miss is cached", func(t *testing.T) {
		l := NewGripperLocator(GripperMatch{LinkName: "nonexistent"}, logger)
		assert.Nil(t, l.FindGripperLink(robot.Root))
		assert.Nil(t, l.FindGripperLink(robot.Root))
	})

	t.Run("nil root", func(t *testing.T) {
		l := NewGripperLocator(GripperMatch{}, logger)
		assert.Nil(t, l.FindGripperLink(nil))
	})
}

func TestFindGripperJoint(t *testing.T) {
	logger := logging.NewTestLogger(t)
	robot := newTestRobot(t)

	t.Run("heuristic skips the fixed frame joint", func(t *testing.T) {
		l := NewGripperLocator(GripperMatch{}, logger)
		name, j, ok := l.FindGripperJoint(robot)
		require.True(t, ok)
		assert.Equal(t, "gripper", name)
		assert.Equal(t, JointRevolute, j.Type)
	})

	t.Run("explicit fixed joint is rejected", func(t *testing.T) {
		l := NewGripperLocator(GripperMatch{JointName: "gripper_frame_joint"}, logger)
		_, _, ok := l.FindGripperJoint(robot)
		assert.False(t, ok)
	})

	t.Run("explicit joint name", func(t *testing.T) {
		l := NewGripperLocator(GripperMatch{JointName: "shoulder_pan"}, logger)
		name, _, ok := l.FindGripperJoint(robot)
		require.True(t, ok)
		assert.Equal(t, "shoulder_pan", name)
	})

	t.Run("reset drops the cache", func(t *testing.T) {
		l := NewGripperLocator(GripperMatch{}, logger)
		_, _, ok := l.FindGripperJoint(robot)
		require.True(t, ok)

		l.Reset()
		other := newTestRobot(t)
		name, j, ok := l.FindGripperJoint(other)
		require.True(t, ok)
		assert.Equal(t, "gripper", name)
		otherJoint, _ := other.Joint("gripper")
		assert.Same(t, otherJoint, j)
	})

	t.Run("nil robot", func(t *testing.T) {
		l := NewGripperLocator(GripperMatch{}, logger)
		_, _, ok := l.FindGripperJoint(nil)
		assert.False(t, ok)
	})
}
