package so_sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

type recordingSplatLoader struct {
	loaded   []string
	released []string
	fail     bool
}

func (l *recordingSplatLoader) Load(asset string) (func(), error) {
	if l.fail {
		return nil, errors.New("renderer unavailable")
	}
	l.loaded = append(l.loaded, asset)
	return func() { l.released = append(l.released, asset) }, nil
}

func TestBuiltinScenes(t *testing.T) {
	scenes := BuiltinScenes()
	require.Len(t, scenes, 3)

	for _, spec := range scenes {
		found, ok := FindSceneSpec(spec.Name)
		require.True(t, ok, "scene %s", spec.Name)
		assert.Equal(t, spec.Name, found.Name)
		assert.NotEmpty(t, found.Objects)
	}

	_, ok := FindSceneSpec("warehouse")
	assert.False(t, ok)
}

func TestBuildSceneMeshes(t *testing.T) {
	logger := logging.NewTestLogger(t)
	spec, ok := FindSceneSpec("table")
	require.True(t, ok)

	sc, err := BuildScene(spec, nil, logger)
	require.NoError(t, err)
	defer sc.Dispose()

	assert.Len(t, sc.Grippables(), 3)
	for i, g := range sc.Grippables() {
		assert.Equal(t, spec.Objects[i].Name, g.Name)
		assert.Same(t, sc.Root, g.Node.Parent())
	}

	cube := sc.Root.FindName("cube")
	require.NotNil(t, cube)
	pos, err := cube.WorldPosition()
	require.NoError(t, err)
	assert.Equal(t, spec.Objects[0].Pos[0], pos.X())
}

func TestBuildSceneSplats(t *testing.T) {
	logger := logging.NewTestLogger(t)
	loader := &recordingSplatLoader{}
	spec, ok := FindSceneSpec("lunar")
	require.True(t, ok)

	sc, err := BuildScene(spec, loader, logger)
	require.NoError(t, err)
	assert.Equal(t, []string{"lunar_rock.splat", "lunar_scoop.splat"}, loader.loaded)

	// each splat is a group wrapping the renderer-owned node
	rock := sc.Root.FindName("rock")
	require.NotNil(t, rock)
	require.Len(t, rock.Children(), 1)
	assert.Equal(t, "rock_splat", rock.Children()[0].Name)

	sc.Dispose()
	assert.ElementsMatch(t, loader.loaded, loader.released)
}

func TestBuildSceneLoaderFailure(t *testing.T) {
	logger := logging.NewTestLogger(t)
	spec, ok := FindSceneSpec("lunar")
	require.True(t, ok)

	_, err := BuildScene(spec, &recordingSplatLoader{fail: true}, logger)
	assert.Error(t, err)
}

func TestBuildSceneUnknownKind(t *testing.T) {
	logger := logging.NewTestLogger(t)
	spec := SceneSpec{
		Name:    "bad",
		Objects: []ObjectSpec{{Name: "x", Kind: ObjectKind("hologram")}},
	}
	_, err := BuildScene(spec, nil, logger)
	assert.Error(t, err)
}
