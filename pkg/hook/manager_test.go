package hook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRemoveHook(t *testing.T) {
	m := NewManager()

	require.NoError(t, m.AddHook(Hook{Type: PreDownload, Content: `x := 1`}))
	assert.True(t, m.HasHook(PreDownload))
	assert.False(t, m.HasHook(PostDownload))

	require.NoError(t, m.RemoveHook(PreDownload))
	assert.False(t, m.HasHook(PreDownload))
}

func TestAddHook_EmptyType(t *testing.T) {
	m := NewManager()
	assert.ErrorIs(t, m.AddHook(Hook{Content: `x := 1`}), ErrHookTypeEmpty)
	assert.ErrorIs(t, m.RemoveHook(""), ErrHookTypeEmpty)
}

func TestExecute(t *testing.T) {
	t.Run("no hook registered is a no-op", func(t *testing.T) {
		m := NewManager()
		assert.NoError(t, m.Execute(PreDownload, Context{}))
	})

	t.Run("script sees the download context", func(t *testing.T) {
		m := NewManager()
		require.NoError(t, m.AddHook(Hook{
			Type: PostDownload,
			Content: `
err := ""
if productId != "p-1" { err = "wrong product id" }
if productName != "scene.zip" { err = "wrong product name" }
if path == "" { err = "missing path" }
`,
		}))

		err := m.Execute(PostDownload, Context{
			ProductID:   "p-1",
			ProductName: "scene.zip",
			Path:        "/data/scene.zip",
		})
		assert.NoError(t, err)
	})

	t.Run("extra vars are injected", func(t *testing.T) {
		m := NewManager()
		require.NoError(t, m.AddHook(Hook{
			Type:    PreDownload,
			Content: `err := ""; if attempt != 2 { err = "wrong attempt" }`,
		}))

		err := m.Execute(PreDownload, Context{Vars: map[string]interface{}{"attempt": 2}})
		assert.NoError(t, err)
	})

	t.Run("script failure via err variable", func(t *testing.T) {
		m := NewManager()
		require.NoError(t, m.AddHook(Hook{
			Type:    PreDownload,
			Content: `err := "disk is full"`,
		}))

		err := m.Execute(PreDownload, Context{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrHookScript)
		assert.Contains(t, err.Error(), "disk is full")
	})

	t.Run("compile error fails execution", func(t *testing.T) {
		m := NewManager()
		require.NoError(t, m.AddHook(Hook{
			Type:    PreDownload,
			Content: `this is not tengo (`,
		}))

		err := m.Execute(PreDownload, Context{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrHookExecution)
	})

	t.Run("stdlib modules are importable", func(t *testing.T) {
		m := NewManager()
		require.NoError(t, m.AddHook(Hook{
			Type:    PostDownload,
			Content: `strings := import("strings"); err := ""; if !strings.has_suffix(path, ".zip") { err = "unexpected extension" }`,
		}))

		err := m.Execute(PostDownload, Context{Path: "/data/scene.zip"})
		assert.NoError(t, err)
	})
}
