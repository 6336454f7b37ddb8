package toolbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/martinemde/taskrouter/agentloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileManager(t *testing.T) *FileManager {
	t.Helper()
	fm, err := NewFileManager(t.TempDir(), 0)
	require.NoError(t, err)
	return fm
}

func fileOp(op, path, content string) agentloop.ActionInput {
	m := map[string]any{"operation": op, "path": path}
	if content != "" {
		m["content"] = content
	}
	return agentloop.StructuredInput(m)
}

func TestFileManagerWriteReadAppend(t *testing.T) {
	fm := newTestFileManager(t)
	ctx := context.Background()

	out, err := fm.Execute(ctx, fileOp("write", "notes/a.txt", "hello"))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "File notes/a.txt created successfully (5 bytes written)", out.Output)

	out, err = fm.Execute(ctx, fileOp("read", "notes/a.txt", ""))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "hello", out.Output)

	out, err = fm.Execute(ctx, fileOp("append", "notes/a.txt", " world"))
	require.NoError(t, err)
	assert.Contains(t, out.Output, "appended to successfully")

	out, err = fm.Execute(ctx, fileOp("write", "notes/a.txt", "replaced"))
	require.NoError(t, err)
	assert.Contains(t, out.Output, "updated successfully")

	data, err := os.ReadFile(filepath.Join(fm.Root(), "notes", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(data))
}

func TestFileManagerRawInputReads(t *testing.T) {
	fm := newTestFileManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(fm.Root(), "config.json"), []byte(`{"debug": true}`), 0o644))

	out, err := fm.Execute(context.Background(), agentloop.RawInput("config.json"))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, `{"debug": true}`, out.Output)
}

func TestFileManagerListExistsDelete(t *testing.T) {
	fm := newTestFileManager(t)
	ctx := context.Background()
	require.NoError(t, os.MkdirAll(filepath.Join(fm.Root(), "dir", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(fm.Root(), "dir", "b.txt"), []byte("abc"), 0o644))

	out, err := fm.Execute(ctx, fileOp("list", "dir", ""))
	require.NoError(t, err)
	assert.Equal(t, "Found 2 entries in dir:\nb.txt (3 bytes)\nsub/", out.Output)

	out, _ = fm.Execute(ctx, fileOp("exists", "dir/b.txt", ""))
	assert.Equal(t, "dir/b.txt exists", out.Output)

	out, _ = fm.Execute(ctx, fileOp("delete", "dir/b.txt", ""))
	assert.True(t, out.Success)
	assert.Equal(t, "dir/b.txt deleted successfully", out.Output)

	out, _ = fm.Execute(ctx, fileOp("exists", "dir/b.txt", ""))
	assert.Equal(t, "dir/b.txt does not exist", out.Output)

	out, _ = fm.Execute(ctx, fileOp("read", "dir/b.txt", ""))
	assert.False(t, out.Success)
	assert.Equal(t, "file dir/b.txt not found", out.Error)

	out, _ = fm.Execute(ctx, fileOp("mkdir", "made/here", ""))
	assert.True(t, out.Success)
	assert.DirExists(t, filepath.Join(fm.Root(), "made", "here"))
}

func TestFileManagerRejectsEscapes(t *testing.T) {
	fm := newTestFileManager(t)

	for _, path := range []string{"../outside.txt", "a/../../outside.txt", "/etc/passwd"} {
		t.Run(path, func(t *testing.T) {
			err := fm.Validate(fileOp("read", path, ""))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "outside the workspace")

			out, err := fm.Execute(context.Background(), fileOp("read", path, ""))
			require.NoError(t, err)
			assert.False(t, out.Success)
		})
	}

	out, _ := fm.Execute(context.Background(), fileOp("delete", ".", ""))
	assert.False(t, out.Success)
}

func TestFileManagerValidate(t *testing.T) {
	fm := newTestFileManager(t)

	err := fm.Validate(agentloop.StructuredInput(map[string]any{"path": "a.txt"}))
	assert.EqualError(t, err, "operation is required")

	err = fm.Validate(fileOp("shred", "a.txt", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operation must be one of")

	assert.NoError(t, fm.Validate(fileOp("write", "a.txt", "")))
}

func TestFileManagerValidationThroughRegistry(t *testing.T) {
	reg := agentloop.NewToolRegistry()
	reg.Register(newTestFileManager(t))

	_, err := reg.Execute(context.Background(), FileManagerName, agentloop.StructuredInput(map[string]any{"operation": "read"}))
	var ve *agentloop.ToolValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, err.Error(), "path is required")
}

func TestFileManagerSchema(t *testing.T) {
	schema := newTestFileManager(t).Parameters()

	assert.Equal(t, "object", schema["type"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "operation")
	assert.Contains(t, props, "path")
	assert.Contains(t, props, "content")

	required, ok := schema["required"].([]any)
	require.True(t, ok)
	assert.Contains(t, required, "operation")
	assert.Contains(t, required, "path")
	assert.NotContains(t, required, "content")
}
