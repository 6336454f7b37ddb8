package toolbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/martinemde/taskrouter/agentloop"
)

// FileManagerName is the registered name of the filesystem tool.
const FileManagerName = "file_manager"

// FileParams are the parameters of the file_manager tool.
type FileParams struct {
	Operation string `json:"operation" validate:"required,oneof=read write append list exists delete mkdir" jsonschema:"enum=read,enum=write,enum=append,enum=list,enum=exists,enum=delete,enum=mkdir,description=Operation to perform"`
	Path      string `json:"path" validate:"required" jsonschema:"description=File or directory path relative to the workspace"`
	Content   string `json:"content,omitempty" jsonschema:"description=Text to write or append"`
}

// FileManager reads and writes files inside a workspace directory. Paths
// that resolve outside the workspace are rejected.
type FileManager struct {
	root     string
	maxBytes int64
}

// NewFileManager creates a FileManager rooted at root. Reads larger than
// maxBytes are refused; zero means 1 MiB.
func NewFileManager(root string, maxBytes int64) (*FileManager, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	return &FileManager{root: abs, maxBytes: maxBytes}, nil
}

func (f *FileManager) Name() string { return FileManagerName }

func (f *FileManager) Description() string {
	return "Reads, writes, appends, lists, checks and deletes files in the workspace. " +
		"Use operation=write with content to create a file. Plain text input is treated as a path to read."
}

func (f *FileManager) Parameters() map[string]any { return schemaFor[FileParams]() }

func fileParamsFromRaw(raw string) FileParams {
	return FileParams{Operation: "read", Path: raw}
}

// Validate implements agentloop.Validatable.
func (f *FileManager) Validate(input agentloop.ActionInput) error {
	p, err := bind(input, fileParamsFromRaw)
	if err != nil {
		return err
	}
	_, err = f.resolve(p.Path)
	return err
}

// Root returns the workspace directory.
func (f *FileManager) Root() string { return f.root }

func (f *FileManager) resolve(path string) (string, error) {
	var full string
	if filepath.IsAbs(path) {
		full = filepath.Clean(path)
	} else {
		full = filepath.Join(f.root, path)
	}
	rel, err := filepath.Rel(f.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the workspace", path)
	}
	return full, nil
}

func (f *FileManager) Execute(ctx context.Context, input agentloop.ActionInput) (agentloop.ToolOutcome, error) {
	p, err := bind(input, fileParamsFromRaw)
	if err != nil {
		return failure("%v", err), nil
	}
	full, err := f.resolve(p.Path)
	if err != nil {
		return failure("%v", err), nil
	}

	switch p.Operation {
	case "read":
		return f.read(p.Path, full), nil
	case "write":
		return f.write(p.Path, full, p.Content, false), nil
	case "append":
		return f.write(p.Path, full, p.Content, true), nil
	case "list":
		return f.list(p.Path, full), nil
	case "exists":
		if _, err := os.Stat(full); err != nil {
			return agentloop.ToolOutcome{Success: true, Output: fmt.Sprintf("%s does not exist", p.Path)}, nil
		}
		return agentloop.ToolOutcome{Success: true, Output: fmt.Sprintf("%s exists", p.Path)}, nil
	case "delete":
		if full == f.root {
			return failure("refusing to delete the workspace root"), nil
		}
		if err := os.RemoveAll(full); err != nil {
			return failure("delete %s: %v", p.Path, err), nil
		}
		return agentloop.ToolOutcome{Success: true, Output: fmt.Sprintf("%s deleted successfully", p.Path)}, nil
	case "mkdir":
		if err := os.MkdirAll(full, 0o755); err != nil {
			return failure("mkdir %s: %v", p.Path, err), nil
		}
		return agentloop.ToolOutcome{Success: true, Output: fmt.Sprintf("Directory %s created successfully", p.Path)}, nil
	}
	return failure("unsupported operation %q", p.Operation), nil
}

func (f *FileManager) read(name, full string) agentloop.ToolOutcome {
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return failure("file %s not found", name)
	}
	if err != nil {
		return failure("read %s: %v", name, err)
	}
	if info.IsDir() {
		return failure("%s is a directory; use operation=list", name)
	}
	if info.Size() > f.maxBytes {
		return failure("%s is %d bytes, larger than the %d byte read limit", name, info.Size(), f.maxBytes)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return failure("read %s: %v", name, err)
	}
	return agentloop.ToolOutcome{
		Success:  true,
		Output:   string(data),
		Metadata: map[string]any{"path": name, "bytes": len(data)},
	}
}

func (f *FileManager) write(name, full, content string, appendMode bool) agentloop.ToolOutcome {
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return failure("create parent directory of %s: %v", name, err)
	}
	_, statErr := os.Stat(full)
	existed := statErr == nil

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		return failure("write %s: %v", name, err)
	}
	if _, err := file.WriteString(content); err != nil {
		file.Close()
		return failure("write %s: %v", name, err)
	}
	if err := file.Close(); err != nil {
		return failure("write %s: %v", name, err)
	}

	verb := "created"
	switch {
	case appendMode && existed:
		verb = "appended to"
	case existed:
		verb = "updated"
	}
	return agentloop.ToolOutcome{
		Success:  true,
		Output:   fmt.Sprintf("File %s %s successfully (%d bytes written)", name, verb, len(content)),
		Metadata: map[string]any{"path": name, "bytes": len(content)},
	}
}

func (f *FileManager) list(name, full string) agentloop.ToolOutcome {
	entries, err := os.ReadDir(full)
	if errors.Is(err, fs.ErrNotExist) {
		return failure("directory %s not found", name)
	}
	if err != nil {
		return failure("list %s: %v", name, err)
	}
	if len(entries) == 0 {
		return agentloop.ToolOutcome{Success: true, Output: fmt.Sprintf("%s is empty", name)}
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			lines = append(lines, e.Name()+"/")
			continue
		}
		size := int64(0)
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		lines = append(lines, fmt.Sprintf("%s (%d bytes)", e.Name(), size))
	}
	sort.Strings(lines)
	return agentloop.ToolOutcome{
		Success:  true,
		Output:   fmt.Sprintf("Found %d entries in %s:\n%s", len(entries), name, strings.Join(lines, "\n")),
		Metadata: map[string]any{"path": name, "entries": len(entries)},
	}
}
