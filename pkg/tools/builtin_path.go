package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// resolvePath applies the path policy: relative paths are anchored under the
// working directory and must stay inside it; absolute paths are refused
// unless the internal allow-absolute flag is set, the path is the canonical
// config file, or the path was previously locked via validate_file_path.
func (b *Builtins) resolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}

	if filepath.IsAbs(path) {
		clean := filepath.Clean(path)
		if b.allowAbsolute {
			return clean, nil
		}
		if b.config != nil && clean == filepath.Clean(b.config.Path()) {
			return clean, nil
		}
		b.lockedMu.Lock()
		locked := b.lockedPaths[clean]
		b.lockedMu.Unlock()
		if locked {
			return clean, nil
		}
		return "", fmt.Errorf("absolute path %q refused: only relative paths under the working directory are accepted (validate the path first)", path)
	}

	base := b.workDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		base = wd
	}

	resolved := filepath.Clean(filepath.Join(base, path))
	rel, err := filepath.Rel(base, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the working directory", path)
	}
	return resolved, nil
}

// resolveForValidation resolves a candidate the way resolvePath does, except
// that absolute paths inside the working directory are accepted before they
// are locked. validate_file_path is the one entry point allowed to do this;
// every other built-in sees absolute paths only after a lock exists.
func (b *Builtins) resolveForValidation(path string) (string, error) {
	if path == "" || !filepath.IsAbs(path) {
		return b.resolvePath(path)
	}

	clean := filepath.Clean(path)
	if b.allowAbsolute {
		return clean, nil
	}
	if b.config != nil && clean == filepath.Clean(b.config.Path()) {
		return clean, nil
	}

	base := b.workDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		base = wd
	}
	rel, err := filepath.Rel(base, clean)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("absolute path %q is outside the working directory", path)
	}
	return clean, nil
}

type validateFilePathArgs struct {
	Path            string `json:"path" jsonschema:"description=File path to validate,required"`
	TaskDescription string `json:"task_description" jsonschema:"description=What the path will be used for,required"`
}

func (b *Builtins) validateFilePathTool() Tool {
	return &builtinTool{
		name: "validate_file_path",
		description: "Validate a file path before use. Returns a locked absolute path " +
			"that MUST be used verbatim in all subsequent file operations.",
		schema: SchemaFor(&validateFilePathArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			var args validateFilePathArgs
			if err := DecodeArgs(raw, &args); err != nil {
				return Failure("validate_file_path", "%v", err)
			}

			resolved, err := b.resolveForValidation(args.Path)
			if err != nil {
				return Failure("validate_file_path", "%v", err)
			}

			b.lockedMu.Lock()
			b.lockedPaths[resolved] = true
			b.lockedMu.Unlock()

			existence := "does not exist yet"
			if info, statErr := os.Stat(resolved); statErr == nil {
				if info.IsDir() {
					existence = "exists (directory)"
				} else {
					existence = fmt.Sprintf("exists (%d bytes)", info.Size())
				}
			}

			return Success("validate_file_path", fmt.Sprintf(
				"LOCKED PATH: %s\nStatus: %s\nUse this exact path in all subsequent file operations.",
				resolved, existence))
		},
	}
}
