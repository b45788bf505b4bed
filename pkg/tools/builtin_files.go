package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type readFileArgs struct {
	Path   string `json:"path" jsonschema:"description=File path to read,required"`
	Offset int    `json:"offset,omitempty" jsonschema:"description=1-indexed first line to return"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum number of lines to return"`
}

func (b *Builtins) readFileTool() Tool {
	return &builtinTool{
		name:        "read_file",
		description: "Read a file, returning its content with line numbers. Supports a 1-indexed offset and a line limit.",
		schema:      SchemaFor(&readFileArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			var args readFileArgs
			if err := DecodeArgs(raw, &args); err != nil {
				return Failure("read_file", "%v", err)
			}

			path, err := b.resolvePath(args.Path)
			if err != nil {
				return Failure("read_file", "%v", err)
			}

			info, err := os.Stat(path)
			if err != nil {
				if os.IsNotExist(err) {
					return Failure("read_file", "file not found: %s", args.Path)
				}
				return Failure("read_file", "stat %s: %v", args.Path, err)
			}
			if info.IsDir() {
				return Failure("read_file", "%s is not a file (it is a directory)", args.Path)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return Failure("read_file", "read %s: %v", args.Path, err)
			}

			lines := strings.Split(string(data), "\n")
			// A trailing newline produces one empty phantom line.
			if len(lines) > 0 && lines[len(lines)-1] == "" {
				lines = lines[:len(lines)-1]
			}

			start := 0
			if args.Offset > 0 {
				if args.Offset > len(lines) {
					return Failure("read_file", "offset %d exceeds file length (%d lines) for path %s",
						args.Offset, len(lines), args.Path)
				}
				start = args.Offset - 1
			}
			end := len(lines)
			if args.Limit > 0 && start+args.Limit < end {
				end = start + args.Limit
			}

			var sb strings.Builder
			for i := start; i < end; i++ {
				fmt.Fprintf(&sb, "%6d\t%s\n", i+1, lines[i])
			}
			return Success("read_file", sb.String())
		},
	}
}

type writeFileArgs struct {
	Path    string `json:"path" jsonschema:"description=File path to write,required"`
	Content string `json:"content" jsonschema:"description=Full file content,required"`
}

func (b *Builtins) writeFileTool() Tool {
	return &builtinTool{
		name:         "write_file",
		description:  "Write content to a file, creating parent directories as needed. Overwrites existing content.",
		writeCapable: true,
		schema:       SchemaFor(&writeFileArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			var args writeFileArgs
			if err := DecodeArgs(raw, &args); err != nil {
				return Failure("write_file", "%v", err)
			}

			path, err := b.resolvePath(args.Path)
			if err != nil {
				return Failure("write_file", "%v", err)
			}

			mu := b.lockForPath(path)
			mu.Lock()
			defer mu.Unlock()

			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return Failure("write_file", "create parent directory: %v", err)
			}
			if err := os.WriteFile(path, []byte(args.Content), 0644); err != nil {
				return Failure("write_file", "write %s: %v", args.Path, err)
			}
			return Success("write_file", fmt.Sprintf("Wrote %d bytes to %s", len(args.Content), args.Path))
		},
	}
}

type patchFileArgs struct {
	Path  string `json:"path" jsonschema:"description=File path to patch,required"`
	Patch string `json:"patch" jsonschema:"description=Patch in SEARCH/REPLACE block format,required"`
}

const (
	searchMarker  = "<<<<<<< SEARCH"
	dividerMarker = "======="
	replaceMarker = ">>>>>>> REPLACE"
)

func (b *Builtins) patchFileTool() Tool {
	return &builtinTool{
		name: "patch_file",
		description: "Apply a patch to a file. The patch is one or more blocks of the form:\n" +
			searchMarker + "\n<exact existing text>\n" + dividerMarker + "\n<replacement text>\n" + replaceMarker,
		writeCapable: true,
		schema:       SchemaFor(&patchFileArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			var args patchFileArgs
			if err := DecodeArgs(raw, &args); err != nil {
				return Failure("patch_file", "%v", err)
			}

			path, err := b.resolvePath(args.Path)
			if err != nil {
				return Failure("patch_file", "%v", err)
			}

			mu := b.lockForPath(path)
			mu.Lock()
			defer mu.Unlock()

			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					return Failure("patch_file", "file not found: %s", args.Path)
				}
				return Failure("patch_file", "read %s: %v", args.Path, err)
			}
			content := string(data)

			blocks, err := parsePatchBlocks(args.Patch)
			if err != nil {
				return Failure("patch_file", "%v", err)
			}
			if len(blocks) == 0 {
				return Failure("patch_file", "patch contains no %s blocks", searchMarker)
			}

			applied := 0
			for _, blk := range blocks {
				if !strings.Contains(content, blk.search) {
					return Failure("patch_file", "search text not found in %s:\n%s", args.Path, blk.search)
				}
				content = strings.Replace(content, blk.search, blk.replace, 1)
				applied++
			}

			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return Failure("patch_file", "write %s: %v", args.Path, err)
			}
			return Success("patch_file", fmt.Sprintf("Applied %d block(s) to %s", applied, args.Path))
		},
	}
}

type patchBlock struct {
	search  string
	replace string
}

func parsePatchBlocks(patch string) ([]patchBlock, error) {
	var blocks []patchBlock
	rest := patch
	for {
		start := strings.Index(rest, searchMarker)
		if start < 0 {
			break
		}
		rest = rest[start+len(searchMarker):]

		div := strings.Index(rest, "\n"+dividerMarker)
		if div < 0 {
			return nil, fmt.Errorf("malformed patch: missing %s divider", dividerMarker)
		}
		search := strings.TrimPrefix(rest[:div], "\n")

		rest = rest[div+len(dividerMarker)+1:]
		end := strings.Index(rest, replaceMarker)
		if end < 0 {
			return nil, fmt.Errorf("malformed patch: missing %s terminator", replaceMarker)
		}
		replace := strings.TrimPrefix(rest[:end], "\n")
		replace = strings.TrimSuffix(replace, "\n")

		blocks = append(blocks, patchBlock{search: search, replace: replace})
		rest = rest[end+len(replaceMarker):]
	}
	return blocks, nil
}

type pathOnlyArgs struct {
	Path string `json:"path" jsonschema:"description=Target path,required"`
}

func (b *Builtins) createDirectoryTool() Tool {
	return &builtinTool{
		name:         "create_directory",
		description:  "Create a directory, including any missing parents.",
		writeCapable: true,
		schema:       SchemaFor(&pathOnlyArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			var args pathOnlyArgs
			if err := DecodeArgs(raw, &args); err != nil {
				return Failure("create_directory", "%v", err)
			}
			path, err := b.resolvePath(args.Path)
			if err != nil {
				return Failure("create_directory", "%v", err)
			}
			if err := os.MkdirAll(path, 0755); err != nil {
				return Failure("create_directory", "create %s: %v", args.Path, err)
			}
			return Success("create_directory", fmt.Sprintf("Created directory %s", args.Path))
		},
	}
}

func (b *Builtins) deleteFileTool() Tool {
	return &builtinTool{
		name:         "delete_file",
		description:  "Delete a single file. Directories are refused.",
		writeCapable: true,
		schema:       SchemaFor(&pathOnlyArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			var args pathOnlyArgs
			if err := DecodeArgs(raw, &args); err != nil {
				return Failure("delete_file", "%v", err)
			}
			path, err := b.resolvePath(args.Path)
			if err != nil {
				return Failure("delete_file", "%v", err)
			}

			mu := b.lockForPath(path)
			mu.Lock()
			defer mu.Unlock()

			info, err := os.Stat(path)
			if err != nil {
				if os.IsNotExist(err) {
					return Failure("delete_file", "file not found: %s", args.Path)
				}
				return Failure("delete_file", "stat %s: %v", args.Path, err)
			}
			if info.IsDir() {
				return Failure("delete_file", "%s is a directory, not a file", args.Path)
			}
			if err := os.Remove(path); err != nil {
				return Failure("delete_file", "delete %s: %v", args.Path, err)
			}
			return Success("delete_file", fmt.Sprintf("Deleted %s", args.Path))
		},
	}
}

type listFilesArgs struct {
	Path      string `json:"path" jsonschema:"description=Directory to list,required"`
	Pattern   string `json:"pattern,omitempty" jsonschema:"description=Glob pattern matched against file names"`
	Recursive bool   `json:"recursive,omitempty" jsonschema:"description=Descend into subdirectories"`
}

func (b *Builtins) listFilesTool() Tool {
	return &builtinTool{
		name:        "list_files",
		description: "List files in a directory, optionally filtered by a glob pattern and recursive.",
		schema:      SchemaFor(&listFilesArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			var args listFilesArgs
			if err := DecodeArgs(raw, &args); err != nil {
				return Failure("list_files", "%v", err)
			}
			root, err := b.resolvePath(args.Path)
			if err != nil {
				return Failure("list_files", "%v", err)
			}

			var files []string
			walkErr := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					if p != root && !args.Recursive {
						return filepath.SkipDir
					}
					return nil
				}
				if args.Pattern != "" {
					ok, matchErr := filepath.Match(args.Pattern, d.Name())
					if matchErr != nil {
						return fmt.Errorf("invalid pattern %q: %w", args.Pattern, matchErr)
					}
					if !ok {
						return nil
					}
				}
				rel, relErr := filepath.Rel(root, p)
				if relErr != nil {
					rel = p
				}
				files = append(files, rel)
				return nil
			})
			if walkErr != nil {
				return Failure("list_files", "list %s: %v", args.Path, walkErr)
			}

			sort.Strings(files)
			if len(files) == 0 {
				return Success("list_files", "No matching files.")
			}
			return Success("list_files", strings.Join(files, "\n"))
		},
	}
}

func (b *Builtins) listDirectoriesTool() Tool {
	return &builtinTool{
		name:        "list_directories",
		description: "List the immediate subdirectories of a directory.",
		schema:      SchemaFor(&pathOnlyArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			var args pathOnlyArgs
			if err := DecodeArgs(raw, &args); err != nil {
				return Failure("list_directories", "%v", err)
			}
			path, err := b.resolvePath(args.Path)
			if err != nil {
				return Failure("list_directories", "%v", err)
			}

			entries, err := os.ReadDir(path)
			if err != nil {
				return Failure("list_directories", "list %s: %v", args.Path, err)
			}
			var dirs []string
			for _, e := range entries {
				if e.IsDir() {
					dirs = append(dirs, e.Name())
				}
			}
			sort.Strings(dirs)
			if len(dirs) == 0 {
				return Success("list_directories", "No subdirectories.")
			}
			return Success("list_directories", strings.Join(dirs, "\n"))
		},
	}
}

func (b *Builtins) fileExistsTool() Tool {
	return &builtinTool{
		name:        "file_exists",
		description: "Report whether a path exists and whether it is a file or directory.",
		schema:      SchemaFor(&pathOnlyArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			var args pathOnlyArgs
			if err := DecodeArgs(raw, &args); err != nil {
				return Failure("file_exists", "%v", err)
			}
			path, err := b.resolvePath(args.Path)
			if err != nil {
				return Failure("file_exists", "%v", err)
			}

			info, err := os.Stat(path)
			if err != nil {
				if os.IsNotExist(err) {
					return Success("file_exists", fmt.Sprintf("%s does not exist", args.Path))
				}
				return Failure("file_exists", "stat %s: %v", args.Path, err)
			}
			kind := "file"
			if info.IsDir() {
				kind = "directory"
			}
			return Success("file_exists", fmt.Sprintf("%s exists (%s)", args.Path, kind))
		},
	}
}

func (b *Builtins) getFileInfoTool() Tool {
	return &builtinTool{
		name:        "get_file_info",
		description: "Return size, permissions and modification time for a path.",
		schema:      SchemaFor(&pathOnlyArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			var args pathOnlyArgs
			if err := DecodeArgs(raw, &args); err != nil {
				return Failure("get_file_info", "%v", err)
			}
			path, err := b.resolvePath(args.Path)
			if err != nil {
				return Failure("get_file_info", "%v", err)
			}

			info, err := os.Stat(path)
			if err != nil {
				if os.IsNotExist(err) {
					return Failure("get_file_info", "file not found: %s", args.Path)
				}
				return Failure("get_file_info", "stat %s: %v", args.Path, err)
			}
			kind := "file"
			if info.IsDir() {
				kind = "directory"
			}
			return Success("get_file_info", fmt.Sprintf(
				"Path: %s\nType: %s\nSize: %d bytes\nMode: %s\nModified: %s",
				args.Path, kind, info.Size(), info.Mode(), info.ModTime().Format("2006-01-02 15:04:05")))
		},
	}
}
