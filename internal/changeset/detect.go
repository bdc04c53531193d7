package changeset

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// typeByExtension maps file extensions to type tags.
var typeByExtension = map[string]string{
	".go":       "go",
	".py":       "python",
	".pyi":      "python",
	".yaml":     "yaml",
	".yml":      "yaml",
	".json":     "json",
	".md":       "markdown",
	".markdown": "markdown",
	".txt":      "text",
	".sh":       "shell",
	".bash":     "shell",
	".js":       "javascript",
	".jsx":      "javascript",
	".ts":       "typescript",
	".tsx":      "typescript",
	".html":     "html",
	".htm":      "html",
	".css":      "css",
	".xml":      "xml",
	".toml":     "toml",
	".rs":       "rust",
	".rb":       "ruby",
	".sql":      "sql",
	".proto":    "proto",
	".tf":       "terraform",
	".ini":      "config",
	".cfg":      "config",
	".conf":     "config",
}

// typeByInterpreter maps shebang interpreters to type tags.
var typeByInterpreter = map[string]string{
	"python":  "python",
	"python3": "python",
	"sh":      "shell",
	"bash":    "shell",
	"zsh":     "shell",
	"node":    "javascript",
	"ruby":    "ruby",
}

// DetectTypes returns the type tags for a file. Extension wins; for
// extensionless files a shebang sniff decides (executable scripts in the
// corpus routinely omit extensions).
func DetectTypes(path string) []string {
	ext := strings.ToLower(filepath.Ext(path))
	if tag, ok := typeByExtension[ext]; ok {
		return []string{tag}
	}
	if ext == "" {
		if tag, ok := sniffShebang(path); ok {
			return []string{tag}
		}
	}
	return []string{"unknown"}
}

// sniffShebang reads the first line and maps the interpreter to a type tag.
func sniffShebang(path string) (string, bool) {
	f, err := os.Open(path) // #nosec G304 -- paths come from the resolved changeset
	if err != nil {
		return "", false
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return "", false
	}
	line := scanner.Text()
	if !strings.HasPrefix(line, "#!") {
		return "", false
	}

	// #!/usr/bin/env python3 or #!/bin/bash
	fields := strings.Fields(strings.TrimPrefix(line, "#!"))
	if len(fields) == 0 {
		return "", false
	}
	interp := filepath.Base(fields[0])
	if interp == "env" && len(fields) > 1 {
		interp = filepath.Base(fields[1])
	}
	// Strip version suffixes like python3.12
	for name, tag := range typeByInterpreter {
		if interp == name || strings.HasPrefix(interp, name+".") {
			return tag, true
		}
	}
	return "", false
}
