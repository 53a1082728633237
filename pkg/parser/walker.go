// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package parser

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	rgerr "github.com/kraklabs/repograph/internal/errors"
)

// FileInfo describes one candidate source file found by the walker.
type FileInfo struct {
	// RelPath is the path relative to the repository root, with forward
	// slashes. It is the path recorded in node ids.
	RelPath string
	// FullPath is the absolute path on disk.
	FullPath string
	// Language is the detected language name ("python", "go", ...).
	Language string
	// Size in bytes.
	Size int64
}

// ignoreDirs are directory names skipped during the walk.
var ignoreDirs = map[string]struct{}{
	".git":         {},
	"__pycache__":  {},
	"node_modules": {},
	".vscode":      {},
	".idea":        {},
	"build":        {},
	"dist":         {},
	"target":       {},
	"vendor":       {},
}

// binaryExts are file extensions never worth parsing.
var binaryExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".ico": {}, ".svg": {},
	".pdf": {}, ".zip": {}, ".tar": {}, ".gz": {}, ".bz2": {}, ".xz": {},
	".so": {}, ".dll": {}, ".dylib": {}, ".a": {}, ".o": {}, ".exe": {},
	".bin": {}, ".dat": {}, ".db": {}, ".sqlite": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
	".mp3": {}, ".mp4": {}, ".wav": {}, ".avi": {}, ".mov": {},
	".pyc": {}, ".pyo": {}, ".class": {}, ".jar": {}, ".wasm": {},
}

// languageByExt maps file extensions to the languages the extractors support.
var languageByExt = map[string]string{
	".py":  "python",
	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",
	".go":  "go",
}

// Walker enumerates parseable source files under a repository root.
type Walker struct {
	root   string
	logger *slog.Logger
}

// NewWalker creates a walker rooted at the given directory.
func NewWalker(root string, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{root: root, logger: logger}
}

// Walk returns all supported source files in deterministic (lexical) order.
// Ignore directories, hidden dotfiles, binary extensions, and unsupported
// languages are skipped.
func (w *Walker) Walk() ([]FileInfo, error) {
	var files []FileInfo
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == w.root {
				return nil
			}
			if _, skip := ignoreDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(name))
		if _, binary := binaryExts[ext]; binary {
			return nil
		}
		lang, supported := languageByExt[ext]
		if !supported {
			w.logger.Debug("parser.walk.skip_unsupported", "path", path, "ext", ext)
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return err
		}
		files = append(files, FileInfo{
			RelPath:  filepath.ToSlash(rel),
			FullPath: path,
			Language: lang,
			Size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, rgerr.Wrap(rgerr.KindParseFailed, "walk repository", err)
	}
	return files, nil
}
