// Package pathfs implements path parsing, normalization, and resolution
// from the root inode down to a target inode.
//
// Grounded on the original C++ PathManager (original_source/src/core/
// path_manager.cpp): normalization rules, the 1024-byte/NUL/CR/LF
// validation, and the explicit decision that "." and ".." are physical
// directory entries rather than resolver-level fictions.
package pathfs

import (
	"strings"

	"github.com/arota-fs/simfs/common"
	"github.com/arota-fs/simfs/dirent"
	"github.com/arota-fs/simfs/fserrors"
)

const rootInode = 0

// Resolver resolves normalized paths to inode numbers by walking
// DirectoryStore contents starting at the root inode.
type Resolver struct {
	dirs *dirent.Store
}

// New returns a Resolver backed by dirs for directory-entry lookups.
func New(dirs *dirent.Store) *Resolver {
	return &Resolver{dirs: dirs}
}

// Normalize collapses backslashes to forward slashes, collapses runs of
// consecutive slashes, and strips a trailing slash except at the root.
func Normalize(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	var b strings.Builder
	lastSlash := false
	for _, c := range path {
		if c == '/' {
			if lastSlash {
				continue
			}
			lastSlash = true
		} else {
			lastSlash = false
		}
		b.WriteRune(c)
	}
	out := b.String()
	if len(out) > 1 && strings.HasSuffix(out, "/") {
		out = strings.TrimRight(out, "/")
	}
	if out == "" {
		out = "/"
	}
	return out
}

// Validate rejects empty paths, paths longer than common.MaxPathLength,
// and paths containing NUL, CR, or LF.
func Validate(path string) error {
	const op = "PathResolver.Validate"
	if path == "" {
		return fserrors.New(fserrors.InvalidPath, op)
	}
	if len(path) > common.MaxPathLength {
		return fserrors.New(fserrors.InvalidPath, op)
	}
	if strings.ContainsAny(path, "\x00\r\n") {
		return fserrors.New(fserrors.InvalidPath, op)
	}
	return nil
}

// Parse validates and normalizes path, then splits it into non-empty
// components. Relative paths are treated as relative to the root.
func Parse(path string) ([]string, error) {
	if err := Validate(path); err != nil {
		return nil, err
	}
	norm := Normalize(path)
	parts := strings.Split(norm, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// Basename returns the final path component, or "/" for the root.
func Basename(path string) (string, error) {
	parts, err := Parse(path)
	if err != nil {
		return "", err
	}
	if len(parts) == 0 {
		return "/", nil
	}
	return parts[len(parts)-1], nil
}

// Parent returns the normalized path of path's containing directory.
func Parent(path string) (string, error) {
	parts, err := Parse(path)
	if err != nil {
		return "", err
	}
	if len(parts) <= 1 {
		return "/", nil
	}
	return "/" + strings.Join(parts[:len(parts)-1], "/"), nil
}

// FindInDirectory scans parentInode's entries for name and returns its
// inode number, or FileNotFound.
func (r *Resolver) FindInDirectory(parentInode int, name string) (int, error) {
	const op = "PathResolver.FindInDirectory"
	entries, err := r.dirs.Read(parentInode)
	if err != nil {
		return -1, err
	}
	for _, e := range entries {
		if e.Name == name {
			return int(e.InodeNumber), nil
		}
	}
	return -1, fserrors.NewPath(fserrors.FileNotFound, op, name)
}

// FindInode resolves path to an inode number by descending from the root
// inode, one component at a time. "." and ".." are not interpreted here;
// they resolve exactly as whatever physical entries exist on disk.
func (r *Resolver) FindInode(path string) (int, error) {
	parts, err := Parse(path)
	if err != nil {
		return -1, err
	}
	current := rootInode
	for _, part := range parts {
		next, err := r.FindInDirectory(current, part)
		if err != nil {
			return -1, err
		}
		current = next
	}
	return current, nil
}

// FileExists reports whether path resolves to an inode.
func (r *Resolver) FileExists(path string) bool {
	_, err := r.FindInode(path)
	return err == nil
}
