package fsys

import (
	"github.com/arota-fs/simfs/fserrors"
)

// CreateDirectory resolves path's parent, rejects an existing path, and
// creates a new directory entry via DirectoryStore.Create.
func (fs *FileSystem) CreateDirectory(path string) error {
	const op = "FileSystem.CreateDirectory"
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return fserrors.New(fserrors.NotMounted, op)
	}

	if fs.paths.FileExists(path) {
		return fserrors.NewPath(fserrors.FileAlreadyExists, op, path)
	}
	parentPath, base, err := fs.splitPath(path)
	if err != nil {
		return err
	}
	parentInode, err := fs.paths.FindInode(parentPath)
	if err != nil {
		return fserrors.NewPath(fserrors.FileNotFound, op, parentPath)
	}
	_, err = fs.dirs.Create(parentInode, base)
	return err
}

// ListDirectory resolves path and returns its entry names.
func (fs *FileSystem) ListDirectory(path string) ([]string, error) {
	const op = "FileSystem.ListDirectory"
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if !fs.mounted {
		return nil, fserrors.New(fserrors.NotMounted, op)
	}
	n, err := fs.paths.FindInode(path)
	if err != nil {
		return nil, fserrors.NewPath(fserrors.FileNotFound, op, path)
	}
	return fs.dirs.List(n)
}

// RemoveDirectory resolves path, rejects the root, requires the target
// contain only "." and "..", removes its parent entry, and frees its
// inode.
func (fs *FileSystem) RemoveDirectory(path string) error {
	const op = "FileSystem.RemoveDirectory"
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return fserrors.New(fserrors.NotMounted, op)
	}

	target, err := fs.paths.FindInode(path)
	if err != nil {
		return fserrors.NewPath(fserrors.FileNotFound, op, path)
	}
	if target == rootInode {
		return fserrors.New(fserrors.InvalidArgument, op)
	}

	parentPath, base, err := fs.splitPath(path)
	if err != nil {
		return err
	}
	parentInode, err := fs.paths.FindInode(parentPath)
	if err != nil {
		return fserrors.NewPath(fserrors.FileNotFound, op, parentPath)
	}
	return fs.dirs.Remove(target, parentInode, base)
}
