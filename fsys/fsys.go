// Package fsys implements the FileSystem façade: the single externally
// visible object wrapping BlockDevice, InodeStore, DirectoryStore, and
// PathResolver under one reader-writer lock.
//
// Grounded on the original C++ FileSystem class (original_source/src/
// core/file_manager.cpp, file_manager.h) for the mount sequence, the
// root-auto-repair rule, and the read/write block-splicing algorithms;
// and on the teacher's twophase/twophase.go for the shape of a
// façade-level sync.RWMutex guarding a set of lower-level managers.
package fsys

import (
	"sync"

	"github.com/arota-fs/simfs/blockdev"
	"github.com/arota-fs/simfs/common"
	"github.com/arota-fs/simfs/diag"
	"github.com/arota-fs/simfs/dirent"
	"github.com/arota-fs/simfs/fserrors"
	"github.com/arota-fs/simfs/inode"
	"github.com/arota-fs/simfs/pathfs"
)

var log = diag.WithComponent("fsys")

const rootInode = 0

// FileHandle is an in-memory open-file record; never persisted.
type FileHandle struct {
	InodeNumber int
	Mode        int
	Offset      int64
	Live        bool
}

// FileSystem is the single externally visible object: mount/format/
// unmount plus every path-based operation, serialized by a single
// reader-writer lock across mutating vs. read-only calls.
type FileSystem struct {
	mu sync.RWMutex

	dev    *blockdev.FileDevice
	layout blockdev.Layout
	inodes *inode.Store
	dirs   *dirent.Store
	paths  *pathfs.Resolver

	mounted bool

	handles map[int]*FileHandle
	nextFD  int
}

// New returns an unmounted façade.
func New() *FileSystem {
	return &FileSystem{handles: make(map[int]*FileHandle), nextFD: 3}
}

// IsMounted reports whether an image is currently mounted.
func (fs *FileSystem) IsMounted() bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.mounted
}

// Mount opens the block device (acquiring the host-file lock), loads the
// superblock and both bitmaps, and runs root auto-repair.
func (fs *FileSystem) Mount(path string) error {
	const op = "FileSystem.Mount"
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.mounted {
		return fserrors.New(fserrors.AlreadyMounted, op)
	}

	dev, err := blockdev.OpenDisk(path)
	if err != nil {
		return err
	}
	sb, err := dev.ReadSuperblock()
	if err != nil {
		dev.Close()
		return err
	}
	layout := sb.ToLayout()

	inodes := inode.New(dev)
	if err := inodes.Initialize(layout); err != nil {
		dev.Close()
		return fserrors.Wrap(err, fserrors.MountFailed, op)
	}
	dirs := dirent.New(inodes)

	fs.dev = dev
	fs.layout = layout
	fs.inodes = inodes
	fs.dirs = dirs
	fs.paths = pathfs.New(dirs)
	fs.mounted = true
	fs.handles = make(map[int]*FileHandle)
	fs.nextFD = 3

	if err := fs.ensureRoot(); err != nil {
		fs.mounted = false
		fs.dev.Close()
		return fserrors.Wrap(err, fserrors.MountFailed, op)
	}

	log.Info("mounted", "path", path, "total_blocks", dev.TotalBlocks())
	return nil
}

// Unmount drops every open handle, closes the block device, and so
// releases the host-file lock.
func (fs *FileSystem) Unmount() error {
	const op = "FileSystem.Unmount"
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return fserrors.New(fserrors.NotMounted, op)
	}
	fs.handles = make(map[int]*FileHandle)
	err := fs.dev.Close()
	fs.mounted = false
	if err != nil {
		return fserrors.Wrap(err, fserrors.UnmountFailed, op)
	}
	log.Info("unmounted")
	return nil
}

// Format reformats the mounted image: BlockDevice.Format (whose returned
// layout replaces the cached one), then a reload of both bitmaps and root
// auto-repair, all under the
// exclusive lock. Per spec §9's open question, open handles are left
// exactly as they are — the façade does not invalidate them.
func (fs *FileSystem) Format() error {
	const op = "FileSystem.Format"
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return fserrors.New(fserrors.NotMounted, op)
	}

	layout, err := fs.dev.Format()
	if err != nil {
		return err
	}
	fs.layout = layout
	if err := fs.inodes.ReloadBitmaps(); err != nil {
		return fserrors.Wrap(err, fserrors.FormatFailed, op)
	}
	if err := fs.ensureRoot(); err != nil {
		return fserrors.Wrap(err, fserrors.FormatFailed, op)
	}
	log.Info("formatted")
	return nil
}

// ensureRoot implements the mount-time root-repair rule (spec §4.6 step
// 4, §7 "Recovery"): allocate inode 0 if free (first-fit on an empty
// bitmap guarantees bit 0), re-type it if it exists but isn't a
// directory, and make sure it has "." and ".." entries plus a data
// block. A data block allocated here holds only "." and "..". Callers
// hold fs.mu for writing.
func (fs *FileSystem) ensureRoot() error {
	const op = "FileSystem.ensureRoot"

	if !fs.inodes.IsInodeAllocated(rootInode) {
		n, err := fs.inodes.AllocateInode()
		if err != nil {
			return err
		}
		if n != rootInode {
			return fserrors.New(fserrors.MountFailed, op)
		}
	}

	in, err := fs.inodes.ReadInode(rootInode)
	if err != nil {
		return err
	}
	if !in.IsDirectory() {
		in.Mode = common.FileTypeDirectory | common.PermRead | common.PermWrite | common.PermExecute
		in.LinkCount = 2
		if err := fs.inodes.WriteInode(rootInode, in); err != nil {
			return err
		}
	}

	blocks, err := fs.inodes.GetDataBlocks(rootInode)
	if err != nil {
		return err
	}
	if len(blocks) == 0 {
		if _, err := fs.inodes.AllocateDataBlocks(rootInode, 1); err != nil {
			return err
		}
		// The data region is not zeroed by a format, so a newly allocated
		// block may still hold old entries: start it with "." and ".." only.
		return fs.dirs.Write(rootInode, []dirent.Entry{
			{InodeNumber: rootInode, Name: ".", NameLength: 1},
			{InodeNumber: rootInode, Name: "..", NameLength: 2},
		})
	}

	entries, err := fs.dirs.Read(rootInode)
	if err != nil {
		return err
	}
	hasDot, hasDotDot := false, false
	for _, e := range entries {
		if e.Name == "." {
			hasDot = true
		}
		if e.Name == ".." {
			hasDotDot = true
		}
	}
	if !hasDot || !hasDotDot {
		rebuilt := []dirent.Entry{
			{InodeNumber: rootInode, Name: ".", NameLength: 1},
			{InodeNumber: rootInode, Name: "..", NameLength: 2},
		}
		for _, e := range entries {
			if e.Name != "." && e.Name != ".." {
				rebuilt = append(rebuilt, e)
			}
		}
		if err := fs.dirs.Write(rootInode, rebuilt); err != nil {
			return err
		}
	}
	return nil
}

// FileExists reports whether path resolves to any inode.
func (fs *FileSystem) FileExists(path string) (bool, error) {
	const op = "FileSystem.FileExists"
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if !fs.mounted {
		return false, fserrors.New(fserrors.NotMounted, op)
	}
	return fs.paths.FileExists(path), nil
}

// IsDirectory reports whether path resolves to a directory inode.
func (fs *FileSystem) IsDirectory(path string) (bool, error) {
	const op = "FileSystem.IsDirectory"
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if !fs.mounted {
		return false, fserrors.New(fserrors.NotMounted, op)
	}
	n, err := fs.paths.FindInode(path)
	if err != nil {
		return false, err
	}
	in, err := fs.inodes.ReadInode(n)
	if err != nil {
		return false, err
	}
	return in.IsDirectory(), nil
}
