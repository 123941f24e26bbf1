package fsys

import (
	"github.com/arota-fs/simfs/common"
	"github.com/arota-fs/simfs/fserrors"
	"github.com/arota-fs/simfs/inode"
	"github.com/arota-fs/simfs/pathfs"
)

// maxFD bounds the fd-id cycle; ids wrap back to 3 after this, per
// spec §4.6's open table.
const maxFD = 1024

func (fs *FileSystem) allocateFD() (int, error) {
	const op = "FileSystem.allocateFD"
	for i := 0; i < maxFD; i++ {
		fd := fs.nextFD
		fs.nextFD++
		if fs.nextFD >= maxFD {
			fs.nextFD = 3
		}
		if _, used := fs.handles[fd]; !used {
			return fd, nil
		}
	}
	return -1, fserrors.New(fserrors.InvalidFileDescriptor, op)
}

func (fs *FileSystem) splitPath(path string) (parentPath, base string, err error) {
	parentPath, err = pathfs.Parent(path)
	if err != nil {
		return "", "", err
	}
	base, err = pathfs.Basename(path)
	if err != nil {
		return "", "", err
	}
	return parentPath, base, nil
}

// createFileLocked implements create_file; callers hold fs.mu for writing.
func (fs *FileSystem) createFileLocked(path string, perm int32) (int, error) {
	const op = "FileSystem.CreateFile"

	if fs.paths.FileExists(path) {
		return -1, fserrors.NewPath(fserrors.FileAlreadyExists, op, path)
	}
	parentPath, base, err := fs.splitPath(path)
	if err != nil {
		return -1, err
	}
	parentInode, err := fs.paths.FindInode(parentPath)
	if err != nil {
		return -1, fserrors.NewPath(fserrors.FileNotFound, op, parentPath)
	}
	parentIn, err := fs.inodes.ReadInode(parentInode)
	if err != nil {
		return -1, err
	}
	if !parentIn.IsDirectory() {
		return -1, fserrors.NewPath(fserrors.NotADirectory, op, parentPath)
	}

	newInode, err := fs.inodes.AllocateInode()
	if err != nil {
		return -1, err
	}
	in, err := fs.inodes.ReadInode(newInode)
	if err != nil {
		fs.inodes.FreeInode(newInode)
		return -1, err
	}
	if perm == 0 {
		perm = common.PermRead | common.PermWrite
	}
	in.Mode = common.FileTypeRegular | perm
	if err := fs.inodes.WriteInode(newInode, in); err != nil {
		fs.inodes.FreeInode(newInode)
		return -1, err
	}

	if err := fs.dirs.AddEntry(parentInode, base, newInode); err != nil {
		fs.inodes.FreeInode(newInode)
		return -1, err
	}
	log.Debug("created file", "path", path, "inode", newInode)
	return newInode, nil
}

// CreateFile creates a new regular file at path with the given permission
// bits (0 selects read|write).
func (fs *FileSystem) CreateFile(path string, perm int32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return fserrors.New(fserrors.NotMounted, "FileSystem.CreateFile")
	}
	_, err := fs.createFileLocked(path, perm)
	return err
}

// DeleteFile resolves path, rejects directories, removes its parent
// entry, and frees its inode.
func (fs *FileSystem) DeleteFile(path string) error {
	const op = "FileSystem.DeleteFile"
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return fserrors.New(fserrors.NotMounted, op)
	}

	target, err := fs.paths.FindInode(path)
	if err != nil {
		return fserrors.NewPath(fserrors.FileNotFound, op, path)
	}
	in, err := fs.inodes.ReadInode(target)
	if err != nil {
		return err
	}
	if in.IsDirectory() {
		return fserrors.NewPath(fserrors.IsADirectory, op, path)
	}

	parentPath, base, err := fs.splitPath(path)
	if err != nil {
		return err
	}
	parentInode, err := fs.paths.FindInode(parentPath)
	if err != nil {
		return fserrors.NewPath(fserrors.FileNotFound, op, parentPath)
	}
	if err := fs.dirs.RemoveEntry(parentInode, base); err != nil {
		return err
	}
	return fs.inodes.FreeInode(target)
}

// OpenFile resolves (or, with OpenCreate, creates) path, allocates a file
// descriptor, and seeds the handle's offset — 0, or size-at-open for
// append mode.
func (fs *FileSystem) OpenFile(path string, mode int) (int, error) {
	const op = "FileSystem.OpenFile"
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return -1, fserrors.New(fserrors.NotMounted, op)
	}

	n, err := fs.paths.FindInode(path)
	if err != nil {
		if mode&common.OpenCreate == 0 {
			return -1, fserrors.NewPath(fserrors.FileNotFound, op, path)
		}
		n, err = fs.createFileLocked(path, 0)
		if err != nil {
			return -1, err
		}
	}

	in, err := fs.inodes.ReadInode(n)
	if err != nil {
		return -1, err
	}
	if in.IsDirectory() {
		return -1, fserrors.NewPath(fserrors.IsADirectory, op, path)
	}

	fd, err := fs.allocateFD()
	if err != nil {
		return -1, err
	}
	offset := int64(0)
	if mode&common.OpenAppend != 0 {
		offset = in.Size
	}
	fs.handles[fd] = &FileHandle{InodeNumber: n, Mode: mode, Offset: offset, Live: true}
	return fd, nil
}

// CloseFile removes fd's handle from the open table.
func (fs *FileSystem) CloseFile(fd int) error {
	const op = "FileSystem.CloseFile"
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return fserrors.New(fserrors.NotMounted, op)
	}
	if _, ok := fs.handles[fd]; !ok {
		return fserrors.New(fserrors.InvalidFileDescriptor, op)
	}
	delete(fs.handles, fd)
	return nil
}

func (fs *FileSystem) handle(fd int) (*FileHandle, error) {
	const op = "FileSystem.handle"
	h, ok := fs.handles[fd]
	if !ok || !h.Live {
		return nil, fserrors.New(fserrors.InvalidFileDescriptor, op)
	}
	return h, nil
}

// ReadFile reads up to len(buf) bytes from fd's current offset, clamped
// to the file's size, and advances the offset.
func (fs *FileSystem) ReadFile(fd int, buf []byte) (int, error) {
	const op = "FileSystem.ReadFile"
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return 0, fserrors.New(fserrors.NotMounted, op)
	}
	h, err := fs.handle(fd)
	if err != nil {
		return 0, err
	}
	if h.Mode&common.OpenRead == 0 {
		return 0, fserrors.New(fserrors.InvalidArgument, op)
	}

	in, err := fs.inodes.ReadInode(h.InodeNumber)
	if err != nil {
		return 0, err
	}
	if h.Offset >= in.Size {
		return 0, nil
	}
	n := int64(len(buf))
	if avail := in.Size - h.Offset; n > avail {
		n = avail
	}

	blocks, err := fs.inodes.GetDataBlocks(h.InodeNumber)
	if err != nil {
		return 0, err
	}
	if err := readRange(fs.inodes, blocks, h.Offset, buf[:n]); err != nil {
		return 0, err
	}

	h.Offset += n
	in.AccessTime = in.ModificationTime
	fs.inodes.WriteInode(h.InodeNumber, in)
	return int(n), nil
}

// WriteFile writes buf at fd's current offset, growing the file's block
// list as needed, and advances the offset.
func (fs *FileSystem) WriteFile(fd int, buf []byte) (int, error) {
	const op = "FileSystem.WriteFile"
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return 0, fserrors.New(fserrors.NotMounted, op)
	}
	h, err := fs.handle(fd)
	if err != nil {
		return 0, err
	}
	if h.Mode&common.OpenWrite == 0 {
		return 0, fserrors.New(fserrors.InvalidArgument, op)
	}
	if len(buf) == 0 {
		return 0, nil
	}

	in, err := fs.inodes.ReadInode(h.InodeNumber)
	if err != nil {
		return 0, err
	}

	blocks, err := fs.inodes.GetDataBlocks(h.InodeNumber)
	if err != nil {
		return 0, err
	}
	required := int((h.Offset + int64(len(buf)) + int64(common.BlockSize) - 1) / int64(common.BlockSize))
	if additional := required - len(blocks); additional > 0 {
		newBlocks, err := fs.inodes.AllocateDataBlocks(h.InodeNumber, additional)
		if err != nil {
			return 0, err
		}
		blocks = append(blocks, newBlocks...)
	}

	if err := writeRange(fs.inodes, blocks, h.Offset, buf); err != nil {
		return 0, err
	}

	in, err = fs.inodes.ReadInode(h.InodeNumber)
	if err != nil {
		return 0, err
	}
	newSize := h.Offset + int64(len(buf))
	if newSize > in.Size {
		in.Size = newSize
	}
	in.ModificationTime = in.AccessTime
	if err := fs.inodes.WriteInode(h.InodeNumber, in); err != nil {
		return 0, err
	}

	h.Offset += int64(len(buf))
	return len(buf), nil
}

// SeekFile repositions fd's offset.
func (fs *FileSystem) SeekFile(fd int, pos int64) error {
	const op = "FileSystem.SeekFile"
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return fserrors.New(fserrors.NotMounted, op)
	}
	h, err := fs.handle(fd)
	if err != nil {
		return err
	}
	if pos < 0 {
		return fserrors.New(fserrors.InvalidArgument, op)
	}
	h.Offset = pos
	return nil
}

// readRange copies bytes [offset, offset+len(dst)) of a file's logical
// byte stream out of its block list into dst.
func readRange(inodes *inode.Store, blocks []int, offset int64, dst []byte) error {
	buf := make([]byte, common.BlockSize)
	read := int64(0)
	for read < int64(len(dst)) {
		pos := offset + read
		blockIdx := int(pos / common.BlockSize)
		if blockIdx >= len(blocks) {
			break
		}
		within := int(pos % common.BlockSize)
		if err := inodes.ReadBlockRaw(blocks[blockIdx], buf); err != nil {
			return err
		}
		n := common.BlockSize - within
		if remain := int64(len(dst)) - read; int64(n) > remain {
			n = int(remain)
		}
		copy(dst[read:read+int64(n)], buf[within:within+n])
		read += int64(n)
	}
	return nil
}

// writeRange writes src into a file's block list starting at offset,
// read-modify-writing any block the write only partially covers.
func writeRange(inodes *inode.Store, blocks []int, offset int64, src []byte) error {
	buf := make([]byte, common.BlockSize)
	written := int64(0)
	for written < int64(len(src)) {
		pos := offset + written
		blockIdx := int(pos / common.BlockSize)
		if blockIdx >= len(blocks) {
			return fserrors.New(fserrors.DiskFull, "FileSystem.writeRange")
		}
		within := int(pos % common.BlockSize)
		n := common.BlockSize - within
		if remain := int64(len(src)) - written; int64(n) > remain {
			n = int(remain)
		}

		if within != 0 || n != common.BlockSize {
			if err := inodes.ReadBlockRaw(blocks[blockIdx], buf); err != nil {
				return err
			}
		}
		copy(buf[within:within+n], src[written:written+int64(n)])
		if err := inodes.WriteBlockRaw(blocks[blockIdx], buf); err != nil {
			return err
		}
		written += int64(n)
	}
	return nil
}
