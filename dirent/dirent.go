// Package dirent implements directory contents: a directory inode's data
// blocks hold a packed array of fixed-size Entry records. Grounded on the
// original C++ DirectoryManager (original_source/src/core/
// directory_manager.cpp) for the create/remove/add/remove-entry flows, and
// on the teacher's buftxn read-modify-write block access pattern adapted
// here through the inode package.
package dirent

import (
	"encoding/binary"
	"time"

	"github.com/arota-fs/simfs/common"
	"github.com/arota-fs/simfs/diag"
	"github.com/arota-fs/simfs/fserrors"
	"github.com/arota-fs/simfs/inode"
)

var log = diag.WithComponent("dirent")

// Entry is one directory record. A NameLength of zero marks an unused
// hole in a directory data block.
type Entry struct {
	InodeNumber int32
	Name        string
	NameLength  int32
}

func (e Entry) marshalInto(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], uint32(e.InodeNumber))
	nameBuf := buf[4 : 4+common.MaxFilenameLength]
	for i := range nameBuf {
		nameBuf[i] = 0
	}
	copy(nameBuf, e.Name)
	binary.LittleEndian.PutUint32(buf[4+common.MaxFilenameLength:], uint32(e.NameLength))
}

func (e *Entry) unmarshalFrom(buf []byte) {
	e.InodeNumber = int32(binary.LittleEndian.Uint32(buf[0:]))
	nameLen := int32(binary.LittleEndian.Uint32(buf[4+common.MaxFilenameLength:]))
	e.NameLength = nameLen
	n := int(nameLen)
	if n < 0 || n > common.MaxFilenameLength {
		n = 0
	}
	e.Name = string(buf[4 : 4+n])
}

// Store reads and writes directory contents through an inode.Store.
type Store struct {
	inodes *inode.Store
}

// New returns a Store backed by inodes for block allocation and I/O.
func New(inodes *inode.Store) *Store {
	return &Store{inodes: inodes}
}

// Read loads every in-use entry of dirInode's data, in block/slot order.
// dirInode must have the directory type bit set.
func (s *Store) Read(dirInode int) ([]Entry, error) {
	const op = "DirectoryStore.Read"
	in, err := s.inodes.ReadInode(dirInode)
	if err != nil {
		return nil, err
	}
	if !in.IsDirectory() {
		return nil, fserrors.New(fserrors.NotADirectory, op)
	}

	blocks, err := s.inodes.GetDataBlocks(dirInode)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	buf := make([]byte, common.DirEntrySize)
	raw := make([]byte, common.BlockSize)
	for _, block := range blocks {
		if err := s.inodes.ReadBlockRaw(block, raw); err != nil {
			return nil, err
		}
		for slot := 0; slot < common.DirEntriesPerBlock; slot++ {
			off := slot * common.DirEntrySize
			copy(buf, raw[off:off+common.DirEntrySize])
			var e Entry
			e.unmarshalFrom(buf)
			if e.NameLength > 0 {
				entries = append(entries, e)
			}
		}
	}
	return entries, nil
}

// List is Read reduced to just the entry names, for directory listings.
func (s *Store) List(dirInode int) ([]string, error) {
	entries, err := s.Read(dirInode)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names, nil
}

// Write packs entries contiguously starting at the first slot of the
// first data block, allocating additional data blocks through InodeStore
// as needed, and updates the inode's size and modification time.
func (s *Store) Write(dirInode int, entries []Entry) error {
	const op = "DirectoryStore.Write"
	in, err := s.inodes.ReadInode(dirInode)
	if err != nil {
		return err
	}
	if !in.IsDirectory() {
		return fserrors.New(fserrors.NotADirectory, op)
	}

	needed := (len(entries) + common.DirEntriesPerBlock - 1) / common.DirEntriesPerBlock
	if needed == 0 {
		needed = 1
	}

	blocks, err := s.inodes.GetDataBlocks(dirInode)
	if err != nil {
		return err
	}
	if len(blocks) < needed {
		newBlocks, err := s.inodes.AllocateDataBlocks(dirInode, needed-len(blocks))
		if err != nil {
			return err
		}
		blocks = append(blocks, newBlocks...)
	}

	buf := make([]byte, common.DirEntrySize)
	for bi := 0; bi < len(blocks); bi++ {
		raw := make([]byte, common.BlockSize)
		for slot := 0; slot < common.DirEntriesPerBlock; slot++ {
			idx := bi*common.DirEntriesPerBlock + slot
			off := slot * common.DirEntrySize
			if idx < len(entries) {
				entries[idx].marshalInto(buf)
				copy(raw[off:off+common.DirEntrySize], buf)
			}
		}
		if err := s.inodes.WriteBlockRaw(blocks[bi], raw); err != nil {
			return err
		}
	}

	in, err = s.inodes.ReadInode(dirInode)
	if err != nil {
		return err
	}
	in.Size = int64(len(entries)) * int64(common.DirEntrySize)
	in.ModificationTime = int32(time.Now().Unix())
	if err := s.inodes.WriteInode(dirInode, in); err != nil {
		return err
	}
	return nil
}

// AddEntry appends a (name, childInode) entry to dirInode's contents.
// FileAlreadyExists if name is already present.
func (s *Store) AddEntry(dirInode int, name string, childInode int) error {
	const op = "DirectoryStore.AddEntry"
	entries, err := s.Read(dirInode)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name == name {
			return fserrors.NewPath(fserrors.FileAlreadyExists, op, name)
		}
	}
	entries = append(entries, Entry{
		InodeNumber: int32(childInode),
		Name:        name,
		NameLength:  int32(len(name)),
	})
	return s.Write(dirInode, entries)
}

// RemoveEntry deletes the entry named name from dirInode's contents.
// FileNotFound if no such entry exists.
func (s *Store) RemoveEntry(dirInode int, name string) error {
	const op = "DirectoryStore.RemoveEntry"
	entries, err := s.Read(dirInode)
	if err != nil {
		return err
	}
	out := make([]Entry, 0, len(entries))
	found := false
	for _, e := range entries {
		if e.Name == name {
			found = true
			continue
		}
		out = append(out, e)
	}
	if !found {
		return fserrors.NewPath(fserrors.FileNotFound, op, name)
	}
	return s.Write(dirInode, out)
}

// Create allocates a new directory inode as a child of parentInode named
// name, writes its "." and ".." entries, and links it into the parent. On
// any failure after the inode is allocated, the inode (and its cascading
// data block) is freed.
func (s *Store) Create(parentInode int, name string) (int, error) {
	const op = "DirectoryStore.Create"

	entries, err := s.Read(parentInode)
	if err != nil {
		return -1, err
	}
	for _, e := range entries {
		if e.Name == name {
			return -1, fserrors.NewPath(fserrors.FileAlreadyExists, op, name)
		}
	}

	newInode, err := s.inodes.AllocateInode()
	if err != nil {
		return -1, err
	}

	in, err := s.inodes.ReadInode(newInode)
	if err != nil {
		s.inodes.FreeInode(newInode)
		return -1, err
	}
	in.Mode = common.FileTypeDirectory | common.PermRead | common.PermWrite | common.PermExecute
	in.LinkCount = 2
	if err := s.inodes.WriteInode(newInode, in); err != nil {
		s.inodes.FreeInode(newInode)
		return -1, err
	}

	if _, err := s.inodes.AllocateDataBlocks(newInode, 1); err != nil {
		s.inodes.FreeInode(newInode)
		return -1, err
	}

	self := []Entry{
		{InodeNumber: int32(newInode), Name: ".", NameLength: 1},
		{InodeNumber: int32(parentInode), Name: "..", NameLength: 2},
	}
	if err := s.Write(newInode, self); err != nil {
		s.inodes.FreeInode(newInode)
		return -1, err
	}

	if err := s.AddEntry(parentInode, name, newInode); err != nil {
		s.inodes.FreeInode(newInode)
		return -1, err
	}

	log.Debug("created directory", "inode", newInode, "parent", parentInode, "name", name)
	return newInode, nil
}

// Remove deletes the directory targetInode, which must contain only "."
// and ".." and must not be the root inode. Its entry is removed from
// parentInode under name, then its own inode is freed.
func (s *Store) Remove(targetInode, parentInode int, name string) error {
	const op = "DirectoryStore.Remove"
	if targetInode == 0 {
		return fserrors.New(fserrors.InvalidArgument, op)
	}

	entries, err := s.Read(targetInode)
	if err != nil {
		return err
	}
	if len(entries) > 2 {
		return fserrors.New(fserrors.DirectoryNotEmpty, op)
	}

	if err := s.RemoveEntry(parentInode, name); err != nil {
		return err
	}
	if err := s.inodes.FreeInode(targetInode); err != nil {
		return err
	}
	return nil
}
