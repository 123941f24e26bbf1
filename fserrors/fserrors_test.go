package fserrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAndError(t *testing.T) {
	err := New(FileNotFound, "PathResolver.FindInode")
	assert.Equal(t, FileNotFound, err.Kind)
	assert.Contains(t, err.Error(), "FileNotFound")
	assert.Contains(t, err.Error(), "PathResolver.FindInode")
}

func TestNewPathIncludesSubject(t *testing.T) {
	err := NewPath(FileAlreadyExists, "DirectoryStore.Create", "/docs")
	assert.Contains(t, err.Error(), "/docs")
	assert.Contains(t, err.Error(), "FileAlreadyExists")
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk on fire")
	err := Wrap(cause, IOError, "BlockDevice.ReadBlock")
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestIsWalksWrappedChain(t *testing.T) {
	inner := New(NoFreeBlocks, "Bitmap.AllocateBit")
	outer := Wrap(inner, DiskFull, "InodeStore.AllocateDataBlocks")
	assert.True(t, Is(outer, DiskFull))
	assert.True(t, Is(outer, NoFreeBlocks), "Wrap keeps the inner kind reachable through the chain")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Success, KindOf(nil))
	assert.Equal(t, NotMounted, KindOf(New(NotMounted, "op")))
	assert.Equal(t, IOError, KindOf(errors.New("plain error")))
}

func TestKindStringFallsBackForUnknownKind(t *testing.T) {
	var k Kind = 9999
	assert.Contains(t, k.String(), "Kind(9999)")
}
