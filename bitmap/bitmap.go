// Package bitmap implements the fixed-capacity bit array used for both the
// inode and data-block allocation tables.
//
// Adapted from the teacher's alloc/alloc.go Alloc type, which tracked a
// start block, a length in bits, and a mutex-protected "next" cursor into
// a bitmap stored as on-disk buffers addressed through buftxn. simfs's
// Bitmap keeps the mutex-guarded-counter shape but holds its bits as a
// plain in-memory []byte (persisted separately via LoadFromDevice/
// SaveToDevice) and allocates by strict first-fit scan from bit 0, per
// spec §4.2 — not alloc.go's round-robin "next" policy, which spec's
// mount-time "root inode must land on bit 0" invariant depends on.
package bitmap

import (
	"sync"

	"github.com/arota-fs/simfs/blockdev"
	"github.com/arota-fs/simfs/fserrors"
)

// Bitmap is a fixed-capacity bit array with O(1) free-count tracking.
type Bitmap struct {
	mu sync.Mutex

	data     []byte
	totalBits int
	freeBits  int
}

// New creates a bitmap of the given capacity, all bits initially free.
func New(totalBits int) *Bitmap {
	size := (totalBits + 7) / 8
	return &Bitmap{
		data:      make([]byte, size),
		totalBits: totalBits,
		freeBits:  totalBits,
	}
}

// AllocateBit finds the first free bit, marks it allocated, and returns
// its index.
func (b *Bitmap) AllocateBit() (int, error) {
	const op = "Bitmap.AllocateBit"
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.freeBits == 0 {
		return -1, fserrors.New(fserrors.NoFreeBlocks, op)
	}
	bit := b.findFreeBitLocked()
	if bit == -1 {
		return -1, fserrors.New(fserrors.NoFreeBlocks, op)
	}
	b.setBitLocked(bit)
	b.freeBits--
	return bit, nil
}

// AllocateBitAt marks a specific bit allocated, used to pin reserved
// ranges (e.g. non-data blocks in the data bitmap) rather than relying on
// first-fit. It is a no-op if the bit is already allocated.
func (b *Bitmap) AllocateBitAt(n int) (int, error) {
	const op = "Bitmap.AllocateBitAt"
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.validLocked(n) {
		return -1, fserrors.New(fserrors.InvalidArgument, op)
	}
	if !b.isSetLocked(n) {
		b.setBitLocked(n)
		b.freeBits--
	}
	return n, nil
}

// FreeBit marks bit n as free.
func (b *Bitmap) FreeBit(n int) error {
	const op = "Bitmap.FreeBit"
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.validLocked(n) {
		return fserrors.New(fserrors.InvalidArgument, op)
	}
	if b.isSetLocked(n) {
		b.clearBitLocked(n)
		b.freeBits++
	}
	return nil
}

// IsAllocated reports whether bit n is allocated. Out-of-range bits are
// treated as unallocated.
func (b *Bitmap) IsAllocated(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.validLocked(n) {
		return false
	}
	return b.isSetLocked(n)
}

// ClearAll resets every bit to free.
func (b *Bitmap) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.data {
		b.data[i] = 0
	}
	b.freeBits = b.totalBits
}

// TotalBits returns the bitmap's fixed capacity.
func (b *Bitmap) TotalBits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalBits
}

// FreeBits returns the cached free-bit count.
func (b *Bitmap) FreeBits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.freeBits
}

// UsedBits returns totalBits - freeBits.
func (b *Bitmap) UsedBits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalBits - b.freeBits
}

// LoadFromDevice reads numBlocks blocks starting at startBlock and
// recomputes the free-bit count from what was read, rather than trusting a
// cached value.
func (b *Bitmap) LoadFromDevice(dev blockdev.Device, startBlock, numBlocks int) error {
	const op = "Bitmap.LoadFromDevice"
	b.mu.Lock()
	defer b.mu.Unlock()

	buf := make([]byte, dev.BlockSize())
	dst := b.data
	remaining := len(b.data)
	for i := 0; i < numBlocks; i++ {
		if err := dev.ReadBlock(startBlock+i, buf); err != nil {
			return fserrors.Wrap(err, fserrors.IOError, op)
		}
		n := remaining
		if n > len(buf) {
			n = len(buf)
		}
		if n > 0 {
			copy(dst, buf[:n])
			dst = dst[n:]
			remaining -= n
		}
	}
	b.recalculateFreeBitsLocked()
	return nil
}

// SaveToDevice writes the bitmap into its reserved blocks, zero-padding
// the unused trailing bytes of the last block.
func (b *Bitmap) SaveToDevice(dev blockdev.Device, startBlock, numBlocks int) error {
	const op = "Bitmap.SaveToDevice"
	b.mu.Lock()
	defer b.mu.Unlock()

	src := b.data
	for i := 0; i < numBlocks; i++ {
		buf := make([]byte, dev.BlockSize())
		n := len(src)
		if n > len(buf) {
			n = len(buf)
		}
		if n > 0 {
			copy(buf, src[:n])
			src = src[n:]
		}
		if err := dev.WriteBlock(startBlock+i, buf); err != nil {
			return fserrors.Wrap(err, fserrors.IOError, op)
		}
	}
	return nil
}

func (b *Bitmap) validLocked(n int) bool {
	return n >= 0 && n < b.totalBits
}

func (b *Bitmap) isSetLocked(n int) bool {
	return b.data[n/8]&(1<<(uint(n)%8)) != 0
}

func (b *Bitmap) setBitLocked(n int) {
	b.data[n/8] |= 1 << (uint(n) % 8)
}

func (b *Bitmap) clearBitLocked(n int) {
	b.data[n/8] &^= 1 << (uint(n) % 8)
}

func (b *Bitmap) findFreeBitLocked() int {
	for n := 0; n < b.totalBits; n++ {
		if !b.isSetLocked(n) {
			return n
		}
	}
	return -1
}

func (b *Bitmap) recalculateFreeBitsLocked() {
	free := 0
	for n := 0; n < b.totalBits; n++ {
		if !b.isSetLocked(n) {
			free++
		}
	}
	b.freeBits = free
}
