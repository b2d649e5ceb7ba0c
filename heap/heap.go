// Package heap implements a thread-safe bump-style allocator over a
// single contiguous byte region (the "heap"). The allocator is a stack:
// allocate always grows from a watermark, free only reclaims when the
// freed block is contiguous with the top of the stack, and a freed
// interior block stays reserved until a later free exposes it.
//
// Every Allocate, Free and Shrink takes a spin-CAS lock word (yielding
// with runtime.Gosched once contention persists) and moves the watermark
// with atomic operations while holding it. The watermark and lock word
// are embedded in the shared byte region
// itself (a 16-byte heap header), not in separate Go fields, because the
// region is meant to be shareable as raw bytes (optionally via mmap, see
// NewSharedRegion).
package heap

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"

	"github.com/logv/kruda/internal/errs"
	"github.com/logv/kruda/internal/klog"
	"github.com/logv/kruda/internal/metrics"
)

const (
	// HeaderSize is the fixed 16-byte reserved region at the start of
	// every heap.
	HeaderSize = 16

	offsetWatermark = 4
	offsetLock      = 8

	wordSize = 4

	lockUnlocked int32 = 0
	lockLocked   int32 = 1
)

// Heap is a single contiguous byte region with a stack allocation
// policy.
type Heap struct {
	id      uuid.UUID
	region  []byte
	metrics metrics.Registry
}

// NewRegion allocates a plain Go-heap-backed region of size bytes and
// wraps it as a Heap. size must be a multiple of 4; a power of two below
// 16 MiB, or a multiple of 16 MiB at or above it.
func NewRegion(size int) (*Heap, error) {
	return newHeap(make([]byte, size), metrics.NoOp)
}

// NewRegionWithMetrics is NewRegion with an explicit metrics.Registry —
// pass metrics.NewRegistry(reg) to observe allocator activity, or
// metrics.NoOp (the NewRegion default) to pay nothing.
func NewRegionWithMetrics(size int, reg metrics.Registry) (*Heap, error) {
	return newHeap(make([]byte, size), reg)
}

// Wrap adapts an existing byte region — e.g. one supplied by a file
// converter or already deposited with row bytes — into a Heap without
// copying. The region must already satisfy the size invariants and, if
// reused, the caller is responsible for its header having been
// initialized by Init or by a prior Heap.
func Wrap(region []byte, reg metrics.Registry) (*Heap, error) {
	if reg == nil {
		reg = metrics.NoOp
	}
	if err := validateSize(len(region)); err != nil {
		return nil, err
	}
	h := &Heap{id: uuid.New(), region: region, metrics: reg}
	return h, nil
}

func newHeap(region []byte, reg metrics.Registry) (*Heap, error) {
	if err := validateSize(len(region)); err != nil {
		return nil, err
	}
	h := &Heap{id: uuid.New(), region: region, metrics: reg}
	h.Init()
	return h, nil
}

func validateSize(size int) error {
	if size < HeaderSize || size%wordSize != 0 {
		return errs.AllocationFailure("heap size %d must be a positive multiple of %d", size, wordSize)
	}
	const sixteenMiB = 16 * 1024 * 1024
	if size < sixteenMiB {
		if size&(size-1) != 0 {
			return errs.AllocationFailure("heap size %d below 16MiB must be a power of two", size)
		}
	} else if size%sixteenMiB != 0 {
		return errs.AllocationFailure("heap size %d at or above 16MiB must be a multiple of 16MiB", size)
	}
	return nil
}

// Init (re)writes the 16-byte heap header, setting the watermark to
// HeaderSize and the lock word to unlocked. Callers wrapping a fresh
// region via Wrap must call this once before any allocation.
func (h *Heap) Init() {
	for i := 0; i < HeaderSize; i++ {
		h.region[i] = 0
	}
	h.watermarkPtr().Store(uint32(HeaderSize))
	h.lockPtr().Store(lockUnlocked)
}

// ID returns a stable label for this heap, used only in debug log
// lines — never part of the binary format.
func (h *Heap) ID() uuid.UUID { return h.id }

// Size is the total byte length of the region, including the header.
func (h *Heap) Size() int { return len(h.region) }

// Region exposes the raw backing bytes. Callers constructing a Table
// directly over heap memory (outside of allocate) use this; it is not
// part of the block API.
func (h *Heap) Region() []byte { return h.region }

func (h *Heap) watermarkPtr() *atomic.Uint32 {
	return (*atomic.Uint32)(unsafe.Pointer(&h.region[offsetWatermark]))
}

func (h *Heap) lockPtr() *atomic.Int32 {
	return (*atomic.Int32)(unsafe.Pointer(&h.region[offsetLock]))
}

// Watermark is the current allocation high-water mark.
func (h *Heap) Watermark() uint32 {
	return h.watermarkPtr().Load()
}

// FreeMemory is the number of bytes between the watermark and the end
// of the region, i.e. what a fresh allocate could still claim from the
// top of the stack.
func (h *Heap) FreeMemory() uint32 {
	return uint32(len(h.region)) - h.Watermark()
}

// Stats is a point-in-time allocator snapshot, useful for tests and
// diagnostics that want to assert on allocator behavior.
type Stats struct {
	Watermark  uint32
	FreeMemory uint32
	RegionSize int
}

func (h *Heap) Stats() Stats {
	return Stats{
		Watermark:  h.Watermark(),
		FreeMemory: h.FreeMemory(),
		RegionSize: len(h.region),
	}
}

// lock spin-CASes the lock word, backing off with runtime.Gosched
// between attempts once 64 attempts have failed. Go has no portable
// futex wait/notify, so contention
// is handled by spinning then yielding rather than blocking in the
// kernel.
func (h *Heap) lock() {
	lp := h.lockPtr()
	spins := 0
	for !lp.CompareAndSwap(lockUnlocked, lockLocked) {
		spins++
		if spins > 64 {
			runtime.Gosched()
		}
	}
}

func (h *Heap) unlock() {
	h.lockPtr().Store(lockUnlocked)
}

func encodeTag(addr uint32, free bool) uint32 {
	v := addr << 1
	if free {
		v |= 1
	}
	return v
}

func decodeTag(tag uint32) (addr uint32, free bool) {
	return tag >> 1, tag&1 == 1
}

func (h *Heap) tagAt(offset uint32) *atomic.Uint32 {
	return (*atomic.Uint32)(unsafe.Pointer(&h.region[offset]))
}

// roundUp4 rounds n up to the next multiple of 4.
func roundUp4(n uint32) uint32 {
	return (n + 3) &^ 3
}

// blockSizeFor computes block_size = ((size+3)|3)+1, which rounds the
// payload up to a multiple of 4 and appends one word of trailing tag
// space.
func blockSizeFor(size uint32) uint32 {
	return ((size + 3) | 3) + 1
}

func (h *Heap) maxAlloc() uint32 {
	return uint32(len(h.region)) - HeaderSize - wordSize
}

// Allocate reserves a new block of at least size bytes from the top of
// the stack. The returned Block's PayloadSize is size rounded up to a
// multiple of 4.
func (h *Heap) Allocate(size uint32) (Block, error) {
	blockSize := blockSizeFor(size)
	if blockSize < wordSize {
		return Block{}, errs.AllocationFailure("invalid allocation size %d", size)
	}
	if blockSize-wordSize > h.maxAlloc() {
		return Block{}, errs.AllocationFailure("requested %d bytes exceeds max allocation %d", size, h.maxAlloc())
	}

	h.lock()
	if blockSize > h.FreeMemory() {
		h.unlock()
		return Block{}, errs.AllocationFailure("insufficient heap space: need %d, have %d free", blockSize, h.FreeMemory())
	}

	addr := h.watermarkPtr().Add(blockSize) - blockSize
	h.tagAt(addr + blockSize - wordSize).Store(encodeTag(addr, false))
	h.unlock()

	h.metrics.AllocateTotal().Inc()
	h.metrics.WatermarkBytes().Set(float64(h.Watermark()))
	klog.Debug("heap.allocate", h.id, "addr", addr, "payload", blockSize-wordSize)

	return Block{heap: h, start: addr, payloadSize: blockSize - wordSize}, nil
}

// AllocateZeroed is Allocate followed by zeroing the payload bytes.
func (h *Heap) AllocateZeroed(size uint32) (Block, error) {
	b, err := h.Allocate(size)
	if err != nil {
		return Block{}, err
	}
	view := b.View()
	for i := range view {
		view[i] = 0
	}
	return b, nil
}

// Free releases b. If b is contiguous with the top of the stack, the
// watermark walks back down through every other block that was freed
// while sitting below the (former) top, reclaiming all of them at once.
func (h *Heap) Free(b Block) error {
	if b.heap != h {
		return errs.InvalidBlock("block does not belong to this heap")
	}

	tagOffset := b.start + b.payloadSize
	h.lock()
	defer h.unlock()

	tag := h.tagAt(tagOffset).Load()
	if _, free := decodeTag(tag); free {
		return errs.InvalidBlock("double free at address %d", b.start)
	}

	h.tagAt(tagOffset).Store(encodeTag(b.start, true))

	if h.Watermark() == tagOffset+wordSize {
		h.walkDown()
	}

	h.metrics.FreeTotal().Inc()
	h.metrics.WatermarkBytes().Set(float64(h.Watermark()))
	klog.Debug("heap.free", h.id, "addr", b.start)
	return nil
}

// walkDown must be called with the lock held and the watermark sitting
// exactly at the end of a freed block's tag word. It walks back through
// every contiguous freed block below the (former) top, setting the
// watermark to the lowest one's start address.
func (h *Heap) walkDown() {
	wm := h.Watermark()
	for wm > HeaderSize {
		tag := h.tagAt(wm - wordSize).Load()
		addr, free := decodeTag(tag)
		if !free {
			break
		}
		wm = addr
	}
	h.watermarkPtr().Store(wm)
}

// Shrink reduces b's payload to newSize rounded up to a multiple of 4.
// If that is not smaller than b's current payload, Shrink does nothing
// and returns nil; a newSize of zero is rejected. If b is at the top of
// the stack the trimmed tail is immediately reclaimed like Free; if b is
// interior, the tail is only marked free, to be reclaimed once it is
// eventually exposed at the top. The shrunk block itself never becomes
// free as a side effect, so a later Free(b) on the remaining payload
// succeeds normally.
func (h *Heap) Shrink(b *Block, newSize uint32) error {
	if b.heap != h {
		return errs.InvalidBlock("block does not belong to this heap")
	}
	newPayload := roundUp4(newSize)
	if newPayload >= b.payloadSize {
		return nil
	}
	if newPayload == 0 {
		return errs.InvalidBlock("shrink to zero is invalid; use Free")
	}

	oldPayload := b.payloadSize
	oldTagOffset := b.start + oldPayload
	newTagOffset := b.start + newPayload
	freedTailStart := newTagOffset + wordSize

	h.lock()
	defer h.unlock()

	h.tagAt(newTagOffset).Store(encodeTag(b.start, false))
	h.tagAt(oldTagOffset).Store(encodeTag(freedTailStart, true))

	if h.Watermark() == oldTagOffset+wordSize {
		h.walkDown()
	}

	b.payloadSize = newPayload

	h.metrics.WatermarkBytes().Set(float64(h.Watermark()))
	klog.Debug("heap.shrink", h.id, "addr", b.start, "newPayload", newPayload)
	return nil
}
