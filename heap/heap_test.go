package heap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestHeap(t *testing.T, size int) *Heap {
	t.Helper()
	h, err := NewRegion(size)
	require.NoError(t, err)
	return h
}

func TestNewRegionRejectsBadSizes(t *testing.T) {
	_, err := NewRegion(100) // not a power of two below 16MiB
	require.Error(t, err)

	_, err = NewRegion(17) // not a multiple of 4
	require.Error(t, err)

	_, err = NewRegion(4) // below HeaderSize
	require.Error(t, err)
}

func TestInitialWatermark(t *testing.T) {
	h := newTestHeap(t, 4096)
	require.Equal(t, uint32(HeaderSize), h.Watermark())
	require.Equal(t, uint32(4096-HeaderSize), h.FreeMemory())
}

func TestAllocateAdvancesWatermark(t *testing.T) {
	h := newTestHeap(t, 4096)
	b, err := h.Allocate(10)
	require.NoError(t, err)
	require.Equal(t, uint32(HeaderSize), b.Start())
	require.Equal(t, uint32(12), b.PayloadSize()) // rounds 10 up to 12

	require.Equal(t, HeaderSize+12+4, int(h.Watermark()))
}

func TestAllocateWritesPayloadView(t *testing.T) {
	h := newTestHeap(t, 4096)
	b, err := h.Allocate(8)
	require.NoError(t, err)

	view := b.View()
	require.Len(t, view, 8)
	for i := range view {
		view[i] = byte(i + 1)
	}
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, b.View())
}

func TestAllocateZeroedClearsPayload(t *testing.T) {
	h := newTestHeap(t, 4096)
	b, err := h.Allocate(4)
	require.NoError(t, err)
	for i := range b.View() {
		b.View()[i] = 0xff
	}
	require.NoError(t, h.Free(b))

	b2, err := h.AllocateZeroed(4)
	require.NoError(t, err)
	for _, bb := range b2.View() {
		require.Equal(t, byte(0), bb)
	}
}

func TestAllocateFailsWhenOutOfSpace(t *testing.T) {
	h := newTestHeap(t, 64)
	_, err := h.Allocate(1000)
	require.Error(t, err)
}

func TestFreeOfTopReclaimsWatermark(t *testing.T) {
	h := newTestHeap(t, 4096)
	initial := h.Watermark()

	a, err := h.Allocate(16)
	require.NoError(t, err)
	require.NoError(t, h.Free(a))

	require.Equal(t, initial, h.Watermark())
}

func TestDoubleFreeRejected(t *testing.T) {
	h := newTestHeap(t, 4096)
	a, err := h.Allocate(16)
	require.NoError(t, err)
	require.NoError(t, h.Free(a))
	require.Error(t, h.Free(a))
}

// TestStackReclaimWalksDownThroughInteriorFrees verifies freeing an
// interior block doesn't move the watermark, but freeing the block
// above it afterward walks back down through both.
func TestStackReclaimWalksDownThroughInteriorFrees(t *testing.T) {
	h := newTestHeap(t, 4096)
	initial := h.Watermark()

	a, err := h.Allocate(1024)
	require.NoError(t, err)
	b, err := h.Allocate(1024)
	require.NoError(t, err)
	c, err := h.Allocate(1024)
	require.NoError(t, err)

	afterC := h.Watermark()
	require.NoError(t, h.Free(b))
	require.Equal(t, afterC, h.Watermark(), "freeing an interior block must not move the watermark")

	require.NoError(t, h.Free(c))
	require.Equal(t, a.Start()+a.PayloadSize()+4, h.Watermark(), "freeing the top must walk down through the already-freed interior block")

	require.Error(t, h.Free(b), "b was already reclaimed by the walk-down; freeing it again is a double free")

	require.NoError(t, h.Free(a))
	require.Equal(t, initial, h.Watermark())
}

func TestShrinkNoOpWhenNotSmaller(t *testing.T) {
	h := newTestHeap(t, 4096)
	b, err := h.Allocate(64)
	require.NoError(t, err)
	before := h.Watermark()

	require.NoError(t, h.Shrink(&b, 64))
	require.NoError(t, h.Shrink(&b, 1000))
	require.Equal(t, before, h.Watermark())
	require.Equal(t, uint32(64), b.PayloadSize())
}

func TestShrinkAtTopReclaimsTail(t *testing.T) {
	h := newTestHeap(t, 4096)
	b, err := h.Allocate(64)
	require.NoError(t, err)

	require.NoError(t, h.Shrink(&b, 16))
	require.Equal(t, uint32(16), b.PayloadSize())
	require.Equal(t, b.Start()+16+4, h.Watermark())
}

func TestShrinkInteriorDoesNotMoveWatermarkThenFreeSucceeds(t *testing.T) {
	h := newTestHeap(t, 4096)
	a, err := h.Allocate(64)
	require.NoError(t, err)
	c, err := h.Allocate(32)
	require.NoError(t, err)

	beforeShrink := h.Watermark()
	require.NoError(t, h.Shrink(&a, 16))
	require.Equal(t, beforeShrink, h.Watermark(), "shrinking an interior block must not move the watermark")

	require.NoError(t, h.Free(a), "the shrunk block itself must still free cleanly")
	require.Equal(t, beforeShrink, h.Watermark(), "a is still interior; its free must not move the watermark either")

	require.NoError(t, h.Free(c))
}

func TestShrinkToZeroRejected(t *testing.T) {
	h := newTestHeap(t, 4096)
	b, err := h.Allocate(64)
	require.NoError(t, err)
	require.Error(t, h.Shrink(&b, 0))
}

func TestStatsSnapshot(t *testing.T) {
	h := newTestHeap(t, 4096)
	_, err := h.Allocate(100)
	require.NoError(t, err)

	s := h.Stats()
	require.Equal(t, 4096, s.RegionSize)
	require.Equal(t, h.Watermark(), s.Watermark)
	require.Equal(t, h.FreeMemory(), s.FreeMemory)
}

func TestConcurrentAllocateNeverOverlaps(t *testing.T) {
	h := newTestHeap(t, 1<<20)
	const workers = 32
	const perWorker = 50

	type span struct{ start, end uint32 }
	spans := make(chan span, workers*perWorker)
	done := make(chan struct{})

	for i := 0; i < workers; i++ {
		go func() {
			for j := 0; j < perWorker; j++ {
				b, err := h.Allocate(16)
				if err != nil {
					continue
				}
				spans <- span{b.Start(), b.Start() + b.PayloadSize() + 4}
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < workers; i++ {
		<-done
	}
	close(spans)

	var all []span
	for s := range spans {
		all = append(all, s)
	}
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			overlap := all[i].start < all[j].end && all[j].start < all[i].end
			require.False(t, overlap, "blocks %v and %v overlap", all[i], all[j])
		}
	}
}
