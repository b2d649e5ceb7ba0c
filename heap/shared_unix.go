//go:build unix

package heap

import (
	"golang.org/x/sys/unix"

	"github.com/logv/kruda/internal/errs"
	"github.com/logv/kruda/internal/metrics"
)

// NewSharedRegion mmaps an anonymous, process-shared region of size
// bytes and wraps it as a Heap, so independently-forked workers can map
// the same region and allocate from it concurrently. The region is
// never munmapped by this package; callers that need to release it pass
// the returned Heap's Region() slice to unix.Munmap themselves.
func NewSharedRegion(size int, reg metrics.Registry) (*Heap, error) {
	if err := validateSize(size); err != nil {
		return nil, err
	}
	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, errs.AllocationFailure("mmap shared region of %d bytes: %v", size, err)
	}
	if reg == nil {
		reg = metrics.NoOp
	}
	h, hErr := Wrap(region, reg)
	if hErr != nil {
		_ = unix.Munmap(region)
		return nil, hErr
	}
	h.Init()
	return h, nil
}
