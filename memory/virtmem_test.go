package memory

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestVirtualMemory(t *testing.T) {
	n := neko.Modern(t)

	n.It("rejects overlapping regions", func(t *testing.T) {
		vm := NewVirtualMemory()

		_, err := vm.NewRegion(CodeBase, PageSize, false)
		require.NoError(t, err)

		_, err = vm.NewRegion(CodeBase, 2*PageSize, true)
		require.Equal(t, ErrBadRegionRequest, errors.Cause(err))
	})

	n.It("rejects regions reaching into kernel space", func(t *testing.T) {
		vm := NewVirtualMemory()

		_, err := vm.NewRegion(UserTop-PageSize, 2*PageSize, true)
		require.Equal(t, ErrBadRegionRequest, errors.Cause(err))
	})

	n.It("validates ranges against mappings and permissions", func(t *testing.T) {
		vm := NewVirtualMemory()

		_, err := vm.NewRegion(CodeBase, PageSize, false)
		require.NoError(t, err)

		_, err = vm.NewRegion(CodeBase+PageSize, PageSize, true)
		require.NoError(t, err)

		require.True(t, vm.IsUserRangeValid(CodeBase, 16, false))
		require.False(t, vm.IsUserRangeValid(CodeBase, 16, true))

		// spans both regions
		require.True(t, vm.IsUserRangeValid(CodeBase+PageSize-8, 16, false))
		require.False(t, vm.IsUserRangeValid(CodeBase+PageSize-8, 16, true))

		require.True(t, vm.IsUserRangeValid(CodeBase+PageSize, PageSize, true))
		require.False(t, vm.IsUserRangeValid(CodeBase+PageSize, PageSize+1, true))

		require.False(t, vm.IsUserRangeValid(0x1000, 1, false))
		require.False(t, vm.IsUserRangeValid(UserTop, 0, false))
		require.False(t, vm.IsUserRangeValid(^uint64(0)-4, 16, false))
	})

	n.It("copies across region boundaries", func(t *testing.T) {
		vm := NewVirtualMemory()

		_, err := vm.NewRegion(CodeBase, PageSize, true)
		require.NoError(t, err)

		_, err = vm.NewRegion(CodeBase+PageSize, PageSize, true)
		require.NoError(t, err)

		data := []byte("hello, world")
		addr := int64(CodeBase + PageSize - 5)

		n, err := vm.WriteAt(data, addr)
		require.NoError(t, err)
		require.Equal(t, len(data), n)

		out := make([]byte, len(data))
		n, err = vm.ReadAt(out, addr)
		require.NoError(t, err)
		require.Equal(t, len(data), n)
		require.Equal(t, data, out)

		n, err = vm.ReadAt(make([]byte, 2*PageSize), addr)
		require.Equal(t, ErrInvalidMemoryAccess, errors.Cause(err))
		require.Equal(t, PageSize+5, n)
	})

	n.Meow()
}
