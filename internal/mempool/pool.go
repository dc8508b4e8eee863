// Package mempool recycles the float32 buffers behind model input tensors.
// A face check builds one detector tensor, one landmark tensor per face and
// one segmentation tensor, each sized by the model input, so the same few
// size classes repeat for every photo.
package mempool

import "sync"

const classStep = 1024

var float32Pools sync.Map // size class -> *sync.Pool

// sizeClass rounds n up to a multiple of 1024 elements.
func sizeClass(n int) int {
	if n <= classStep {
		return classStep
	}
	return (n + classStep - 1) / classStep * classStep
}

func poolFor(cls int) *sync.Pool {
	if p, ok := float32Pools.Load(cls); ok {
		return p.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
	}
	p, _ := float32Pools.LoadOrStore(cls, &sync.Pool{
		New: func() any { return make([]float32, cls) },
	})
	return p.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

// GetFloat32 returns a buffer of length n. Its contents are not zeroed.
// Return it with PutFloat32 once nothing references it.
func GetFloat32(n int) []float32 {
	if n <= 0 {
		return nil
	}
	cls := sizeClass(n)
	buf, ok := poolFor(cls).Get().([]float32)
	if !ok || cap(buf) < cls {
		buf = make([]float32, cls)
	}
	return buf[:n]
}

// PutFloat32 hands buf back to its pool. Buffers whose capacity is not a size
// class, such as slices allocated elsewhere, are dropped.
func PutFloat32(buf []float32) {
	c := cap(buf)
	if c == 0 || c != sizeClass(c) {
		return
	}
	poolFor(c).Put(buf[:c]) //nolint:staticcheck // slices are small headers
}
