package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequest_Counters(t *testing.T) {
	r := &Request{}
	r.IncPackageFetches()
	r.IncPackageFetches()
	r.IncFromCache()
	r.AddVMContextSize(10)
	r.AddVMContextSize(5)

	assert.Equal(t, int64(2), r.PackageFetches)
	assert.Equal(t, int64(1), r.FromCache)
	assert.Equal(t, int64(30), r.VMContextSize)
}

func TestRegistry_BeginEnd(t *testing.T) {
	reg := NewRegistry(nil)
	assert.Equal(t, int64(0), reg.Pending())

	first := reg.Begin()
	assert.Equal(t, int64(1), first)

	second := reg.Begin()
	assert.Equal(t, int64(2), second)

	reg.End()
	assert.Equal(t, int64(1), reg.Pending())

	reg.End()
	assert.Equal(t, int64(0), reg.Pending())
}

func TestRegistry_Concurrent(t *testing.T) {
	reg := NewRegistry(nil)
	var wg sync.WaitGroup
	n := 50

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.Begin()
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(n), reg.Pending())

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.End()
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(0), reg.Pending())
}
