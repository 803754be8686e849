package sandbox

import "testing"

// State transitions are NEW -> LOADED -> RENDERING -> CLOSED; this just
// pins the ordering so a future edit can't silently reorder the iota block.
func TestStateOrdering(t *testing.T) {
	if !(StateNew < StateLoaded && StateLoaded < StateRendering && StateRendering < StateClosed) {
		t.Fatalf("sandbox state ordering broken: %v %v %v %v", StateNew, StateLoaded, StateRendering, StateClosed)
	}
}
