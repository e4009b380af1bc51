package gateway

import "testing"

func TestCanTransition(t *testing.T) {
	legal := [][2]State{
		{StateReceived, StateQuantized},
		{StateReceived, StateKeyBuilt},
		{StateKeyBuilt, StateFetching},
		{StateCacheChecked, StateHitReturned},
		{StateNormalized, StateMissReturned},
		{StateStored, StateMissReturned},
		{StateFetching, StateFailed},
	}
	for _, tr := range legal {
		if !CanTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s should be legal", tr[0], tr[1])
		}
	}

	illegal := [][2]State{
		{StateReceived, StateHitReturned},
		{StateFetching, StateStored},
		{StateHitReturned, StateFetching},
		{StateMissReturned, StateFailed},
		{StateFailed, StateReceived},
	}
	for _, tr := range illegal {
		if CanTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s should be illegal", tr[0], tr[1])
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []State{StateHitReturned, StateMissReturned, StateFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if StateFetching.Terminal() {
		t.Errorf("FETCHING is not terminal")
	}
}
