package gateway

// State is a step of a single lookup.
type State string

const (
	StateReceived     State = "RECEIVED"
	StateQuantized    State = "QUANTIZED"
	StateKeyBuilt     State = "KEY_BUILT"
	StateCacheChecked State = "CACHE_CHECKED"
	StateHitReturned  State = "HIT_RETURNED"
	StateFetching     State = "FETCHING"
	StateNormalized   State = "NORMALIZED"
	StateStored       State = "STORED"
	StateMissReturned State = "MISS_RETURNED"
	StateFailed       State = "FAILED"
)

func (s State) Terminal() bool {
	return s == StateHitReturned || s == StateMissReturned || s == StateFailed
}

// next lists the legal successors of each state.
var next = map[State][]State{
	StateReceived:     {StateQuantized, StateKeyBuilt, StateFailed},
	StateQuantized:    {StateKeyBuilt, StateFailed},
	StateKeyBuilt:     {StateCacheChecked, StateFetching, StateFailed},
	StateCacheChecked: {StateHitReturned, StateFetching, StateFailed},
	StateFetching:     {StateNormalized, StateFailed},
	StateNormalized:   {StateStored, StateMissReturned, StateFailed},
	StateStored:       {StateMissReturned, StateFailed},
}

// CanTransition reports whether to is a legal successor of from.
func CanTransition(from, to State) bool {
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}
