package enclave

// State is the dispatcher lifecycle position.
type State int

const (
	AwaitingSchema State = iota
	AwaitingIdentities
	AcceptingData
	ServingRequests
)

func (s State) String() string {
	switch s {
	case AwaitingSchema:
		return "AWAITING_SCHEMA"
	case AwaitingIdentities:
		return "AWAITING_IDENTITIES"
	case AcceptingData:
		return "ACCEPTING_DATA"
	case ServingRequests:
		return "SERVING_REQUESTS"
	}
	return "UNKNOWN"
}

// MarshalText renders the state name in JSON diagnostics.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
