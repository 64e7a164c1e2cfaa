package db

// Outcome reports whether a mutation changed the store.
type Outcome uint8

const (
	// AlreadyInState means the store already matched the requested end
	// state and nothing was written.
	AlreadyInState Outcome = iota + 1
	// Mutated means the store was changed.
	Mutated
)

// Existed is the boolean form used on the wire: true for AlreadyInState.
func (o Outcome) Existed() bool { return o == AlreadyInState }

func (o Outcome) String() string {
	if o == AlreadyInState {
		return "already_in_state"
	}
	return "mutated"
}
