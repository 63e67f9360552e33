package domain

// Transitions is an allowed-transition table for a status-as-column state
// machine. Keys are source statuses, values the statuses reachable from them.
// Statuses with no entry are absorbing.
type Transitions[S ~string] map[S][]S

// Allows reports whether moving from one status to another is permitted.
func (t Transitions[S]) Allows(from, to S) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Sources returns every status from which to is reachable, in a stable order
// determined by order.
func (t Transitions[S]) Sources(to S, order []S) []S {
	var sources []S
	for _, from := range order {
		if t.Allows(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}

// IsAbsorbing reports whether no transition leaves status s.
func (t Transitions[S]) IsAbsorbing(s S) bool {
	return len(t[s]) == 0
}

// Strings converts statuses to plain strings for storage queries.
func Strings[S ~string](statuses []S) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
