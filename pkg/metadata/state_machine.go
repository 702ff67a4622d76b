package metadata

import (
	"fmt"

	custom_error "sitewarehouse/pkg/errors"
)

// Transition is a named edge of a state machine. A transition may start
// from several states but always lands in exactly one.
type Transition[S ~string] struct {
	Name string
	From []S
	To   S
}

// StateMachine holds the allowed transitions of one aggregate as data so
// every guard is checked in one place before anything is mutated.
type StateMachine[S ~string] struct {
	entity      string
	transitions map[string]Transition[S]
}

func NewStateMachine[S ~string](entity string, transitions ...Transition[S]) StateMachine[S] {
	m := StateMachine[S]{
		entity:      entity,
		transitions: make(map[string]Transition[S], len(transitions)),
	}
	for _, t := range transitions {
		m.transitions[t.Name] = t
	}
	return m
}

// Guard returns the target state of the named transition, or a
// StateGuardError naming the current and required states.
func (m StateMachine[S]) Guard(name string, id int, current S) (S, error) {
	t, ok := m.transitions[name]
	if !ok {
		return current, fmt.Errorf("%s: unknown transition %q", m.entity, name)
	}

	for _, from := range t.From {
		if from == current {
			return t.To, nil
		}
	}

	required := make([]string, 0, len(t.From))
	for _, from := range t.From {
		required = append(required, string(from))
	}

	return current, &custom_error.StateGuardError{
		Entity:     m.entity,
		ID:         id,
		Transition: name,
		Current:    string(current),
		Required:   required,
	}
}

func (m StateMachine[S]) Can(name string, current S) bool {
	_, err := m.Guard(name, 0, current)
	return err == nil
}

// Sources returns the states the named transition may start from.
func (m StateMachine[S]) Sources(name string) []S {
	return m.transitions[name].From
}
