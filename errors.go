package manifest

import "fmt"

type LockedStorageError struct{}

func (e LockedStorageError) Error() string {
	return "storage is currently locked"
}

type DeadEntityError struct {
	Entity Entity
}

func (e DeadEntityError) Error() string {
	return fmt.Sprintf("entity %d is not alive", uint64(e.Entity))
}

type ComponentExistsError struct {
	ID Entity
}

func (e ComponentExistsError) Error() string {
	return fmt.Sprintf("component already exists on entity: %d", uint64(e.ID))
}

type ComponentNotFoundError struct {
	ID Entity
}

func (e ComponentNotFoundError) Error() string {
	return fmt.Sprintf("component does not exist on entity: %d", uint64(e.ID))
}

type EmptyRuleError struct{}

func (e EmptyRuleError) Error() string {
	return "rule has no terms"
}

type NegatedRuleError struct{}

func (e NegatedRuleError) Error() string {
	return "rule contains only negated terms"
}

type TooManyVariablesError struct {
	Count int
}

func (e TooManyVariablesError) Error() string {
	return fmt.Sprintf("too many variables in rule (%d)", e.Count)
}

type UnconstrainedVariableError struct {
	Name string
}

func (e UnconstrainedVariableError) Error() string {
	return fmt.Sprintf("unconstrained variable %s", e.Name)
}

type MissingVariableError struct {
	Position string
	Name     string
}

func (e MissingVariableError) Error() string {
	return fmt.Sprintf("missing %s variable %s in Not term", e.Position, e.Name)
}

type IteratorStartedError struct{}

func (e IteratorStartedError) Error() string {
	return "variables cannot be set after iteration has started"
}
