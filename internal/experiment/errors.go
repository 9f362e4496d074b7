package experiment

import (
	"errors"
	"fmt"
)

// #region sentinels

var (
	// ErrDefinition is matched by every structural problem in a definition.
	ErrDefinition = errors.New("invalid experiment definition")
	// ErrCapacity is matched by fixed hard-limit violations.
	ErrCapacity = errors.New("capacity exceeded")
)

// #endregion sentinels

// #region definition-error

// DefinitionError reports a structurally invalid experiment graph. It is always
// raised at compile time.
type DefinitionError struct {
	Path string // e.g. "section \"main\" / variable \"contrast\""
	Msg  string
}

func (e *DefinitionError) Error() string {
	if e.Path == "" {
		return e.Msg
	}
	return e.Path + ": " + e.Msg
}

func (e *DefinitionError) Unwrap() error { return ErrDefinition }

// Definitionf builds a *DefinitionError.
func Definitionf(path, format string, args ...any) error {
	return &DefinitionError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// #endregion definition-error

// #region capacity-error

// CapacityError reports a count over one of the fixed maxima. It matches both
// ErrCapacity and ErrDefinition.
type CapacityError struct {
	Path   string
	What   string
	Actual int
	Max    int
}

func (e *CapacityError) Error() string {
	msg := fmt.Sprintf("%s count %d exceeds maximum %d", e.What, e.Actual, e.Max)
	if e.Path == "" {
		return msg
	}
	return e.Path + ": " + msg
}

func (e *CapacityError) Unwrap() []error { return []error{ErrCapacity, ErrDefinition} }

// #endregion capacity-error

// #region consistency

// ConsistencyError is raised (as a panic) when an invariant established by a
// successful compile is violated.
type ConsistencyError struct {
	Msg string
}

func (e ConsistencyError) Error() string { return "consistency violation: " + e.Msg }

// Assertf panics with a ConsistencyError when cond is false.
func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(ConsistencyError{Msg: fmt.Sprintf(format, args...)})
	}
}

// #endregion consistency

// #region paths

// SectionPath formats the error path of a section.
func SectionPath(section string) string { return fmt.Sprintf("section %q", section) }

// ScenePath formats the error path of a scene.
func ScenePath(section, scene string) string {
	return fmt.Sprintf("section %q / scene %q", section, scene)
}

// ObjectPath formats the error path of an object.
func ObjectPath(section, scene, object string) string {
	return fmt.Sprintf("section %q / scene %q / object %q", section, scene, object)
}

// VariablePath formats the error path of a variable.
func VariablePath(section, variable string) string {
	return fmt.Sprintf("section %q / variable %q", section, variable)
}

// #endregion paths
