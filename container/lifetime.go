package container

import (
	"fmt"
	"strings"
)

// Lifetime controls how long a resolved handler instance lives.
type Lifetime int

const (
	// Scoped handlers are created once per Scope.
	Scoped Lifetime = iota
	// Transient handlers are created on every resolution.
	Transient
	// Singleton handlers are created once per Container.
	Singleton
)

func (l Lifetime) String() string {
	switch l {
	case Scoped:
		return "scoped"
	case Transient:
		return "transient"
	case Singleton:
		return "singleton"
	default:
		return fmt.Sprintf("lifetime(%d)", int(l))
	}
}

// ParseLifetime parses "scoped", "transient" or "singleton".
func ParseLifetime(s string) (Lifetime, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "scoped", "":
		return Scoped, nil
	case "transient":
		return Transient, nil
	case "singleton":
		return Singleton, nil
	}
	return 0, fmt.Errorf("container: unknown lifetime %q", s)
}

// DuplicatePolicy decides what happens when a key is bound twice.
type DuplicatePolicy int

const (
	// DuplicateError rejects the second binding with ErrDuplicateBinding.
	DuplicateError DuplicatePolicy = iota
	// DuplicateReplace keeps the last binding.
	DuplicateReplace
)

func (p DuplicatePolicy) String() string {
	switch p {
	case DuplicateError:
		return "error"
	case DuplicateReplace:
		return "replace"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParseDuplicatePolicy parses "error" or "replace".
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "":
		return DuplicateError, nil
	case "replace":
		return DuplicateReplace, nil
	}
	return 0, fmt.Errorf("container: unknown duplicate policy %q", s)
}
