package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRetrieval        = errors.New("retrieval failed")
	ErrConfigValidation = errors.New("invalid routing config")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTemporary        = errors.New("temporary failure")
)

// kindNames is ordered: a temporary retrieval failure reports as "temporary".
var kindNames = []struct {
	kind error
	name string
}{
	{ErrInvalidInput, "invalid_input"},
	{ErrUnauthorized, "unauthorized"},
	{ErrConfigValidation, "config_validation"},
	{ErrTemporary, "temporary"},
	{ErrRetrieval, "retrieval"},
}

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// KindOf names the first matching error kind, or "internal".
func KindOf(err error) string {
	for _, k := range kindNames {
		if errors.Is(err, k.kind) {
			return k.name
		}
	}
	return "internal"
}
