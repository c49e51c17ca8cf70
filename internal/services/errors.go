package services

import (
	"context"
	"errors"
	"fmt"
)

// ErrPersistence marks a failure of the relational store. Callers on the request
// path translate it into an internal error; best-effort work only logs it.
var ErrPersistence = errors.New("persistence failure")

func persistenceError(scope, op string, err error) error {
	return fmt.Errorf("%s: %s: %w: %w", scope, op, ErrPersistence, err)
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
