package service

import (
	"fmt"

	"github.com/jbweber/homelab/policyd/internal/repository"
)

// NotFoundError reports that no policy is stored under ID.
// It matches repository.ErrNotFound with errors.Is.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("policy not found with id: %d", e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return repository.ErrNotFound
}
