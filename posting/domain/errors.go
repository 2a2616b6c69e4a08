package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("resource not found")
	ErrRateLimited = errors.New("too many requests")
	// ErrInternal cobre o que não se encaixa em outra categoria
	// (ex.: identidade ausente no contexto).
	ErrInternal = errors.New("internal server error")
)

// ValidationError carrega a mensagem legível devolvida ao cliente.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return "validation: " + e.Message }

// StorageError embrulha qualquer falha do Store. O detalhe fica para o log.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// RateLimitedError acompanha ErrRateLimited com a espera sugerida.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string { return ErrRateLimited.Error() }

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }
