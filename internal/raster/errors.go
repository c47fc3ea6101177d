package raster

import (
	"errors"
	"fmt"
)

// BackendError - ошибка материализации. Transient отличает
// восстановимые сбои (сеть, таймаут, квоты, 5xx) от постоянных:
// первые имеет смысл повторять с выдержкой, вторые - нет
type BackendError struct {
	Op        string
	Status    int
	Transient bool
	Err       error
}

func (e *BackendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("raster backend %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("raster backend %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsTransient сообщает, стоит ли повторять вызов
func IsTransient(err error) bool {
	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		return backendErr.Transient
	}
	return false
}

// IsBackend сообщает, пришла ли ошибка от растрового бэкенда
func IsBackend(err error) bool {
	var backendErr *BackendError
	return errors.As(err, &backendErr)
}
