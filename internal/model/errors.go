package model

import (
	"fmt"

	"podsync/internal/engine"
)

// ListError 全量列出失败，本次刷新放弃，列表保持原状
type ListError struct {
	Kind engine.Kind
	Err  error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("error on listing %ss: %v", e.Kind, e.Err)
}

func (e *ListError) Unwrap() error {
	return e.Err
}

// InspectError 单个实体检查失败
type InspectError struct {
	Kind engine.Kind
	ID   string
	Err  error
}

func (e *InspectError) Error() string {
	return fmt.Sprintf("error on inspecting %s '%s': %v", e.Kind, e.ID, e.Err)
}

func (e *InspectError) Unwrap() error {
	return e.Err
}
