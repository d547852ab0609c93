package model

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyAttached = errors.New("target already attached")
	ErrAttachFailed    = errors.New("attach failed")
	ErrNotAttached     = errors.New("not attached")
	ErrCommandFailed   = errors.New("command failed")
	ErrTargetNotFound  = errors.New("target node not found")
)

// CaptureError 捕获流程中不可恢复的失败
type CaptureError struct {
	Stage string
	Err   error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture failed at %s: %v", e.Stage, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// CaptureFailed 将 err 包装为 CaptureError，已是 CaptureError 时原样返回
func CaptureFailed(stage string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CaptureError
	if errors.As(err, &ce) {
		return err
	}
	return &CaptureError{Stage: stage, Err: err}
}
