package cdp

import (
	"context"
	"fmt"

	"cdpsnap/pkg/model"
)

// call 依次执行命令，每条命令单独计时；任何协议错误统一包装为 ErrCommandFailed
func (s *Session) call(ctx context.Context, method string, steps ...func(context.Context) error) error {
	if s.conn == nil {
		return fmt.Errorf("%s: %w", method, model.ErrNotAttached)
	}
	for _, step := range steps {
		if err := s.step(ctx, step); err != nil {
			return commandError(method, err)
		}
	}
	return nil
}

func (s *Session) step(ctx context.Context, fn func(context.Context) error) error {
	if s.timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}

// commandError 规范化命令错误
func commandError(method string, err error) error {
	return fmt.Errorf("%w: %s: %v", model.ErrCommandFailed, method, err)
}
