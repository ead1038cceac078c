package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Brownie44l1/styler/internal/domain"
)

// Stylizer is the style transfer model. Implementations receive two
// (1,S,S,3) tensors in [0,1] and must return one tensor of the same shape.
type Stylizer interface {
	Stylize(ctx context.Context, content, style domain.ImageTensor) (domain.ImageTensor, error)
}

type stylizeResult struct {
	tensor domain.ImageTensor
	err    error
}

// invoke calls s exactly once. Every failure, including a panic inside the
// model, an expired timeout and an output of the wrong shape, is reported as
// domain.ErrModelInvocation.
func invoke(ctx context.Context, s Stylizer, timeout time.Duration,
	content, style domain.ImageTensor) (domain.ImageTensor, error) {
	want := content.Shape()
	if want.Batch != 1 || style.Shape() != want {
		return domain.ImageTensor{}, fmt.Errorf("%w: content %s and style %s must both be single images of equal size",
			domain.ErrInvalidImageShape, want, style.Shape())
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan stylizeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- stylizeResult{err: fmt.Errorf("model panicked: %v", r)}
			}
		}()

		t, err := s.Stylize(ctx, content, style)
		done <- stylizeResult{tensor: t, err: err}
	}()

	var res stylizeResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	if res.err != nil {
		if errors.Is(res.err, domain.ErrModelInvocation) {
			return domain.ImageTensor{}, res.err
		}
		return domain.ImageTensor{}, fmt.Errorf("%w: %w", domain.ErrModelInvocation, res.err)
	}

	if got := res.tensor.Shape(); got != want {
		return domain.ImageTensor{}, fmt.Errorf("%w: model returned shape %s, want %s",
			domain.ErrModelInvocation, got, want)
	}

	return res.tensor, nil
}
