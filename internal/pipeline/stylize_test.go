package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Brownie44l1/styler/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoke(t *testing.T) {
	content := solidFrame(t, 4, 4, 0.1, 0.2, 0.3).Batched()
	style := solidFrame(t, 4, 4, 0.4, 0.5, 0.6).Batched()

	tests := []struct {
		name      string
		stylizer  Stylizer
		timeout   time.Duration
		wantErr   error
		wantColor []float32
	}{
		{
			name:      "success",
			stylizer:  &stubStylizer{color: [3]float32{0, 1, 0}},
			wantColor: []float32{0, 1, 0},
		},
		{
			name:     "model error",
			stylizer: &stubStylizer{err: errors.New("session gone")},
			wantErr:  domain.ErrModelInvocation,
		},
		{
			name: "model panic",
			stylizer: stylizerFunc(func(context.Context, domain.ImageTensor, domain.ImageTensor) (domain.ImageTensor, error) {
				panic("boom")
			}),
			wantErr: domain.ErrModelInvocation,
		},
		{
			name: "wrong output shape",
			stylizer: stylizerFunc(func(context.Context, domain.ImageTensor, domain.ImageTensor) (domain.ImageTensor, error) {
				return domain.NewImageTensor(domain.SquareShape(2), make([]float32, 12))
			}),
			wantErr: domain.ErrModelInvocation,
		},
		{
			name: "empty output",
			stylizer: stylizerFunc(func(context.Context, domain.ImageTensor, domain.ImageTensor) (domain.ImageTensor, error) {
				return domain.ImageTensor{}, nil
			}),
			wantErr: domain.ErrModelInvocation,
		},
		{
			name: "timeout",
			stylizer: stylizerFunc(func(context.Context, domain.ImageTensor, domain.ImageTensor) (domain.ImageTensor, error) {
				time.Sleep(time.Second)
				return domain.ImageTensor{}, nil
			}),
			timeout: 20 * time.Millisecond,
			wantErr: domain.ErrModelInvocation,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := invoke(t.Context(), tc.stylizer, tc.timeout, content, style)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, content.Shape(), got.Shape())
			assert.Equal(t, tc.wantColor, got.Data()[:3])
		})
	}
}

func TestInvokeTimeoutWrapsDeadline(t *testing.T) {
	content := solidFrame(t, 2, 2, 0, 0, 0).Batched()
	block := stylizerFunc(func(ctx context.Context, _, _ domain.ImageTensor) (domain.ImageTensor, error) {
		<-ctx.Done()
		return domain.ImageTensor{}, ctx.Err()
	})

	_, err := invoke(t.Context(), block, 10*time.Millisecond, content, content)
	require.ErrorIs(t, err, domain.ErrModelInvocation)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInvokeDoesNotDoubleWrap(t *testing.T) {
	content := solidFrame(t, 2, 2, 0, 0, 0).Batched()
	inner := errors.Join(domain.ErrModelInvocation, errors.New("output name missing"))

	_, err := invoke(t.Context(), &stubStylizer{err: inner}, 0, content, content)
	assert.Equal(t, inner, err)
}

func TestInvokeRejectsMismatchedInputs(t *testing.T) {
	s := &stubStylizer{}
	content := solidFrame(t, 4, 4, 0, 0, 0).Batched()
	style := solidFrame(t, 2, 2, 0, 0, 0).Batched()

	_, err := invoke(t.Context(), s, 0, content, style)
	assert.ErrorIs(t, err, domain.ErrInvalidImageShape)
	assert.Zero(t, s.calls)
}
