package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"paperflow/internal/domain"
	"paperflow/internal/port"
	"paperflow/internal/retry"
)

// input reads spans sequentially and reopens the source at the last good
// position after a transient read failure.
type input struct {
	src    port.RecordSource
	policy retry.Policy
	logger *zap.Logger

	rd  port.RecordReader
	pos domain.Position
}

func (in *input) connect(ctx context.Context) error {
	if in.rd != nil {
		return nil
	}
	rd, err := in.src.Open(ctx, in.pos)
	if err != nil {
		if errors.Is(err, domain.ErrInputNotFound) || errors.Is(err, domain.ErrInvalidConfig) {
			return retry.Permanent(err)
		}
		return err
	}
	in.rd = rd
	return nil
}

// open positions the reader at the start position. Errors are
// configuration or input class and fatal for the run.
func (in *input) open(ctx context.Context) error {
	res := in.policy.Do(ctx, in.logger, "open input", in.connect)
	if res.OK() {
		return nil
	}
	if errors.Is(res.Err, domain.ErrInputNotFound) || errors.Is(res.Err, domain.ErrInvalidConfig) {
		return fmt.Errorf("opening input at %s: %w", in.pos, res.Err)
	}
	return fmt.Errorf("%w: opening input at %s: %w", domain.ErrInputUnreadable, in.pos, res.Err)
}

// next returns the following span or io.EOF.
func (in *input) next(ctx context.Context) (domain.Span, error) {
	var span domain.Span
	res := in.policy.Do(ctx, in.logger, "read input", func(ctx context.Context) error {
		if err := in.connect(ctx); err != nil {
			return err
		}
		s, err := in.rd.Next(ctx)
		if errors.Is(err, io.EOF) {
			return retry.Permanent(io.EOF)
		}
		if err != nil {
			in.rd.Close()
			in.rd = nil
			return err
		}
		span = s
		return nil
	})
	switch {
	case res.OK():
		in.pos = span.Next
		return span, nil
	case errors.Is(res.Err, io.EOF):
		return domain.Span{}, io.EOF
	case errors.Is(res.Err, domain.ErrInputNotFound):
		return domain.Span{}, fmt.Errorf("reading input at %s: %w", in.pos, res.Err)
	default:
		return domain.Span{}, fmt.Errorf("%w: at %s after %d attempts: %w", domain.ErrInputUnreadable, in.pos, res.Attempts, res.Err)
	}
}

func (in *input) close() {
	if in.rd != nil {
		in.rd.Close()
		in.rd = nil
	}
}
