package service

import (
	"context"
	"time"
)

// Retriable calls fn up to tries times, waiting backoff (doubled after each
// attempt) between two calls. It gives up early if the error is not temporary
// or the context is done.
func Retriable(ctx context.Context, fn func() error, backoff time.Duration, tries int) error {
	var err error
	for i := 0; i < tries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return MergeErrors(true, err, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err = fn(); err == nil {
			return nil
		}
		if !Temporary(err) {
			return err
		}
	}
	return err
}
