package db

import (
	"context"

	"meowstore/pkg/logger"
)

// ConsumeErrors logs reports from errs until it is closed or ctx is done.
// Writers block while the channel is full, so something must always drain it.
func ConsumeErrors(ctx context.Context, errs <-chan InternalError) {
	for {
		select {
		case ie, ok := <-errs:
			if !ok {
				return
			}
			logger.Error("internal_error", "op", string(ie.Op), "subsystem", string(ie.Subsystem), "error", ie.Err)
		case <-ctx.Done():
			return
		}
	}
}
