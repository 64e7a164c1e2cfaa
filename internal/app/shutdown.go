package app

import (
	"context"
	"errors"

	"meowstore/pkg/logger"
)

// Shutdown stops the HTTP server and maintenance, closes the store and
// releases the deployment lock.
func (a *App) Shutdown(ctx context.Context) error {
	a.setState("shutting_down")
	var errs []error

	if a.srvFast != nil {
		done := make(chan error, 1)
		go func() { done <- a.srvFast.Shutdown() }()
		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}
	if a.gate != nil {
		a.gate.Close()
	}
	if a.maintCancel != nil {
		a.maintCancel()
	}
	if a.hwSensor != nil {
		a.hwSensor.Stop()
	}
	a.closeStore()
	if err := a.lock.Release(); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err == nil {
		a.setState("stopped")
		logger.Info("shutdown_complete")
	}
	return err
}
