package state

import (
	"time"
)

// RepeatTask runs fun immediately and then every delay until the context is cancelled.
// Runs never overlap; a run that takes longer than delay delays the next one.
func (e *Env) RepeatTask(fun func(), delay time.Duration) {
	e.Group.Go(func() error {
		ticker := time.NewTicker(delay)
		defer ticker.Stop()
		for e.Context.Err() == nil {
			fun()
			select {
			case <-e.Context.Done():
				return nil
			case <-ticker.C:
			}
		}
		return nil
	})
}

// Go runs fun under the daemon's task group.
func (e *Env) Go(fun func() error) {
	e.Group.Go(fun)
}
