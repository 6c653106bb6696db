package scheduler

import (
	"github.com/Diomandeee/learnnko-sub000/errors"
	"github.com/Diomandeee/learnnko-sub000/pulse/checkpoint"
)

// RetryFailed clears the recorded failures in the checkpoint at store so the
// next run dispatches those jobs again in fetch order. Run it while the
// scheduler is stopped; a running loop would overwrite the change.
func RetryFailed(store *checkpoint.Store) ([]string, error) {
	state, err := store.Load()
	if err != nil {
		return nil, err
	}
	if state.FailedCount() == 0 {
		return nil, nil
	}
	ids := state.RetryFailed()
	if err := store.Save(state); err != nil {
		return nil, errors.Wrap(err, "save checkpoint after retry-failed")
	}
	return ids, nil
}
