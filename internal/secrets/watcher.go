package secrets

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Backoff applied to watch-error recovery: reset to init after every clean
// event, doubling up to max on repeated errors.
const (
	watchErrInitBackoff = 1 * time.Second
	watchErrMaxBackoff  = 30 * time.Second
	watchErrBackoffMult = 2
)

// FileWatcher abstracts filesystem event monitoring. Satisfied by
// *fsnotify.Watcher; tests inject a fake.
type FileWatcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWatcher struct {
	w *fsnotify.Watcher
}

func (fw *fsnotifyWatcher) Add(name string) error          { return fw.w.Add(name) }
func (fw *fsnotifyWatcher) Close() error                   { return fw.w.Close() }
func (fw *fsnotifyWatcher) Events() <-chan fsnotify.Event  { return fw.w.Events }
func (fw *fsnotifyWatcher) Errors() <-chan error           { return fw.w.Errors }

// WatchSecretFile watches path for writes (the container's credential
// rotation mechanism replaces the file in place) and calls onChange after
// each one. It blocks until ctx is canceled. Watch errors are retried with
// exponential backoff rather than aborting — a missed rotation is recovered
// by the next SIGHUP-triggered reload, so this is a convenience, not a
// correctness requirement.
func WatchSecretFile(ctx context.Context, path string, logger *slog.Logger, onChange func()) error {
	return watchSecretFile(ctx, path, logger, onChange, func() (FileWatcher, error) {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, err
		}
		return &fsnotifyWatcher{w: w}, nil
	})
}

func watchSecretFile(ctx context.Context, path string, logger *slog.Logger, onChange func(), newWatcher func() (FileWatcher, error)) error {
	watcher, err := newWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	errBackoff := watchErrInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				logger.Info("secret file changed, triggering reconnect", "path", path)
				onChange()
			}
			errBackoff = watchErrInitBackoff

		case watchErr, ok := <-watcher.Errors():
			if !ok {
				return nil
			}
			logger.Warn("secret file watch error", "error", watchErr, "backoff", errBackoff)

			select {
			case <-time.After(errBackoff):
			case <-ctx.Done():
				return nil
			}

			errBackoff *= watchErrBackoffMult
			if errBackoff > watchErrMaxBackoff {
				errBackoff = watchErrMaxBackoff
			}
		}
	}
}
