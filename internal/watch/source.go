package watch

import (
	"context"
	"net/url"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
)

// startSource wires change signals for the configured input into Notify and
// returns a stop function. File inputs get a filesystem watcher (plus the
// poll ticker as a safety net); URL inputs poll on the configured interval.
// After stop returns no further triggers fire.
func (c *Controller) startSource(ctx context.Context) (func(), error) {
	if isURL(c.cfg.Input) {
		return c.startPoller(ctx), nil
	}

	abs, err := filepath.Abs(c.cfg.Input)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", c.cfg.Input)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create file watcher")
	}
	// Watch the parent directory: editors typically replace files via
	// rename, which drops a watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "watch %s", filepath.Dir(abs))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				c.logger.Debugw("source changed",
					"input", c.cfg.Input,
					"op", event.Op.String())
				c.Notify()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Warnw("file watcher error", "input", c.cfg.Input, "error", err)
			}
		}
	}()

	stopPoll := c.startPoller(ctx)
	return func() {
		watcher.Close()
		<-done
		stopPoll()
	}, nil
}

// startPoller triggers on every interval tick until ctx is cancelled or the
// returned stop function runs.
func (c *Controller) startPoller(ctx context.Context) func() {
	ticker := time.NewTicker(c.cfg.Interval)
	done := make(chan struct{})
	quit := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-quit:
				return
			case <-ticker.C:
				c.Notify()
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(quit)
		<-done
	}
}

func isURL(input string) bool {
	u, err := url.Parse(input)
	return err == nil && u.Scheme != "" && u.Host != ""
}
