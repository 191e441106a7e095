package frames

import (
	"fmt"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Watcher tails a session folder and counts frame files as the capture
// engine writes them, giving the session manager a live frame count
// without rescanning the folder.
type Watcher struct {
	fw    *fsnotify.Watcher
	count atomic.Int64
	done  chan struct{}
}

// NewWatcher starts watching the given session folder. The initial
// count starts from the frames already present.
func NewWatcher(sessionFolder string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(sessionFolder); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", sessionFolder, err)
	}

	w := &Watcher{fw: fw, done: make(chan struct{})}

	res, err := DiskValidator{}.Validate(sessionFolder)
	if err == nil {
		w.count.Store(int64(res.ValidFrameCount))
	}

	go w.run()
	return w, nil
}

// Count returns the current live frame count.
func (w *Watcher) Count() int {
	return int(w.count.Load())
}

// SetCount overrides the live count, used after a disk revalidation.
func (w *Watcher) SetCount(n int) {
	w.count.Store(int64(n))
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.fw.Close()
	<-w.done
	return err
}

func (w *Watcher) run() {
	defer close(w.done)

	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Create) && IsFrameFile(ev.Name) {
				w.count.Add(1)
			}
		case _, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			// Watch errors degrade the live count; the final count is
			// re-derived from disk at stop time regardless.
		}
	}
}
