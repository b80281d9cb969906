package window

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wayfocus/wayfocus/internal/logger"
	"github.com/wayfocus/wayfocus/internal/tracker"
)

// pollTimeoutMs bounds each wait on the compositor descriptor so the watch
// loop can notice a stop request.
const pollTimeoutMs = 200

// WaylandBackend implements Backend on top of the foreign-toplevel tracker.
// It owns the poll loop that drives the tracker's descriptor, which is the
// reference embedding of the tracker into a host event loop.
type WaylandBackend struct {
	tracker *tracker.Tracker

	mu       sync.Mutex
	watching bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewWaylandBackend connects to the compositor and completes the tracker
// bootstrap. socket overrides $WAYLAND_DISPLAY when non-empty.
func NewWaylandBackend(socket string) (*WaylandBackend, error) {
	t := tracker.New(socket)
	if err := t.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize wayland tracker: %w", err)
	}
	return &WaylandBackend{tracker: t}, nil
}

// Connect establishes the connection (already done in NewWaylandBackend).
func (b *WaylandBackend) Connect() error {
	return nil
}

// Name returns the backend name.
func (b *WaylandBackend) Name() string {
	return "wayland"
}

// Close stops the watch loop and tears the tracker down.
func (b *WaylandBackend) Close() error {
	b.StopWatching()
	b.tracker.Cleanup()
	return nil
}

// WatchFocus installs the callback and starts the poll loop.
func (b *WaylandBackend) WatchFocus(callback func(*FocusEvent)) error {
	b.mu.Lock()
	if b.watching {
		b.mu.Unlock()
		return fmt.Errorf("already watching")
	}
	b.watching = true
	b.stopChan = make(chan struct{})
	b.doneChan = make(chan struct{})
	b.mu.Unlock()

	b.tracker.SetCallback(func(appID, title string, focused bool) {
		callback(&FocusEvent{
			AppID:   appID,
			Title:   title,
			Focused: focused,
			Backend: b.Name(),
			Time:    time.Now(),
		})
	})

	go b.pollLoop()
	return nil
}

// pollLoop waits for readability on the tracker descriptor and runs the
// non-blocking read sequence. The tracker is single-threaded; after
// WatchFocus returns, only this goroutine touches it until the loop exits.
func (b *WaylandBackend) pollLoop() {
	log := logger.WithComponent("wayland-backend")
	defer close(b.doneChan)

	fd := b.tracker.FD()
	for {
		select {
		case <-b.stopChan:
			return
		default:
		}

		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, pollTimeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			log.Error().Err(err).Msg("poll failed, stopping focus watch")
			return
		}
		if n > 0 {
			b.tracker.ReadEvents()
		}
		if err := b.tracker.Dispatch(); err != nil {
			log.Error().Err(err).Msg("compositor connection lost")
			return
		}
	}
}

// StopWatching stops the poll loop and waits for it to exit so no further
// tracker call races the teardown.
func (b *WaylandBackend) StopWatching() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.watching {
		return
	}
	close(b.stopChan)
	<-b.doneChan
	b.watching = false
}
