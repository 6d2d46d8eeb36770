package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// netWatcher counts in-flight network requests on one tab so navigation
// can wait for the wire to go quiet.
type netWatcher struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	lastDone time.Time
}

// watchNetwork attaches a netWatcher to the tab context. The network
// domain must be enabled on the target for events to flow.
func watchNetwork(tabCtx context.Context) *netWatcher {
	w := &netWatcher{
		inflight: make(map[network.RequestID]struct{}),
		lastDone: time.Now(),
	}
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			w.mu.Lock()
			w.inflight[e.RequestID] = struct{}{}
			w.mu.Unlock()
		case *network.EventLoadingFinished:
			w.settle(e.RequestID)
		case *network.EventLoadingFailed:
			w.settle(e.RequestID)
		}
	})
	return w
}

func (w *netWatcher) settle(id network.RequestID) {
	w.mu.Lock()
	delete(w.inflight, id)
	if len(w.inflight) == 0 {
		w.lastDone = time.Now()
	}
	w.mu.Unlock()
}

// quietSince reports whether the network has been idle for at least d.
func (w *netWatcher) quietSince(d time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inflight) == 0 && time.Since(w.lastDone) >= d
}

// WaitIdle blocks until the network has been quiet for quietPeriod or the
// context expires. Expiry is not an error to the caller; a busy page is
// still usable once the DOM is ready.
func (w *netWatcher) WaitIdle(ctx context.Context, quietPeriod time.Duration) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if w.quietSince(quietPeriod) {
				return nil
			}
		}
	}
}
