package browser

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/Imetomi/bugninja-cli/api/schemas"
	"github.com/Imetomi/bugninja-cli/internal/config"
)

// tabHandle bundles the per-tab CDP context with its network watcher and
// screencast recorder.
type tabHandle struct {
	ctx      context.Context
	cancel   context.CancelFunc
	recorder *Recorder
	net      *netWatcher
}

// Session manages the lifecycle of the run's tabs: adoption of pages the
// site opens on its own, dialog auto-dismissal, activation and promotion
// when tabs close. It is the page driver the perception and executor
// layers run against.
type Session struct {
	browserCtx context.Context
	cfg        *config.Config
	logger     *zap.Logger
	outputDir  string

	reg *registry

	mu         sync.Mutex
	handles    map[string]*tabHandle
	tabSeq     int
	videoPaths []string
}

func newSession(browserCtx context.Context, cfg *config.Config, logger *zap.Logger, outputDir string) (*Session, error) {
	s := &Session{
		browserCtx: browserCtx,
		cfg:        cfg,
		logger:     logger.Named("session"),
		outputDir:  outputDir,
		reg:        newRegistry(),
		handles:    make(map[string]*tabHandle),
	}

	// Watch for tabs the page opens (window.open, target=_blank) and for
	// tabs going away underneath us.
	chromedp.ListenBrowser(browserCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *target.EventTargetCreated:
			if e.TargetInfo.Type != "page" {
				return
			}
			id := string(e.TargetInfo.TargetID)
			if s.reg.contains(id) {
				return
			}
			go s.adoptTab(e.TargetInfo.TargetID)
		case *target.EventTargetDestroyed:
			s.dropTab(string(e.TargetID))
		}
	})

	if err := chromedp.Run(browserCtx, target.SetDiscoverTargets(true)); err != nil {
		return nil, fmt.Errorf("enabling target discovery: %w", err)
	}
	return s, nil
}

// NewTab opens a fresh tab and makes it active.
func (s *Session) NewTab(ctx context.Context) error {
	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	// Materialize the target before wiring listeners.
	if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		return fmt.Errorf("%w: opening tab: %v", schemas.ErrPageClosed, err)
	}
	tgt := chromedp.FromContext(tabCtx)
	if tgt == nil || tgt.Target == nil {
		cancel()
		return fmt.Errorf("%w: new tab has no target", schemas.ErrPageClosed)
	}
	s.attachTab(string(tgt.Target.TargetID), tabCtx, cancel)
	return nil
}

// adoptTab attaches to a tab the page itself opened.
func (s *Session) adoptTab(id target.ID) {
	tabCtx, cancel := chromedp.NewContext(s.browserCtx, chromedp.WithTargetID(id))
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		s.logger.Debug("Could not attach to new tab.", zap.String("target", string(id)), zap.Error(err))
		cancel()
		return
	}
	s.logger.Info("Adopted page-opened tab.", zap.String("target", string(id)))
	s.attachTab(string(id), tabCtx, cancel)
}

// attachTab wires the per-tab listeners and registers the tab as active.
func (s *Session) attachTab(id string, tabCtx context.Context, cancel context.CancelFunc) {
	h := &tabHandle{ctx: tabCtx, cancel: cancel}
	h.net = watchNetwork(tabCtx)

	// Dialogs (alert/confirm/prompt) block the page until answered;
	// accept them from a goroutine so the event loop stays free.
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if dialog, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			s.logger.Info("Auto-accepting dialog.",
				zap.String("type", string(dialog.Type)),
				zap.String("message", dialog.Message),
			)
			go func() {
				if err := chromedp.Run(tabCtx, page.HandleJavaScriptDialog(true)); err != nil {
					s.logger.Warn("Dialog handling failed.", zap.Error(err))
				}
			}()
		}
	})

	s.mu.Lock()
	s.tabSeq++
	videoPath := filepath.Join(s.outputDir, fmt.Sprintf("tab-%02d.mjpeg", s.tabSeq))
	s.handles[id] = h
	s.videoPaths = append(s.videoPaths, videoPath)
	s.mu.Unlock()

	h.recorder = newRecorder(videoPath, s.logger)
	w, hgt := s.cfg.Browser.VideoSize()
	if err := h.recorder.Start(tabCtx, w, hgt, 70); err != nil {
		s.logger.Warn("Screencast could not start for tab.", zap.String("target", id), zap.Error(err))
	}

	s.reg.add(id)
}

// dropTab handles a tab disappearing. If the active tab died, the most
// recently active remaining one is promoted.
func (s *Session) dropTab(id string) {
	s.mu.Lock()
	h, exists := s.handles[id]
	delete(s.handles, id)
	s.mu.Unlock()
	if !exists {
		return
	}

	if h.recorder != nil {
		h.recorder.Stop(h.ctx)
	}
	h.cancel()

	newActive, promoted := s.reg.remove(id)
	if promoted {
		if newActive == "" {
			s.logger.Warn("Last tab closed; session is empty.")
		} else {
			s.logger.Info("Active tab closed, promoting most recent.", zap.String("target", newActive))
			_ = s.bringToFront(newActive)
		}
	}
}

// ActivateTab foregrounds the given tab.
func (s *Session) ActivateTab(id string) error {
	if !s.reg.activate(id) {
		return fmt.Errorf("%w: tab %s not in session", schemas.ErrPageClosed, id)
	}
	return s.bringToFront(id)
}

func (s *Session) bringToFront(id string) error {
	s.mu.Lock()
	h, exists := s.handles[id]
	s.mu.Unlock()
	if !exists {
		return fmt.Errorf("%w: tab %s has no handle", schemas.ErrPageClosed, id)
	}
	return chromedp.Run(h.ctx, page.BringToFront())
}

// EnsureActivePage guarantees the session has a usable page, opening a
// fresh one when every tab has been closed. Failing to open one is fatal
// to the run.
func (s *Session) EnsureActivePage(ctx context.Context) error {
	if !s.reg.empty() {
		return nil
	}
	s.logger.Info("No tabs remain; opening a fresh page.")
	return s.NewTab(ctx)
}

// activeHandle returns the CDP handle of the active tab.
func (s *Session) activeHandle() (*tabHandle, error) {
	id := s.reg.active()
	if id == "" {
		return nil, fmt.Errorf("%w: session has no active tab", schemas.ErrPageClosed)
	}
	s.mu.Lock()
	h, exists := s.handles[id]
	s.mu.Unlock()
	if !exists {
		return nil, fmt.Errorf("%w: active tab %s has no handle", schemas.ErrPageClosed, id)
	}
	return h, nil
}

// run executes chromedp actions on the active tab, honoring both the tab
// lifetime and the caller's context.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	h, err := s.activeHandle()
	if err != nil {
		return err
	}
	runCtx, cancel := combineContext(h.ctx, ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if h.ctx.Err() != nil {
			return fmt.Errorf("%w: %v", schemas.ErrPageClosed, err)
		}
		return err
	}
	return nil
}

// Navigate loads a URL in the active tab. When the load never finishes
// inside the navigation window it relaxes once to DOM-ready and proceeds
// with whatever rendered, mirroring a human who starts reading before the
// spinner stops.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.EnsureActivePage(ctx); err != nil {
		return err
	}

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.Network.NavigationTimeout)
	defer cancel()

	s.logger.Info("Navigating.", zap.String("url", url))
	if err := s.run(navCtx, chromedp.Navigate(url)); err != nil {
		if navCtx.Err() != context.DeadlineExceeded || ctx.Err() != nil {
			return err
		}
		s.logger.Warn("Navigation timed out; relaxing to DOM-ready.",
			zap.String("url", url),
			zap.Error(schemas.ErrNavigationTimeout),
		)
		readyCtx, readyCancel := context.WithTimeout(ctx, s.cfg.Network.PostLoadWait)
		defer readyCancel()
		if rerr := s.run(readyCtx, chromedp.WaitReady("body", chromedp.ByQuery)); rerr != nil {
			s.logger.Debug("DOM never reported ready; proceeding anyway.", zap.Error(rerr))
		}
		return nil
	}
	return s.Settle(navCtx)
}

// Settle waits for the page to stabilize after a navigation or action:
// DOM ready first, then a network quiet period, then the configured
// post-load grace.
func (s *Session) Settle(ctx context.Context) error {
	h, err := s.activeHandle()
	if err != nil {
		return err
	}

	settleCtx, cancel := context.WithTimeout(ctx, s.cfg.Network.ActionSettleWait+s.cfg.Network.PostLoadWait)
	defer cancel()

	if err := s.run(settleCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("WaitReady did not complete while settling.", zap.Error(err))
	}
	if err := h.net.WaitIdle(settleCtx, s.cfg.Network.IdleQuietPeriod); err != nil {
		s.logger.Debug("Network stayed busy; continuing with ready DOM.", zap.Error(err))
	}
	return s.Sleep(ctx, s.cfg.Network.PostLoadWait)
}

// -- perception.PageDriver --

// Screenshot captures the visible viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// EvaluateInto evaluates a JS expression and unmarshals the result.
func (s *Session) EvaluateInto(ctx context.Context, expr string, out interface{}) error {
	return s.run(ctx, chromedp.Evaluate(expr, out))
}

// Location returns the active tab's URL and title, refreshing the
// registry's digest on the way.
func (s *Session) Location(ctx context.Context) (string, string, error) {
	var url, title string
	if err := s.run(ctx, chromedp.Location(&url), chromedp.Title(&title)); err != nil {
		return "", "", err
	}
	s.reg.setLocation(s.reg.active(), url, title)
	return url, title, nil
}

// Tabs lists the open tabs in creation order.
func (s *Session) Tabs() []schemas.TabDigest {
	return s.reg.digest()
}

// -- executor.InputDriver --

func (s *Session) MouseMove(ctx context.Context, x, y float64) error {
	return s.run(ctx, input.DispatchMouseEvent(input.MouseMoved, x, y))
}

func (s *Session) MousePress(ctx context.Context, x, y float64) error {
	return s.run(ctx, input.DispatchMouseEvent(input.MousePressed, x, y).
		WithButton(input.Left).
		WithClickCount(1))
}

func (s *Session) MouseRelease(ctx context.Context, x, y float64) error {
	return s.run(ctx, input.DispatchMouseEvent(input.MouseReleased, x, y).
		WithButton(input.Left).
		WithClickCount(1))
}

func (s *Session) InsertText(ctx context.Context, text string) error {
	return s.run(ctx, input.InsertText(text))
}

func (s *Session) PressEnter(ctx context.Context) error {
	return s.run(ctx, chromedp.KeyEvent(kb.Enter))
}

// ClearInput selects the focused field's content and deletes it.
func (s *Session) ClearInput(ctx context.Context) error {
	return s.run(ctx,
		chromedp.KeyEvent("a", chromedp.KeyModifiers(input.ModifierCtrl)),
		chromedp.KeyEvent(kb.Backspace),
	)
}

// Sleep pauses, honoring the caller's context.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// VideoFiles lists the recordings written so far, including those of
// closed tabs.
func (s *Session) VideoFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.videoPaths))
	copy(out, s.videoPaths)
	return out
}

// Close stops recordings and releases every tab.
func (s *Session) Close() {
	s.mu.Lock()
	handles := make(map[string]*tabHandle, len(s.handles))
	for id, h := range s.handles {
		handles[id] = h
	}
	s.mu.Unlock()

	for id, h := range handles {
		if h.recorder != nil {
			h.recorder.Stop(h.ctx)
		}
		h.cancel()
		s.reg.remove(id)
	}
	s.logger.Info("Session closed.")
}

// combineContext derives a context from the tab context that is also
// canceled when the caller's context ends.
func combineContext(tabCtx, callerCtx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(tabCtx)
	stop := context.AfterFunc(callerCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
