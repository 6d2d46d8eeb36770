package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Recorder captures a tab's screencast into an MJPEG file (concatenated
// JPEG frames). One recorder serves one tab.
type Recorder struct {
	path   string
	logger *zap.Logger

	mu     sync.Mutex
	file   *os.File
	frames int
}

func newRecorder(path string, logger *zap.Logger) *Recorder {
	return &Recorder{path: path, logger: logger.Named("recorder")}
}

// Start opens the output file, subscribes to screencast frames on the tab
// context and begins the screencast.
func (r *Recorder) Start(tabCtx context.Context, maxWidth, maxHeight int64, quality int64) error {
	f, err := os.Create(r.path)
	if err != nil {
		return fmt.Errorf("creating video file: %w", err)
	}
	r.mu.Lock()
	r.file = f
	r.mu.Unlock()

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		frame, ok := ev.(*page.EventScreencastFrame)
		if !ok {
			return
		}
		if err := r.writeFrame(frame.Data); err != nil {
			r.logger.Debug("Dropping screencast frame.", zap.Error(err))
		}
		// Ack from a goroutine; the listener must not block the event loop.
		go func() {
			_ = chromedp.Run(tabCtx, page.ScreencastFrameAck(frame.SessionID))
		}()
	})

	return chromedp.Run(tabCtx,
		page.StartScreencast().
			WithFormat(page.ScreencastFormatJpeg).
			WithQuality(quality).
			WithMaxWidth(maxWidth).
			WithMaxHeight(maxHeight).
			WithEveryNthFrame(1),
	)
}

// writeFrame appends one base64-encoded JPEG frame to the file.
func (r *Recorder) writeFrame(data string) error {
	jpeg, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("decoding frame: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return fmt.Errorf("recorder closed")
	}
	if _, err := r.file.Write(jpeg); err != nil {
		return err
	}
	r.frames++
	return nil
}

// Stop ends the screencast and closes the file. The tab context may be
// gone already when a tab closes; the file is closed regardless.
func (r *Recorder) Stop(tabCtx context.Context) {
	_ = chromedp.Run(tabCtx, page.StopScreencast())

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			r.logger.Warn("Closing video file failed.", zap.Error(err))
		}
		r.file = nil
	}
	r.logger.Info("Recording finished.",
		zap.String("path", r.path),
		zap.Int("frames", r.frames),
	)
}

// Path returns the output file location.
func (r *Recorder) Path() string { return r.path }

// Frames returns how many frames landed in the file.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}
