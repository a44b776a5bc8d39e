package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"

	"timeuntil/internal/widget"
)

// Default capture parameters for widget cards.
const (
	DefaultTimeoutSec = 30
)

// viewports maps card layouts to a pixel viewport roughly matching a
// home-screen widget of that class.
var viewports = map[widget.Layout][2]int{
	widget.LayoutSmall:  {320, 320},
	widget.LayoutMedium: {480, 320},
	widget.LayoutLarge:  {640, 480},
}

// CaptureOptions defines parameters for a Chromium-based screenshot capture.
type CaptureOptions struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/widgets/1".
	URL string

	// OutputPath is where the PNG screenshot will be written.
	OutputPath string

	// Layout picks the default viewport. Width/Height override it when set.
	Layout widget.Layout
	Width  int
	Height int

	// Timeout bounds the entire capture operation.
	Timeout time.Duration
}

// normalize validates opts and fills in defaults.
func (o *CaptureOptions) normalize() error {
	if o.URL == "" {
		return fmt.Errorf("capture: URL is required")
	}
	if o.OutputPath == "" {
		return fmt.Errorf("capture: OutputPath is required")
	}
	if o.Layout == "" {
		o.Layout = widget.LayoutMedium
	}
	vp, ok := viewports[o.Layout]
	if !ok {
		vp = viewports[widget.LayoutMedium]
	}
	if o.Width <= 0 {
		o.Width = vp[0]
	}
	if o.Height <= 0 {
		o.Height = vp[1]
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}
	return nil
}

// CaptureWidgetPNG launches a headless Chromium via chromedp, loads
// opts.URL (a /widgets/{id} page), waits until the card reports
// data-ready="true" and writes a PNG screenshot to opts.OutputPath.
func CaptureWidgetPNG(parentCtx context.Context, opts CaptureOptions) error {
	if err := opts.normalize(); err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(`[data-ready="true"]`, chromedp.ByQuery),
		chromedp.FullScreenshot(&png, 100),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0o755); err != nil {
		return fmt.Errorf("capture: failed to create output dir: %w", err)
	}
	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}

	return nil
}

// WidgetURL returns the page URL for widgetID under baseURL.
func WidgetURL(baseURL string, widgetID int, layout widget.Layout) string {
	u := baseURL + "/widgets/" + strconv.Itoa(widgetID)
	if layout != "" {
		u += "?layout=" + string(layout)
	}
	return u
}

// OutputPath returns the conventional PNG path for widgetID under dir.
func OutputPath(dir string, widgetID int) string {
	return filepath.Join(dir, "widget-"+strconv.Itoa(widgetID)+".png")
}

// SnapshotHook returns a widget.RefreshHook that captures every refreshed
// widget to outputDir. Failures are logged by the caller-supplied onError.
func SnapshotHook(baseURL, outputDir string, onError func(widgetID int, err error)) widget.RefreshHook {
	return func(ctx context.Context, views []widget.View) {
		for _, v := range views {
			opts := CaptureOptions{
				URL:        WidgetURL(baseURL, v.WidgetID, v.Layout),
				OutputPath: OutputPath(outputDir, v.WidgetID),
				Layout:     v.Layout,
			}
			if err := CaptureWidgetPNG(ctx, opts); err != nil && onError != nil {
				onError(v.WidgetID, err)
			}
		}
	}
}
