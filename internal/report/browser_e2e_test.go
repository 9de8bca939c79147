//go:build e2e

package report

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
)

func TestReportRendersInBrowser(t *testing.T) {
	out := t.TempDir()
	if err := Generate(sampleManifest("run-e2e"), sampleOutcomes(), "", out); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	srv := httptest.NewServer(http.FileServer(http.Dir(out)))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var title string
	var trendHTML string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(srv.URL),
		chromedp.WaitReady("#report-title", chromedp.ByID),
		chromedp.Title(&title),
		chromedp.InnerHTML("#trend", &trendHTML, chromedp.ByID),
	)
	if err != nil {
		t.Fatalf("chromedp: %v", err)
	}
	if !strings.Contains(title, "Regression Report") {
		t.Errorf("title = %q", title)
	}
	if !strings.Contains(trendHTML, "run-e2e") {
		t.Errorf("trend table missing run entry: %q", trendHTML)
	}
}
