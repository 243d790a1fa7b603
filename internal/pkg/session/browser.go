package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// webdriverOverride hides the automation flag from page scripts. It must be
// installed with AddScriptToEvaluateOnNewDocument so it persists across
// navigations.
const webdriverOverride = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`

// chromeMu serializes all Chrome usage so only one instance runs at a time.
// A browser launch is the single most expensive operation in the pipeline.
var chromeMu sync.Mutex

// browserSolver drives headless Chrome through the anti-bot challenge and
// exports the resulting cookies into a plain HTTP capability.
type browserSolver struct {
	probeURL string
	marker   string
	ua       string
	timeout  time.Duration
}

func (b *browserSolver) Solve(ctx context.Context) (*Capability, error) {
	chromeMu.Lock()
	defer chromeMu.Unlock()

	chromeDir, err := os.MkdirTemp("", "minutecast_chrome_")
	if err != nil {
		return nil, fmt.Errorf("create chrome temp dir: %w", err)
	}
	defer os.RemoveAll(chromeDir)

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserDataDir(chromeDir),
		chromedp.UserAgent(b.ua),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	slog.Info("Launching browser for challenge solve", "url", b.probeURL)

	var cookies []*Cookie
	var html string
	err = chromedp.Run(browserCtx,
		// Registered before navigation so the override is already in place
		// when the target page's scripts run.
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(webdriverOverride).Do(ctx)
			return err
		}),
		chromedp.Navigate(b.probeURL),
		// The interstitial redirects itself once solved; give it room.
		chromedp.Sleep(8*time.Second),
		chromedp.OuterHTML("html", &html),
		chromedp.ActionFunc(func(ctx context.Context) error {
			exported, err := storage.GetCookies().Do(ctx)
			if err != nil {
				return fmt.Errorf("export cookies: %w", err)
			}
			for _, ck := range exported {
				cookies = append(cookies, &Cookie{
					Name:   ck.Name,
					Value:  ck.Value,
					Domain: ck.Domain,
					Path:   ck.Path,
				})
			}
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}

	if sig := ChallengeSignature([]byte(html)); sig != "" {
		return nil, fmt.Errorf("challenge still present after browser solve: %q", sig)
	}

	out := &Capability{UserAgent: b.ua, Tier: TierBrowser}
	for _, ck := range cookies {
		out.Cookies = append(out.Cookies, *ck)
	}
	slog.Info("Browser solve completed", "cookies", len(out.Cookies))
	return out, nil
}
