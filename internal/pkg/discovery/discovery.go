// Package discovery walks a league's fixtures calendar in headless Chrome
// and collects match IDs. The calendar is rendered client-side, so plain
// HTTP fetching cannot see it.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/akovalev/minutecast/internal/pkg/config"
	"github.com/akovalev/minutecast/internal/pkg/models"
)

// Window bounds the calendar walk around the current month.
type Window struct {
	PastMonths   int
	FutureMonths int
}

var matchIDRe = regexp.MustCompile(`/matches/(\d+)`)

// Consent and modal dismissers tried on every page load. Absence of any of
// them is the normal case.
var popupSelectors = []string{
	"#onetrust-accept-btn-handler",
	"button[aria-label='Accept cookies']",
	".qc-cmp2-summary-buttons button[mode='primary']",
	".modal-close-button",
}

const (
	prevMonthBtn = "#dayChangeBtn-prev"
	nextMonthBtn = "#dayChangeBtn-next"
	fixturesTab  = "a[href*='Fixtures']"
	fixtureLinks = "a[href*='/matches/']"

	// Calendar updates are client-side renders with no navigation event to
	// wait on.
	settleDelay = 2 * time.Second
)

type Discoverer struct {
	userAgent   string
	pageTimeout time.Duration
	log         *slog.Logger
}

func New(cfg config.DiscoveryConfig, userAgent string) *Discoverer {
	return &Discoverer{
		userAgent:   userAgent,
		pageTimeout: cfg.PageTimeout,
		log:         slog.Default().With("component", "discovery"),
	}
}

// DiscoverFixtureIDs opens the league overview page, moves to the fixtures
// calendar and collects match IDs for the surrounding months. A failed month
// step ends the walk in that direction; IDs collected so far are kept.
func (d *Discoverer) DiscoverFixtureIDs(ctx context.Context, leagueURL string, window Window) ([]models.MatchID, error) {
	chromeDir, err := os.MkdirTemp("", "minutecast_discovery_")
	if err != nil {
		return nil, fmt.Errorf("create chrome temp dir: %w", err)
	}
	defer os.RemoveAll(chromeDir)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserDataDir(chromeDir),
		chromedp.UserAgent(d.userAgent),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	d.log.Info("Opening league page", "url", leagueURL)
	if err := d.runWithTimeout(browserCtx,
		// Installed before navigation so the override survives onto every
		// page this session loads.
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(
				`Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`).Do(ctx)
			return err
		}),
		chromedp.Navigate(leagueURL),
		chromedp.Sleep(3*time.Second),
	); err != nil {
		return nil, fmt.Errorf("open league page %s: %w", leagueURL, err)
	}
	d.dismissPopups(browserCtx)

	if err := d.runWithTimeout(browserCtx,
		chromedp.Click(fixturesTab, chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.WaitVisible(fixtureLinks, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("navigate to fixtures calendar: %w", err)
	}
	d.dismissPopups(browserCtx)

	var calendarURL string
	if err := d.runWithTimeout(browserCtx, chromedp.Location(&calendarURL)); err != nil {
		return nil, fmt.Errorf("read calendar url: %w", err)
	}

	seen := map[models.MatchID]bool{}
	d.collectPage(browserCtx, seen)
	d.walkMonths(browserCtx, seen, prevMonthBtn, window.PastMonths)

	if window.FutureMonths > 0 {
		// Re-open the calendar to reset it to the current month before
		// stepping forward.
		if err := d.runWithTimeout(browserCtx,
			chromedp.Navigate(calendarURL),
			chromedp.Sleep(settleDelay),
			chromedp.WaitVisible(fixtureLinks, chromedp.ByQuery),
		); err != nil {
			d.log.Warn("calendar reset failed, skipping future months", "error", err)
		} else {
			d.dismissPopups(browserCtx)
			d.walkMonths(browserCtx, seen, nextMonthBtn, window.FutureMonths)
		}
	}

	if len(seen) == 0 {
		return nil, fmt.Errorf("no fixture links found at %s", leagueURL)
	}

	ids := make([]models.MatchID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	d.log.Info("Discovery finished", "fixtures", len(ids))
	return ids, nil
}

func (d *Discoverer) walkMonths(ctx context.Context, seen map[models.MatchID]bool, button string, months int) {
	for i := 0; i < months; i++ {
		if err := d.runWithTimeout(ctx,
			chromedp.Click(button, chromedp.ByQuery),
			chromedp.Sleep(settleDelay),
		); err != nil {
			d.log.Warn("month step failed, stopping walk", "button", button, "step", i+1, "error", err)
			return
		}
		d.dismissPopups(ctx)
		added := d.collectPage(ctx, seen)
		d.log.Info("Collected month", "button", button, "step", i+1, "new_fixtures", added)
	}
}

// collectPage pulls every /matches/{id} href out of the current view.
func (d *Discoverer) collectPage(ctx context.Context, seen map[models.MatchID]bool) int {
	var hrefs []string
	err := d.runWithTimeout(ctx, chromedp.Evaluate(
		`Array.from(document.querySelectorAll("a[href*='/matches/']")).map(a => a.href)`, &hrefs))
	if err != nil {
		d.log.Warn("extract fixture links failed", "error", err)
		return 0
	}

	added := 0
	for _, id := range parseFixtureIDs(hrefs) {
		if !seen[id] {
			seen[id] = true
			added++
		}
	}
	return added
}

// parseFixtureIDs extracts match IDs from /matches/{id} hrefs, absolute or
// relative. Links without a numeric ID are ignored.
func parseFixtureIDs(hrefs []string) []models.MatchID {
	var ids []models.MatchID
	for _, href := range hrefs {
		m := matchIDRe.FindStringSubmatch(href)
		if m == nil {
			continue
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, models.MatchID(n))
	}
	return ids
}

// dismissPopups clicks through known consent banners. Best-effort: each
// selector gets a short window and silence means it was not there.
func (d *Discoverer) dismissPopups(ctx context.Context) {
	for _, sel := range popupSelectors {
		short, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := chromedp.Run(short,
			chromedp.Click(sel, chromedp.ByQuery),
			chromedp.Sleep(time.Second),
		)
		cancel()
		if err == nil {
			d.log.Info("Dismissed popup", "selector", sel)
		}
	}
}

func (d *Discoverer) runWithTimeout(ctx context.Context, actions ...chromedp.Action) error {
	timed, cancel := context.WithTimeout(ctx, d.pageTimeout)
	defer cancel()
	return chromedp.Run(timed, actions...)
}
