package search

import (
	"context"
	"errors"
	"time"

	"pagoda/harvester/internal/domain"
	"pagoda/harvester/internal/driver"
	"pagoda/harvester/internal/popup"
	"pagoda/harvester/internal/retry"

	log "github.com/sirupsen/logrus"
)

// Locators for the search flow. Image signatures go first: they survive
// layout drift and skip the hierarchy round-trip; the text locator is the
// fallback when the asset no longer matches the rendered screen.
var (
	nationwideLocator = driver.Fallback(
		driver.ImageLocator{Asset: "nationwide_delivery_icon.png"},
		driver.TextLocator{Text: "全国送"},
	)
	searchInputLocator = driver.Fallback(
		driver.ImageLocator{Asset: "search_input.png"},
		driver.TextLocator{Text: "搜索"},
	)
	suggestionsLocator = driver.TextLocator{Text: "搜索历史"}
)

// Driver runs one keyword search through the app UI. It never reads results
// from the screen; results are picked out of the capture stream afterwards.
type Driver struct {
	session driver.Session
	exec    *retry.Executor
	popups  *popup.Resolver
	settle  time.Duration
}

func NewDriver(session driver.Session, exec *retry.Executor, popups *popup.Resolver, settle time.Duration) *Driver {
	return &Driver{
		session: session,
		exec:    exec,
		popups:  popups,
		settle:  settle,
	}
}

// RunSearch navigates to the nationwide-delivery search surface, enters the
// term, and submits it. The returned outcome timestamps the submission so the
// caller can window the capture stream.
func (d *Driver) RunSearch(ctx context.Context, term domain.SearchTerm) (domain.SearchOutcome, error) {
	outcome := domain.SearchOutcome{Term: term}

	if err := d.popups.Resolve(ctx); err != nil {
		return outcome, err
	}

	if err := d.navigate(ctx, "nationwide delivery", nationwideLocator); err != nil {
		return outcome, err
	}
	d.wait(ctx)

	if err := d.popups.Resolve(ctx); err != nil {
		return outcome, err
	}

	input, err := d.locate(ctx, "search input", searchInputLocator)
	if err != nil {
		return outcome, err
	}
	if err := d.exec.Do(ctx, "tap search input", func(ctx context.Context) error {
		return d.session.Tap(ctx, input)
	}); err != nil {
		return outcome, err
	}
	d.wait(ctx)

	field, err := d.locate(ctx, "search field", searchInputLocator)
	if err != nil {
		return outcome, err
	}
	if err := d.exec.Do(ctx, "enter keyword", func(ctx context.Context) error {
		if err := d.session.Clear(ctx, field); err != nil {
			return err
		}
		return d.session.Type(ctx, field, term.String()+"\n")
	}); err != nil {
		return outcome, err
	}

	d.confirmSubmission(ctx, field)

	outcome.SubmittedAt = time.Now()
	outcome.Success = true
	log.Infof("Search submitted for %q", term)
	return outcome, nil
}

// confirmSubmission handles the optional search-history/suggestions
// interstitial: if it swallowed the submit, a second enter pushes through.
// Absence is the common case and not an error.
func (d *Driver) confirmSubmission(ctx context.Context, field driver.Element) {
	el, err := suggestionsLocator.Locate(ctx, d.session)
	if err != nil {
		if !errors.Is(err, driver.ErrNotFound) {
			log.Debugf("Suggestions check failed: %v", err)
		}
		return
	}
	log.Debugf("Suggestions interstitial present at %s, re-confirming submit", el)
	if err := d.session.Type(ctx, field, "\n"); err != nil {
		log.Warnf("Failed to re-confirm submission: %v", err)
	}
}

func (d *Driver) navigate(ctx context.Context, target string, loc driver.Locator) error {
	el, err := d.locate(ctx, target, loc)
	if err != nil {
		return err
	}
	return d.exec.Do(ctx, "tap "+target, func(ctx context.Context) error {
		return d.session.Tap(ctx, el)
	})
}

func (d *Driver) locate(ctx context.Context, target string, loc driver.Locator) (driver.Element, error) {
	el, err := retry.DoValue(ctx, d.exec, "locate "+target, func(ctx context.Context) (driver.Element, error) {
		return loc.Locate(ctx, d.session)
	})
	if err != nil {
		return driver.Element{}, &domain.NavigationError{Target: target, Reason: err}
	}
	return el, nil
}

func (d *Driver) wait(ctx context.Context) {
	if d.settle <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d.settle):
	}
}
