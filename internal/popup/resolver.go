package popup

import (
	"context"
	"errors"
	"fmt"

	"pagoda/harvester/internal/domain"
	"pagoda/harvester/internal/driver"
	"pagoda/harvester/internal/retry"

	log "github.com/sirupsen/logrus"
)

// Signature pairs an interstitial state with the locator that both detects it
// and points at its dismiss target. Signatures are checked in slice order;
// earlier entries take priority.
type Signature struct {
	State   domain.UIState
	Locator driver.Locator
}

// DefaultSignatures covers the dialogs the app is known to raise: the privacy
// agreement on first launch, the delivery-location picker chained into the
// store selector, and ad-hoc promotional popups with a close button.
func DefaultSignatures() []Signature {
	return []Signature{
		{
			State:   domain.UIStateAgreeDialog,
			Locator: driver.Fallback(driver.TextLocator{Text: "同意"}, driver.ImageLocator{Asset: "agree.png"}),
		},
		{
			State:   domain.UIStateLocationPicker,
			Locator: driver.Fallback(driver.TextLocator{Text: "选择收货地址"}, driver.ImageLocator{Asset: "select_location.png"}),
		},
		{
			State:   domain.UIStateStoreSelector,
			Locator: driver.Fallback(driver.TextLocator{Text: "附近门店"}, driver.ImageLocator{Asset: "location.png"}),
		},
		{
			State:   domain.UIStateGenericPopup,
			Locator: driver.ImageLocator{Asset: "close_button.png"},
		},
	}
}

// Resolver clears interstitial dialogs until the screen is clean. Dialogs
// chain (dismissing the location picker raises the store selector), so every
// dismissal is followed by a re-check, bounded by maxRounds to keep a
// misidentified dialog from looping forever.
type Resolver struct {
	session    driver.Session
	exec       *retry.Executor
	signatures []Signature
	maxRounds  int
}

func NewResolver(session driver.Session, exec *retry.Executor, signatures []Signature, maxRounds int) *Resolver {
	if maxRounds <= 0 {
		maxRounds = 5
	}
	if len(signatures) == 0 {
		signatures = DefaultSignatures()
	}
	return &Resolver{
		session:    session,
		exec:       exec,
		signatures: signatures,
		maxRounds:  maxRounds,
	}
}

// Resolve dismisses dialogs until no signature matches. Invoking it on an
// already-clean screen is a no-op.
func (r *Resolver) Resolve(ctx context.Context) error {
	lastState := domain.UIStateUnknown

	for round := 1; round <= r.maxRounds; round++ {
		state, el, err := r.detect(ctx)
		if err != nil {
			return fmt.Errorf("popup check failed: %w", err)
		}
		if state == domain.UIStateClean {
			if round > 1 {
				log.Debugf("Screen clean after %d popup rounds", round-1)
			}
			return nil
		}

		log.Infof("Dismissing %s dialog", state)
		lastState = state
		dismiss := fmt.Sprintf("dismiss %s", state)
		if err := r.exec.Do(ctx, dismiss, func(ctx context.Context) error {
			return r.session.Tap(ctx, el)
		}); err != nil {
			return err
		}
	}

	return &domain.UnresolvedPopupError{Rounds: r.maxRounds, LastState: lastState}
}

func (r *Resolver) detect(ctx context.Context) (domain.UIState, driver.Element, error) {
	for _, sig := range r.signatures {
		el, err := sig.Locator.Locate(ctx, r.session)
		if err == nil {
			return sig.State, el, nil
		}
		if !errors.Is(err, driver.ErrNotFound) {
			return domain.UIStateUnknown, driver.Element{}, err
		}
	}
	return domain.UIStateClean, driver.Element{}, nil
}
