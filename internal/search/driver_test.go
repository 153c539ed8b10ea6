package search

import (
	"context"
	"testing"
	"time"

	"pagoda/harvester/internal/domain"
	"pagoda/harvester/internal/driver"
	"pagoda/harvester/internal/popup"
	"pagoda/harvester/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession presents one static screen; it records taps, clears, and typed
// text.
type fakeSession struct {
	texts   []string
	images  []string
	taps    []string
	typed   []string
	clears  int
	tapErrs int
}

func (s *fakeSession) LocateByImage(ctx context.Context, asset string) (driver.Element, error) {
	for _, img := range s.images {
		if img == asset {
			return driver.Element{ID: "img-" + asset}, nil
		}
	}
	return driver.Element{}, driver.ErrNotFound
}

func (s *fakeSession) LocateByText(ctx context.Context, text string) (driver.Element, error) {
	for _, t := range s.texts {
		if t == text {
			return driver.Element{ID: "txt-" + text}, nil
		}
	}
	return driver.Element{}, driver.ErrNotFound
}

func (s *fakeSession) Tap(ctx context.Context, el driver.Element) error {
	if s.tapErrs > 0 {
		s.tapErrs--
		return driver.ErrNotFound
	}
	s.taps = append(s.taps, el.ID)
	return nil
}

func (s *fakeSession) Clear(ctx context.Context, el driver.Element) error {
	s.clears++
	return nil
}

func (s *fakeSession) Type(ctx context.Context, el driver.Element, text string) error {
	s.typed = append(s.typed, text)
	return nil
}

func (s *fakeSession) CurrentScreen(ctx context.Context) (string, error) { return "", nil }

func (s *fakeSession) Close(ctx context.Context) error { return nil }

func newTestDriver(session driver.Session) *Driver {
	exec := retry.NewExecutor(retry.Policy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
	})
	resolver := popup.NewResolver(session, exec, popup.DefaultSignatures(), 5)
	return NewDriver(session, exec, resolver, 0)
}

func TestRunSearchSubmitsKeyword(t *testing.T) {
	session := &fakeSession{
		texts:  []string{"搜索"},
		images: []string{"nationwide_delivery_icon.png"},
	}
	d := newTestDriver(session)

	outcome, err := d.RunSearch(context.Background(), "苹果")

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, domain.SearchTerm("苹果"), outcome.Term)
	assert.False(t, outcome.SubmittedAt.IsZero())

	require.NotEmpty(t, session.taps)
	assert.Equal(t, "img-nationwide_delivery_icon.png", session.taps[0], "image signature tried before text")
	assert.Equal(t, 1, session.clears)
	require.Len(t, session.typed, 1)
	assert.Equal(t, "苹果\n", session.typed[0])
}

func TestRunSearchTextFallbackWhenImageMisses(t *testing.T) {
	session := &fakeSession{
		texts: []string{"全国送", "搜索"},
	}
	d := newTestDriver(session)

	outcome, err := d.RunSearch(context.Background(), "香蕉")

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "txt-全国送", session.taps[0])
}

func TestRunSearchNavigationError(t *testing.T) {
	// Neither the icon asset nor its text label resolves.
	session := &fakeSession{texts: []string{"搜索"}}
	d := newTestDriver(session)

	_, err := d.RunSearch(context.Background(), "苹果")

	var navErr *domain.NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, "nationwide delivery", navErr.Target)

	kind, ok := domain.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindNavigation, kind)
}

func TestRunSearchRetriesTransientTap(t *testing.T) {
	session := &fakeSession{
		texts:   []string{"全国送", "搜索"},
		tapErrs: 1,
	}
	d := newTestDriver(session)

	outcome, err := d.RunSearch(context.Background(), "苹果")

	require.NoError(t, err)
	assert.True(t, outcome.Success)
}

func TestRunSearchReconfirmsThroughSuggestions(t *testing.T) {
	session := &fakeSession{
		texts: []string{"全国送", "搜索", "搜索历史"},
	}
	d := newTestDriver(session)

	_, err := d.RunSearch(context.Background(), "苹果")

	require.NoError(t, err)
	require.Len(t, session.typed, 2, "submit re-confirmed past the suggestions interstitial")
	assert.Equal(t, "\n", session.typed[1])
}
