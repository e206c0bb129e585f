package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/quake-notifier/internal/dispatch"
	"github.com/couchcryptid/quake-notifier/internal/domain"
	"github.com/couchcryptid/quake-notifier/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockFeed struct {
	feed    domain.Feed
	err     error
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (m *mockFeed) Fetch(_ context.Context) (domain.Feed, error) {
	m.calls.Add(1)
	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.release != nil {
		<-m.release
	}
	return m.feed, m.err
}

type mockDirectory struct {
	users     []string
	usersErr  error
	points    map[string][]domain.InterestPoint
	pointErrs map[string]error
}

func (m *mockDirectory) ListUsers(_ context.Context) ([]string, error) {
	return m.users, m.usersErr
}

func (m *mockDirectory) ListInterestPoints(_ context.Context, userID string) ([]domain.InterestPoint, error) {
	if err := m.pointErrs[userID]; err != nil {
		return nil, err
	}
	return m.points[userID], nil
}

type mockCredentials struct {
	creds map[string]domain.Credential
	errs  map[string]error
	calls atomic.Int32
}

func (m *mockCredentials) GetCredential(_ context.Context, userID string) (domain.Credential, error) {
	m.calls.Add(1)
	if err := m.errs[userID]; err != nil {
		return domain.Credential{}, err
	}
	cred, ok := m.creds[userID]
	if !ok {
		return domain.Credential{}, fmt.Errorf("user %s: %w", userID, domain.ErrCredentialMissing)
	}
	return cred, nil
}

type mockDelivery struct {
	mu        sync.Mutex
	delivered map[string][]domain.NotificationCard
	attempts  map[string]int
	fail      func(userID string, card domain.NotificationCard) error
}

func newMockDelivery() *mockDelivery {
	return &mockDelivery{
		delivered: make(map[string][]domain.NotificationCard),
		attempts:  make(map[string]int),
	}
}

func (m *mockDelivery) Deliver(_ context.Context, userID string, _ domain.Credential, card domain.NotificationCard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[userID]++
	if m.fail != nil {
		if err := m.fail(userID, card); err != nil {
			return err
		}
	}
	m.delivered[userID] = append(m.delivered[userID], card)
	return nil
}

func (m *mockDelivery) cards(userID string) []domain.NotificationCard {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delivered[userID]
}

type mockRecorder struct {
	mu      sync.Mutex
	records []domain.DeliveryRecord
	err     error
	stall   bool // wait for the context like a broker that never acks
}

func (m *mockRecorder) RecordDeliveries(ctx context.Context, records []domain.DeliveryRecord) error {
	if m.stall {
		<-ctx.Done()
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	return m.err
}

type mockMaps struct {
	err error
}

func (m *mockMaps) FetchImage(_ context.Context, _, _ float64) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []byte("png"), nil
}

type brokenWatermark struct{}

func (brokenWatermark) Load(_ context.Context) (time.Time, bool, error) {
	return time.Time{}, false, errors.New("redis down")
}

func (brokenWatermark) Store(_ context.Context, _ time.Time) error {
	return errors.New("redis down")
}

// --- fixtures ---

var (
	now       = time.Date(2024, time.April, 26, 15, 0, 0, 0, time.UTC)
	quakeAt   = time.Date(2024, time.April, 26, 14, 40, 0, 0, time.UTC)
	bayQuake  = domain.Earthquake{ID: "nc1", Lon: -122.4, Lat: 37.7, Magnitude: 4.5, Place: "Bay Area", OccurredAt: quakeAt}
	bayQuake2 = domain.Earthquake{ID: "nc2", Lon: -122.2, Lat: 37.9, Magnitude: 3.1, Place: "East Bay", OccurredAt: quakeAt.Add(5 * time.Minute)}
	farQuake  = domain.Earthquake{ID: "us1", Lon: 140.1, Lat: 35.6, Magnitude: 5.2, Place: "Japan", OccurredAt: quakeAt}
)

type harness struct {
	feed        *mockFeed
	directory   *mockDirectory
	credentials *mockCredentials
	delivery    *mockDelivery
	recorder    *mockRecorder
	watermark   dispatch.WatermarkStore
	maps        domain.MapImageProvider
	clock       *clockwork.FakeClock
}

func newHarness(events ...domain.Earthquake) *harness {
	return &harness{
		feed:        &mockFeed{feed: domain.Feed{Events: events, FetchedAt: now}},
		directory:   &mockDirectory{points: map[string][]domain.InterestPoint{}},
		credentials: &mockCredentials{creds: map[string]domain.Credential{}},
		delivery:    newMockDelivery(),
		recorder:    &mockRecorder{},
		watermark:   dispatch.NewMemoryWatermark(),
		clock:       clockwork.NewFakeClockAt(now),
	}
}

func (h *harness) addUser(userID string, points ...domain.InterestPoint) {
	h.directory.users = append(h.directory.users, userID)
	for i := range points {
		points[i].OwnerUserID = userID
	}
	h.directory.points[userID] = points
	h.credentials.creds[userID] = domain.Credential{AccessToken: "tok-" + userID}
}

func (h *harness) dispatcher() *dispatch.Dispatcher {
	return dispatch.New(dispatch.Deps{
		Feed:        h.feed,
		Directory:   h.directory,
		Credentials: h.credentials,
		Delivery:    h.delivery,
		Cards:       domain.NewCardBuilder(h.maps),
		Watermark:   h.watermark,
		Recorder:    h.recorder,
	}, dispatch.Options{
		Radius:          domain.DefaultMatchRadius,
		InitialLookback: 30 * time.Minute,
		Concurrency:     4,
		Clock:           h.clock,
	}, discardLogger(), observability.NewMetricsForTesting())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func point(lon, lat float64) domain.InterestPoint {
	return domain.InterestPoint{Description: "here", Lon: lon, Lat: lat}
}

func countCovers(cards []domain.NotificationCard) int {
	n := 0
	for _, c := range cards {
		if c.IsBundleCover {
			n++
		}
	}
	return n
}

// --- tests ---

func TestRunCycle_SingleMatchDeliversUnbundledCard(t *testing.T) {
	h := newHarness(bayQuake)
	h.addUser("u1", point(-122.3, 37.8))

	report, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeCompleted, report.Outcome)

	cards := h.delivery.cards("u1")
	require.Len(t, cards, 1)
	card := cards[0]
	assert.Empty(t, card.BundleID)
	assert.False(t, card.IsBundleCover)
	assert.Equal(t, "2024-04-26T14:40:00Z", card.DisplayTimeString())
	assert.Contains(t, card.BodyHTML, "Bay Area")
	assert.Contains(t, card.BodyHTML, "4.5")
	assert.Zero(t, countCovers(cards))

	res, ok := report.User("u1")
	require.True(t, ok)
	assert.Equal(t, dispatch.OutcomeDelivered, res.Outcome)
	assert.Equal(t, 1, res.Delivered)
	assert.Empty(t, res.BundleID)
}

func TestRunCycle_FarPointDeliversNothing(t *testing.T) {
	h := newHarness(bayQuake)
	h.addUser("u1", point(10.0, 10.0))

	report, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)

	assert.Empty(t, h.delivery.cards("u1"))
	res, _ := report.User("u1")
	assert.Equal(t, dispatch.OutcomeNoMatch, res.Outcome)
	assert.Zero(t, h.credentials.calls.Load(), "credential is only loaded when something matched")
}

func TestRunCycle_TwoMatchesFormOneBundle(t *testing.T) {
	h := newHarness(bayQuake, bayQuake2)
	h.addUser("u1", point(-122.3, 37.8))

	report, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)

	cards := h.delivery.cards("u1")
	require.Len(t, cards, 3)
	bundleID := cards[0].BundleID
	require.NotEmpty(t, bundleID)

	for _, c := range cards[:2] {
		assert.Equal(t, bundleID, c.BundleID)
		assert.False(t, c.IsBundleCover)
	}
	assert.Equal(t, "nc1", cards[0].EventID)
	assert.Equal(t, "nc2", cards[1].EventID)

	cover := cards[2]
	assert.True(t, cover.IsBundleCover, "cover card is delivered last")
	assert.Equal(t, bundleID, cover.BundleID)
	assert.Equal(t, 2, cover.BundleSize)
	assert.Contains(t, cover.BodyHTML, "2 earthquakes")
	assert.Equal(t, 1, countCovers(cards))

	res, _ := report.User("u1")
	assert.Equal(t, bundleID, res.BundleID)
	assert.Equal(t, 3, res.Delivered)
}

func TestRunCycle_BundlesAreDistinctPerUser(t *testing.T) {
	h := newHarness(bayQuake, bayQuake2)
	h.addUser("u1", point(-122.3, 37.8))
	h.addUser("u2", point(-122.3, 37.8))

	_, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)

	c1, c2 := h.delivery.cards("u1"), h.delivery.cards("u2")
	require.Len(t, c1, 3)
	require.Len(t, c2, 3)
	assert.NotEqual(t, c1[0].BundleID, c2[0].BundleID)
}

func TestRunCycle_EventNearTwoPointsDeliveredOnce(t *testing.T) {
	h := newHarness(bayQuake)
	h.addUser("u1", point(-122.3, 37.8), point(-122.5, 37.6))

	_, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)

	cards := h.delivery.cards("u1")
	require.Len(t, cards, 1)
	assert.Empty(t, cards[0].BundleID)
}

func TestRunCycle_MissingCredentialSkipsOnlyThatUser(t *testing.T) {
	h := newHarness(bayQuake)
	h.addUser("u1", point(-122.3, 37.8))
	h.addUser("u2", point(-122.3, 37.8))
	delete(h.credentials.creds, "u1")

	report, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeCompleted, report.Outcome)
	assert.True(t, report.WatermarkAdvanced)

	h.delivery.mu.Lock()
	assert.Zero(t, h.delivery.attempts["u1"], "no delivery attempted without credential")
	h.delivery.mu.Unlock()
	assert.Len(t, h.delivery.cards("u2"), 1)

	res, _ := report.User("u1")
	assert.Equal(t, dispatch.OutcomeCredentialMissing, res.Outcome)
	assert.ErrorIs(t, res.Err, domain.ErrCredentialMissing)
}

func TestRunCycle_ExpiredCredentialSkipsUser(t *testing.T) {
	h := newHarness(bayQuake)
	h.addUser("u1", point(-122.3, 37.8))
	h.credentials.creds["u1"] = domain.Credential{AccessToken: "old", Expiry: now.Add(-time.Hour)}

	report, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)

	assert.Empty(t, h.delivery.cards("u1"))
	res, _ := report.User("u1")
	assert.Equal(t, dispatch.OutcomeCredentialInvalid, res.Outcome)
}

func TestRunCycle_CredentialStoreErrorIsolated(t *testing.T) {
	h := newHarness(bayQuake)
	h.addUser("u1", point(-122.3, 37.8))
	h.addUser("u2", point(-122.3, 37.8))
	h.credentials.errs = map[string]error{"u1": errors.New("connection reset")}

	report, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)

	res, _ := report.User("u1")
	assert.Equal(t, dispatch.OutcomeCredentialError, res.Outcome)
	assert.Len(t, h.delivery.cards("u2"), 1)
}

func TestRunCycle_RejectedCredentialStopsRemainingCards(t *testing.T) {
	h := newHarness(bayQuake, bayQuake2)
	h.addUser("u1", point(-122.3, 37.8))
	h.addUser("u2", point(-122.3, 37.8))
	h.delivery.fail = func(userID string, _ domain.NotificationCard) error {
		if userID == "u1" {
			return fmt.Errorf("status 401: %w", domain.ErrCredentialInvalid)
		}
		return nil
	}

	report, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)

	h.delivery.mu.Lock()
	assert.Equal(t, 1, h.delivery.attempts["u1"])
	h.delivery.mu.Unlock()
	assert.Len(t, h.delivery.cards("u2"), 3)

	res, _ := report.User("u1")
	assert.Equal(t, dispatch.OutcomeCredentialInvalid, res.Outcome)
	assert.Equal(t, 3, res.Failed)
}

func TestRunCycle_ItemFailureDoesNotStopOtherItems(t *testing.T) {
	h := newHarness(bayQuake, bayQuake2)
	h.addUser("u1", point(-122.3, 37.8))
	h.delivery.fail = func(_ string, card domain.NotificationCard) error {
		if card.EventID == "nc1" {
			return fmt.Errorf("status 503: %w", domain.ErrDeliveryFailed)
		}
		return nil
	}

	report, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)

	cards := h.delivery.cards("u1")
	require.Len(t, cards, 2)
	assert.Equal(t, "nc2", cards[0].EventID)
	assert.True(t, cards[1].IsBundleCover)

	res, _ := report.User("u1")
	assert.Equal(t, dispatch.OutcomePartial, res.Outcome)
	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, 1, res.Failed)
}

func TestRunCycle_DirectoryErrorForOneUserIsolated(t *testing.T) {
	h := newHarness(bayQuake)
	h.addUser("u1", point(-122.3, 37.8))
	h.addUser("u2", point(-122.3, 37.8))
	h.directory.pointErrs = map[string]error{"u1": errors.New("timeout")}

	report, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)

	res, _ := report.User("u1")
	assert.Equal(t, dispatch.OutcomeDirectoryError, res.Outcome)
	assert.Len(t, h.delivery.cards("u2"), 1)
	assert.True(t, report.WatermarkAdvanced)
}

func TestRunCycle_MapImageAttachedWhenAvailable(t *testing.T) {
	h := newHarness(bayQuake)
	h.maps = &mockMaps{}
	h.addUser("u1", point(-122.3, 37.8))

	_, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)

	cards := h.delivery.cards("u1")
	require.Len(t, cards, 1)
	assert.Equal(t, []byte("png"), cards[0].MapImage)
}

func TestRunCycle_MapImageFailureStillDeliversText(t *testing.T) {
	h := newHarness(bayQuake)
	h.maps = &mockMaps{err: errors.New("mapbox 500")}
	h.addUser("u1", point(-122.3, 37.8))

	_, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)

	cards := h.delivery.cards("u1")
	require.Len(t, cards, 1)
	assert.Nil(t, cards[0].MapImage)
	assert.Contains(t, cards[0].BodyHTML, "Bay Area")
}

func TestRunCycle_WatermarkAdvancesOnFetchSuccess(t *testing.T) {
	h := newHarness(bayQuake)
	h.addUser("u1", point(-122.3, 37.8))
	h.delivery.fail = func(string, domain.NotificationCard) error { return domain.ErrDeliveryFailed }

	report, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)

	wm, ok, err := h.watermark.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, now, wm, "watermark equals fetch time regardless of delivery outcome")
	assert.Equal(t, now, report.Watermark)

	res, _ := report.User("u1")
	assert.Equal(t, dispatch.OutcomeDeliveryFailed, res.Outcome)
}

func TestRunCycle_WatermarkUnchangedOnFetchFailure(t *testing.T) {
	h := newHarness()
	previous := now.Add(-10 * time.Minute)
	require.NoError(t, h.watermark.Store(context.Background(), previous))
	h.feed.err = fmt.Errorf("dial tcp: %w", domain.ErrFeedUnavailable)

	report, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err, "fetch failure is not surfaced as an error")
	assert.Equal(t, dispatch.OutcomeFetchFailed, report.Outcome)
	assert.ErrorIs(t, report.Err, domain.ErrFeedUnavailable)
	assert.False(t, report.WatermarkAdvanced)

	wm, ok, err := h.watermark.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, previous, wm)
}

func TestRunCycle_FirstCycleUsesLookback(t *testing.T) {
	old := domain.Earthquake{ID: "old", Lon: -122.4, Lat: 37.7, OccurredAt: now.Add(-31 * time.Minute)}
	h := newHarness(old, bayQuake)
	h.addUser("u1", point(-122.3, 37.8))

	report, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, report.NewEvents, 1)
	assert.Equal(t, "nc1", report.NewEvents[0].ID)
	assert.Len(t, h.delivery.cards("u1"), 1)
}

func TestRunCycle_SecondCycleDoesNotRepeat(t *testing.T) {
	h := newHarness(bayQuake)
	h.addUser("u1", point(-122.3, 37.8))
	d := h.dispatcher()

	_, err := d.RunCycle(context.Background())
	require.NoError(t, err)

	h.feed.feed.FetchedAt = now.Add(time.Minute)
	report, err := d.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Empty(t, report.NewEvents)
	assert.Len(t, h.delivery.cards("u1"), 1)
	assert.Equal(t, now.Add(time.Minute), report.Watermark)
}

func TestRunCycle_UserListingFailureKeepsWatermark(t *testing.T) {
	h := newHarness(bayQuake)
	h.directory.usersErr = errors.New("redis down")

	report, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeDirectoryFailed, report.Outcome)

	_, ok, err := h.watermark.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunCycle_WatermarkLoadFailureAbandonsCycle(t *testing.T) {
	h := newHarness(bayQuake)
	h.watermark = brokenWatermark{}

	report, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeWatermarkFailed, report.Outcome)
	assert.Zero(t, h.feed.calls.Load())
}

func TestRunCycle_RecordsDeliveries(t *testing.T) {
	h := newHarness(bayQuake, bayQuake2)
	h.addUser("u1", point(-122.3, 37.8))

	_, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, h.recorder.records, 3)
	first := h.recorder.records[0]
	assert.Equal(t, "u1", first.UserID)
	assert.Equal(t, "nc1", first.EventID)
	assert.Equal(t, "Bay Area", first.Place)
	assert.Equal(t, now, first.DeliveredAt)
	assert.True(t, h.recorder.records[2].IsBundleCover)
	assert.Equal(t, 2, h.recorder.records[2].BundleSize)
}

func TestRunCycle_RecorderFailureIsNotFatal(t *testing.T) {
	h := newHarness(bayQuake)
	h.addUser("u1", point(-122.3, 37.8))
	h.recorder.err = errors.New("kafka unavailable")

	report, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)

	res, _ := report.User("u1")
	assert.Equal(t, dispatch.OutcomeDelivered, res.Outcome)
}

func TestRunCycle_StalledRecorderTimesOut(t *testing.T) {
	h := newHarness(bayQuake)
	h.addUser("u1", point(-122.3, 37.8))
	h.recorder.stall = true
	d := dispatch.New(dispatch.Deps{
		Feed:        h.feed,
		Directory:   h.directory,
		Credentials: h.credentials,
		Delivery:    h.delivery,
		Cards:       domain.NewCardBuilder(nil),
		Watermark:   h.watermark,
		Recorder:    h.recorder,
	}, dispatch.Options{
		MapTimeout:      50 * time.Millisecond,
		DeliveryTimeout: 50 * time.Millisecond,
		Clock:           h.clock,
	}, discardLogger(), observability.NewMetricsForTesting())

	done := make(chan dispatch.CycleReport, 1)
	go func() {
		report, err := d.RunCycle(context.Background())
		assert.NoError(t, err)
		done <- report
	}()

	var report dispatch.CycleReport
	select {
	case report = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not finish while the recorder stalled")
	}
	assert.Equal(t, dispatch.OutcomeCompleted, report.Outcome)
	res, ok := report.User("u1")
	require.True(t, ok)
	assert.Equal(t, dispatch.OutcomeDelivered, res.Outcome)
	assert.Equal(t, dispatch.StateIdle, d.State())

	_, err := d.RunCycle(context.Background())
	assert.NotErrorIs(t, err, dispatch.ErrCycleInProgress)
}

func TestRunCycle_CoverCardUsesDispatcherClock(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	h := newHarness(bayQuake, bayQuake2)
	h.addUser("u1", point(-122.3, 37.8))

	_, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)

	cards := h.delivery.cards("u1")
	require.Len(t, cards, 3)
	assert.Equal(t, "2024-04-26T15:00:00Z", cards[2].DisplayTimeString())
}

func TestRunCycle_ConcurrentCallIsRejected(t *testing.T) {
	h := newHarness(bayQuake)
	h.feed.started = make(chan struct{})
	h.feed.release = make(chan struct{})
	d := h.dispatcher()

	done := make(chan dispatch.CycleReport)
	go func() {
		report, _ := d.RunCycle(context.Background())
		done <- report
	}()
	<-h.feed.started
	assert.Equal(t, dispatch.StateFetching, d.State())

	_, err := d.RunCycle(context.Background())
	require.ErrorIs(t, err, dispatch.ErrCycleInProgress)

	close(h.feed.release)
	report := <-done
	assert.Equal(t, dispatch.OutcomeCompleted, report.Outcome)
	assert.Equal(t, dispatch.StateIdle, d.State())
}

func TestRunCycle_CancelledContextStillCompletes(t *testing.T) {
	h := newHarness(bayQuake)
	h.addUser("u1", point(-122.3, 37.8))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.dispatcher().RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeCompleted, report.Outcome)
	assert.Len(t, h.delivery.cards("u1"), 1)
}

func TestCheckReadiness(t *testing.T) {
	h := newHarness()
	d := h.dispatcher()
	require.Error(t, d.CheckReadiness(context.Background()))

	_, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	assert.NoError(t, d.CheckReadiness(context.Background()))
}

func TestRunCycle_ManyUsersAllProcessed(t *testing.T) {
	h := newHarness(bayQuake)
	for i := range 25 {
		h.addUser(fmt.Sprintf("u%02d", i), point(-122.3, 37.8))
	}

	report, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)

	assert.Len(t, report.Users, 25)
	assert.Equal(t, 25, report.CardsDelivered())
}

func TestRunCycle_OnlyNearbyEventsOfMixedFeed(t *testing.T) {
	h := newHarness(farQuake, bayQuake)
	h.addUser("u1", point(-122.3, 37.8))
	h.addUser("u2", point(139.7, 35.7))

	_, err := h.dispatcher().RunCycle(context.Background())
	require.NoError(t, err)

	c1, c2 := h.delivery.cards("u1"), h.delivery.cards("u2")
	require.Len(t, c1, 1)
	require.Len(t, c2, 1)
	assert.Equal(t, "nc1", c1[0].EventID)
	assert.Equal(t, "us1", c2[0].EventID)
}
