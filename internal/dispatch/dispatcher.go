package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/quake-notifier/internal/domain"
	"github.com/couchcryptid/quake-notifier/internal/observability"
	"github.com/jonboulle/clockwork"
)

// ErrCycleInProgress is returned when a cycle is requested while another
// one is still running.
var ErrCycleInProgress = errors.New("dispatch cycle in progress")

// FeedFetcher retrieves the current earthquake feed.
type FeedFetcher interface {
	Fetch(ctx context.Context) (domain.Feed, error)
}

// Directory lists registered users and their interest points.
type Directory interface {
	ListUsers(ctx context.Context) ([]string, error)
	ListInterestPoints(ctx context.Context, userID string) ([]domain.InterestPoint, error)
}

// CredentialStore returns the stored timeline credential of a user, or an
// error wrapping domain.ErrCredentialMissing.
type CredentialStore interface {
	GetCredential(ctx context.Context, userID string) (domain.Credential, error)
}

// DeliveryChannel inserts one card into a user's timeline.
type DeliveryChannel interface {
	Deliver(ctx context.Context, userID string, cred domain.Credential, card domain.NotificationCard) error
}

// DeliveryRecorder receives the cards delivered to one user. Optional.
type DeliveryRecorder interface {
	RecordDeliveries(ctx context.Context, records []domain.DeliveryRecord) error
}

// Deps are the collaborators of a Dispatcher. Recorder may be nil.
type Deps struct {
	Feed        FeedFetcher
	Directory   Directory
	Credentials CredentialStore
	Delivery    DeliveryChannel
	Cards       *domain.CardBuilder
	Watermark   WatermarkStore
	Recorder    DeliveryRecorder
}

// defaultRecordTimeout bounds audit publishing when no delivery timeout is set.
const defaultRecordTimeout = 10 * time.Second

// Options tune matching and the per-call timeouts of a cycle.
type Options struct {
	Radius          float64
	InitialLookback time.Duration
	Concurrency     int
	MapTimeout      time.Duration
	DeliveryTimeout time.Duration
	Clock           clockwork.Clock
}

func (o Options) withDefaults() Options {
	if o.Radius <= 0 {
		o.Radius = domain.DefaultMatchRadius
	}
	if o.InitialLookback <= 0 {
		o.InitialLookback = domain.DefaultInitialLookback
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

// Dispatcher runs fetch-match-deliver cycles. At most one cycle runs at a
// time.
type Dispatcher struct {
	deps    Deps
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics

	inFlight atomic.Bool
	state    atomic.Int32
	ready    atomic.Bool
}

// New creates a Dispatcher.
func New(deps Deps, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Dispatcher {
	if deps.Cards == nil {
		deps.Cards = domain.NewCardBuilder(nil)
	}
	if deps.Watermark == nil {
		deps.Watermark = NewMemoryWatermark()
	}
	return &Dispatcher{
		deps:    deps,
		opts:    opts.withDefaults(),
		logger:  logger,
		metrics: metrics,
	}
}

// State returns the phase of the cycle currently running, or StateIdle.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// CheckReadiness returns nil once a cycle has completed with a successful
// feed fetch.
func (d *Dispatcher) CheckReadiness(_ context.Context) error {
	if !d.ready.Load() {
		return errors.New("no dispatch cycle has completed yet")
	}
	return nil
}

// RunCycle fetches the feed once and notifies every user about new nearby
// earthquakes. Failures are logged and summarized in the report; the only
// error returned is ErrCycleInProgress.
//
// The cycle is detached from ctx cancellation so shutdown never interrupts
// a delivery halfway; every network call carries its own timeout.
func (d *Dispatcher) RunCycle(ctx context.Context) (CycleReport, error) {
	if !d.inFlight.CompareAndSwap(false, true) {
		d.metrics.CyclesTotal.WithLabelValues(OutcomeSkipped).Inc()
		return CycleReport{}, ErrCycleInProgress
	}
	defer d.inFlight.Store(false)
	defer d.setState(StateIdle)

	ctx = context.WithoutCancel(ctx)
	start := d.opts.Clock.Now()
	report := CycleReport{StartedAt: start.UTC()}
	defer func() {
		d.metrics.CyclesTotal.WithLabelValues(report.Outcome).Inc()
		d.metrics.CycleDuration.Observe(d.opts.Clock.Since(start).Seconds())
	}()

	d.setState(StateFetching)
	watermark, err := d.loadWatermark(ctx)
	if err != nil {
		d.logger.Error("load watermark failed, abandoning cycle", "error", err)
		report.Outcome = OutcomeWatermarkFailed
		report.Err = err
		return report, nil
	}
	report.Watermark = watermark

	feedStart := d.opts.Clock.Now()
	feed, err := d.deps.Feed.Fetch(ctx)
	d.metrics.FeedDuration.Observe(d.opts.Clock.Since(feedStart).Seconds())
	if err != nil {
		d.logger.Warn("feed fetch failed, abandoning cycle",
			"error", err,
			"watermark", watermark,
		)
		report.Outcome = OutcomeFetchFailed
		report.Err = err
		return report, nil
	}

	fresh := domain.SelectNew(feed.Events, watermark)
	report.FetchedAt = feed.FetchedAt
	report.FetchedEvents = len(feed.Events)
	report.NewEvents = fresh
	d.metrics.EventsFetched.Add(float64(len(feed.Events)))
	d.metrics.EventsNew.Add(float64(len(fresh)))

	if len(fresh) > 0 {
		d.setState(StateMatching)
		users, err := d.deps.Directory.ListUsers(ctx)
		if err != nil {
			d.logger.Error("list users failed, abandoning cycle", "error", err)
			report.Outcome = OutcomeDirectoryFailed
			report.Err = err
			return report, nil
		}
		d.setState(StateDelivering)
		report.Users = d.processUsers(ctx, users, fresh)
	}

	if err := d.deps.Watermark.Store(ctx, feed.FetchedAt); err != nil {
		d.logger.Error("store watermark failed", "error", err, "watermark", feed.FetchedAt)
		report.Err = err
	} else {
		report.Watermark = feed.FetchedAt
		report.WatermarkAdvanced = true
		d.metrics.Watermark.Set(float64(feed.FetchedAt.Unix()))
	}

	report.Outcome = OutcomeCompleted
	d.ready.Store(true)
	d.logger.Info("dispatch cycle completed",
		"fetched", report.FetchedEvents,
		"new", len(fresh),
		"users", len(report.Users),
		"cards_delivered", report.CardsDelivered(),
		"duration", d.opts.Clock.Since(start),
	)
	return report, nil
}

func (d *Dispatcher) loadWatermark(ctx context.Context) (time.Time, error) {
	wm, ok, err := d.deps.Watermark.Load(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return domain.InitialWatermark(d.opts.Clock.Now(), d.opts.InitialLookback), nil
	}
	return wm, nil
}

// processUsers handles every user concurrently over the shared, read-only
// slice of new events. Results keep the directory order.
func (d *Dispatcher) processUsers(ctx context.Context, users []string, events []domain.Earthquake) []UserResult {
	results := make([]UserResult, len(users))
	var (
		wg  sync.WaitGroup
		sem = make(chan struct{}, d.opts.Concurrency)
	)

	for i, userID := range users {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			res := d.safeProcessUser(ctx, userID, events)
			d.metrics.UsersProcessed.WithLabelValues(res.Outcome).Inc()
			results[i] = res
		}()
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) safeProcessUser(ctx context.Context, userID string, events []domain.Earthquake) (res UserResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("user processing panicked", "user_id", userID, "panic", r)
			res = UserResult{UserID: userID, Outcome: OutcomeUserPanicked, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return d.processUser(ctx, userID, events)
}

func (d *Dispatcher) processUser(ctx context.Context, userID string, events []domain.Earthquake) UserResult {
	res := UserResult{UserID: userID}

	points, err := d.deps.Directory.ListInterestPoints(ctx, userID)
	if err != nil {
		d.logger.Warn("list interest points failed, skipping user", "user_id", userID, "error", err)
		res.Outcome = OutcomeDirectoryError
		res.Err = err
		return res
	}

	matched := domain.EventsOfInterest(events, points, d.opts.Radius)
	res.Matched = len(matched)
	if len(matched) == 0 {
		res.Outcome = OutcomeNoMatch
		return res
	}

	cred, err := d.deps.Credentials.GetCredential(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrCredentialMissing):
		d.logger.Info("no credential, skipping user", "user_id", userID, "matched", len(matched))
		res.Outcome = OutcomeCredentialMissing
		res.Err = err
		return res
	case err != nil:
		d.logger.Warn("load credential failed, skipping user", "user_id", userID, "error", err)
		res.Outcome = OutcomeCredentialError
		res.Err = err
		return res
	case !cred.Valid(d.opts.Clock.Now()):
		d.logger.Info("credential expired, skipping user", "user_id", userID)
		res.Outcome = OutcomeCredentialInvalid
		res.Err = domain.ErrCredentialInvalid
		return res
	}

	cards := d.buildCards(ctx, matched)
	if len(cards) > 1 {
		res.BundleID = cards[0].BundleID
	}
	records := d.deliverCards(ctx, userID, cred, cards, matched, &res)

	if d.deps.Recorder != nil && len(records) > 0 {
		d.recordDeliveries(ctx, userID, records)
	}

	switch {
	case res.Outcome == OutcomeCredentialInvalid:
	case res.Failed == 0:
		res.Outcome = OutcomeDelivered
	case res.Delivered == 0:
		res.Outcome = OutcomeDeliveryFailed
	default:
		res.Outcome = OutcomePartial
	}
	return res
}

// buildCards returns a single unbundled card, or one card per event
// sharing a fresh bundle id followed by the cover card.
func (d *Dispatcher) buildCards(ctx context.Context, events []domain.Earthquake) []domain.NotificationCard {
	if len(events) == 1 {
		card := d.deps.Cards.BuildCard(events[0], "")
		card.MapImage = d.fetchMapImage(ctx, events[0])
		return []domain.NotificationCard{card}
	}

	bundleID := domain.NewBundleID()
	cards := make([]domain.NotificationCard, 0, len(events)+1)
	for _, e := range events {
		card := d.deps.Cards.BuildCard(e, bundleID)
		card.MapImage = d.fetchMapImage(ctx, e)
		cards = append(cards, card)
	}
	return append(cards, d.deps.Cards.BuildCoverCard(bundleID, len(events), d.opts.Clock.Now()))
}

func (d *Dispatcher) fetchMapImage(ctx context.Context, event domain.Earthquake) []byte {
	if !d.deps.Cards.MapsEnabled() {
		return nil
	}
	mctx, cancel := withTimeout(ctx, d.opts.MapTimeout)
	defer cancel()

	img := d.deps.Cards.FetchMapImage(mctx, event)
	if !img.Available() {
		d.metrics.MapImages.WithLabelValues("unavailable").Inc()
		d.logger.Warn("map image unavailable, sending card without map",
			"event_id", event.ID,
			"error", img.Err,
		)
		return nil
	}
	d.metrics.MapImages.WithLabelValues("success").Inc()
	return img.Data
}

// deliverCards inserts cards in order. A rejected credential stops delivery
// for the user; any other failure only skips the card.
func (d *Dispatcher) deliverCards(ctx context.Context, userID string, cred domain.Credential, cards []domain.NotificationCard, events []domain.Earthquake, res *UserResult) []domain.DeliveryRecord {
	byID := make(map[string]domain.Earthquake, len(events))
	for _, e := range events {
		byID[e.ID] = e
	}

	records := make([]domain.DeliveryRecord, 0, len(cards))
	for i, card := range cards {
		dctx, cancel := withTimeout(ctx, d.opts.DeliveryTimeout)
		start := d.opts.Clock.Now()
		err := d.deps.Delivery.Deliver(dctx, userID, cred, card)
		cancel()
		d.metrics.DeliveryLatency.Observe(d.opts.Clock.Since(start).Seconds())

		if errors.Is(err, domain.ErrCredentialInvalid) {
			d.metrics.DeliveryErrors.WithLabelValues("credential_invalid").Inc()
			d.logger.Warn("credential rejected, skipping remaining cards",
				"user_id", userID,
				"remaining", len(cards)-i,
				"error", err,
			)
			res.Outcome = OutcomeCredentialInvalid
			res.Failed += len(cards) - i
			res.Err = err
			break
		}
		if err != nil {
			d.metrics.DeliveryErrors.WithLabelValues("delivery_failed").Inc()
			d.logger.Warn("card delivery failed",
				"user_id", userID,
				"event_id", card.EventID,
				"bundle_id", card.BundleID,
				"cover", card.IsBundleCover,
				"error", err,
			)
			res.Failed++
			res.Err = err
			continue
		}

		res.Delivered++
		d.metrics.CardsDelivered.WithLabelValues(cardKind(card)).Inc()
		rec := domain.DeliveryRecord{
			UserID:        userID,
			EventID:       card.EventID,
			BundleID:      card.BundleID,
			IsBundleCover: card.IsBundleCover,
			BundleSize:    card.BundleSize,
			HasMapImage:   len(card.MapImage) > 0,
			DeliveredAt:   d.opts.Clock.Now().UTC(),
		}
		if e, ok := byID[card.EventID]; ok {
			rec.Magnitude = e.Magnitude
			rec.Place = e.Place
		}
		records = append(records, rec)
	}
	return records
}

func (d *Dispatcher) setState(s State) {
	d.state.Store(int32(s))
}

func cardKind(card domain.NotificationCard) string {
	switch {
	case card.IsBundleCover:
		return "cover"
	case card.BundleID != "":
		return "bundled"
	default:
		return "single"
	}
}

// recordDeliveries publishes the audit records under the delivery timeout so
// a stalled broker cannot hold the cycle open.
func (d *Dispatcher) recordDeliveries(ctx context.Context, userID string, records []domain.DeliveryRecord) {
	timeout := d.opts.DeliveryTimeout
	if timeout <= 0 {
		timeout = defaultRecordTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := d.deps.Recorder.RecordDeliveries(rctx, records); err != nil {
		d.logger.Warn("record deliveries failed", "user_id", userID, "records", len(records), "error", err)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
