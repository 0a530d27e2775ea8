package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/courant-live/courant/internal/api"
)

// Feed merges the one-time notification history fetch with the live stream
// into a single newest-first list, and raises a transient alert for each
// live arrival.
//
// The live subscription is established before the history fetch, and the
// fetch result is appended behind whatever live messages arrived in the
// meantime, so a slow fetch can never overwrite an already-delivered
// message.
type Feed struct {
	api      *api.Client
	channel  *Channel
	alertTTL time.Duration
	log      zerolog.Logger

	mu        sync.Mutex
	items     []api.Notification // newest-first
	seeded    bool
	stopped   bool
	unsub     func()
	alert     *api.Notification
	alertGen  int
	alertTime *time.Timer
}

// NewFeed creates a feed over the given channel. alertTTL is how long each
// "new message" alert stays up before auto-dismissing.
func NewFeed(client *api.Client, channel *Channel, alertTTL time.Duration, log zerolog.Logger) *Feed {
	return &Feed{
		api:      client,
		channel:  channel,
		alertTTL: alertTTL,
		log:      log.With().Str("component", "feed").Logger(),
	}
}

// Start attaches to the live stream and performs the single historical
// fetch that seeds the list. Calling it more than once is a no-op after
// the first. A failed fetch degrades to an empty seed; the live stream
// still flows.
func (f *Feed) Start(ctx context.Context) {
	f.mu.Lock()
	if f.stopped || f.unsub != nil {
		f.mu.Unlock()
		return
	}
	f.unsub = f.channel.Subscribe(f.onLive)
	f.mu.Unlock()

	history, err := f.api.Notifications(ctx)
	if err != nil {
		f.log.Warn().Err(err).Msg("history fetch failed, starting empty")
		history = nil
	}
	f.seed(history)
}

// seed applies the historical fetch result exactly once, behind any live
// messages already prepended.
func (f *Feed) seed(history []api.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped || f.seeded {
		return
	}
	f.seeded = true
	f.items = append(f.items, history...)
	f.log.Debug().Int("history", len(history)).Int("live", len(f.items)-len(history)).Msg("feed seeded")
}

func (f *Feed) onLive(n api.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}

	f.items = append([]api.Notification{n}, f.items...)

	f.alert = &n
	f.alertGen++
	gen := f.alertGen
	if f.alertTime != nil {
		f.alertTime.Stop()
	}
	f.alertTime = time.AfterFunc(f.alertTTL, func() { f.dismissAlert(gen) })
}

// dismissAlert clears the alert installed at generation gen. Stop cannot
// cancel a timer whose callback already fired and is waiting on the
// mutex; the generation check keeps such a stale dismissal away from a
// newer alert.
func (f *Feed) dismissAlert(gen int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.alertGen {
		return
	}
	f.alert = nil
}

// Snapshot returns a copy of the current list, newest-first.
func (f *Feed) Snapshot() []api.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]api.Notification, len(f.items))
	copy(out, f.items)
	return out
}

// CurrentAlert returns the notification currently being flagged to the
// user, or nil once the alert has auto-dismissed. There is no manual
// dismissal.
func (f *Feed) CurrentAlert() *api.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.alert == nil {
		return nil
	}
	n := *f.alert
	return &n
}

// Stop detaches the feed from the channel. Results of requests still in
// flight are ignored afterwards.
func (f *Feed) Stop() {
	f.mu.Lock()
	unsub := f.unsub
	f.stopped = true
	f.unsub = nil
	if f.alertTime != nil {
		f.alertTime.Stop()
	}
	f.alert = nil
	f.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}
