package notify

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/courant-live/courant/internal/api"
)

// ConnState is the lifecycle state of the push connection, owned
// exclusively by the Channel and driven by transport events.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Erroring
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Erroring:
		return "erroring"
	default:
		return "disconnected"
	}
}

// ReconnectPolicy makes retry behavior explicit instead of inheriting a
// transport library default. MaxAttempts counts consecutive failed dials;
// zero means retry forever. A successful connection resets the count.
type ReconnectPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int
}

// DefaultReconnectPolicy retries forever: 1s initial delay, doubling to a
// 30s cap.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}
}

func (p ReconnectPolicy) next(current time.Duration) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}
	next := time.Duration(float64(current) * mult)
	if next > p.MaxDelay {
		next = p.MaxDelay
	}
	return next
}

// Channel owns the persistent connection to the server's push endpoint:
// at most one live connection, automatic resubscription after reconnects,
// and in-order fan-out of every inbound message to all registered
// subscribers. Construct exactly one per process and share it; nothing
// here is a package-level singleton.
//
// Connection and subscription failures are logged and absorbed.
// Subscribers only ever see delivered messages, never errors; an unhealthy
// channel looks like silence.
type Channel struct {
	url    string
	topic  string
	policy ReconnectPolicy
	dialer *websocket.Dialer
	log    zerolog.Logger

	state atomic.Int32

	mu     sync.Mutex
	subs   map[int]func(api.Notification)
	nextID int
}

// NewChannel creates a channel for the given websocket URL and topic. Run
// must be started for anything to flow.
func NewChannel(wsURL, topic string, policy ReconnectPolicy, log zerolog.Logger) *Channel {
	return &Channel{
		url:    wsURL,
		topic:  topic,
		policy: policy,
		dialer: websocket.DefaultDialer,
		log:    log.With().Str("component", "notify").Str("topic", topic).Logger(),
		subs:   make(map[int]func(api.Notification)),
	}
}

// State returns the current connection state.
func (c *Channel) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Channel) setState(s ConnState) {
	c.state.Store(int32(s))
}

// Subscribe registers fn for every message delivered from now on. Messages
// already delivered are not replayed. The callback runs on the channel's
// read loop and must not block. The returned cancel func detaches it.
func (c *Channel) Subscribe(fn func(api.Notification)) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Run drives the connection until ctx is cancelled: dial, subscribe, read,
// and on any drop reconnect according to the policy. It blocks; start it
// in its own goroutine.
func (c *Channel) Run(ctx context.Context) {
	defer c.setState(Disconnected)

	delay := c.policy.InitialDelay
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.setState(Connecting)
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.setState(Disconnected)
			failures++
			if c.policy.MaxAttempts > 0 && failures >= c.policy.MaxAttempts {
				c.log.Error().Err(err).Int("attempts", failures).Msg("giving up on push connection")
				return
			}
			c.log.Debug().Err(err).Dur("retry_in", delay).Msg("push dial failed")
			if !sleep(ctx, delay) {
				return
			}
			delay = c.policy.next(delay)
			continue
		}

		// Subscriptions do not survive a reconnect: reassert on every new
		// connection. A write failure here counts like a failed dial, with
		// the same backoff and attempt accounting.
		if err := conn.WriteJSON(Frame{Type: FrameSubscribe, Topic: c.topic}); err != nil {
			conn.Close()
			c.setState(Disconnected)
			failures++
			if c.policy.MaxAttempts > 0 && failures >= c.policy.MaxAttempts {
				c.log.Error().Err(err).Int("attempts", failures).Msg("giving up on push connection")
				return
			}
			c.log.Warn().Err(err).Dur("retry_in", delay).Msg("subscribe request failed")
			if !sleep(ctx, delay) {
				return
			}
			delay = c.policy.next(delay)
			continue
		}

		c.setState(Connected)
		c.log.Info().Str("url", c.url).Msg("push channel connected")
		delay = c.policy.InitialDelay
		failures = 0

		c.readLoop(ctx, conn)
		// readLoop returns with the connection closed and state set; loop
		// around for the automatic retry.
	}
}

// readLoop pumps frames off conn until the transport drops or a protocol
// error forces a reconnect.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Unblock ReadMessage when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.setState(Disconnected)
			c.log.Debug().Err(err).Msg("push connection dropped")
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			// Unparseable envelope: the protocol is broken, start over.
			c.setState(Erroring)
			c.log.Warn().Err(err).Msg("malformed push frame, reconnecting")
			return
		}

		if frame.Type != FrameMessage || frame.Topic != c.topic {
			continue
		}

		// The payload is server-defined; no schema is enforced beyond it
		// being a JSON object.
		var n api.Notification
		if err := json.Unmarshal(frame.Payload, &n); err != nil {
			c.log.Warn().Err(err).Msg("malformed push payload, dropped")
			continue
		}

		c.deliver(n)
	}
}

// deliver fans one message out to every subscriber registered at this
// moment. Delivery order equals transport arrival order: a single read
// loop calls deliver, so messages never overtake each other.
func (c *Channel) deliver(n api.Notification) {
	c.mu.Lock()
	fns := make([]func(api.Notification), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(n)
	}
}

// sleep waits for d or until ctx ends; it reports whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
