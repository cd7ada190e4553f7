package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

type NATSPublisher struct {
	nc            *nats.Conn
	sub           *nats.Subscription
	eventsSubject string
	metrics       PublisherMetrics
}

type PublisherMetrics interface {
	NATSRequestInc()
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

// Handler answers one request payload with a reply payload.
type Handler func(ctx context.Context, data []byte) []byte

// NewNATSPublisher connects to url. An empty eventsSubject disables completion events.
func NewNATSPublisher(url, eventsSubject string, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("transit-isochrone"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected to %s", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, eventsSubject: eventsSubject, metrics: m}, nil
}

// Serve subscribes h to subject in queue group queue, so several instances
// share the request load. Each request is handled on its own goroutine with a
// context derived from ctx and cancelled after timeout, so a request never
// outlives the caller waiting for its reply.
func (p *NATSPublisher) Serve(ctx context.Context, subject, queue string, timeout time.Duration, h Handler) error {
	if p.sub != nil {
		return errors.New("already serving")
	}
	sub, err := p.nc.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		if p.metrics != nil {
			p.metrics.NATSRequestInc()
		}
		go func() {
			reply := handle(ctx, timeout, msg.Data, h)
			if msg.Reply == "" {
				return
			}
			p.observe(func() error { return msg.Respond(reply) })
		}()
	})
	if err != nil {
		return err
	}
	p.sub = sub
	log.Printf("nats serving subject=%s queue=%s timeout=%s", subject, queue, timeout)
	return nil
}

// handle runs h under a per-request deadline. A non-positive timeout leaves ctx as is.
func handle(ctx context.Context, timeout time.Duration, data []byte, h Handler) []byte {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return h(ctx, data)
}

func (p *NATSPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		log.Printf("nats drain: %v", err)
	}
	p.nc.Close()
}

// CompletedEvent announces a finished search to observers.
type CompletedEvent struct {
	RunID        string    `json:"runId"`
	City         string    `json:"city,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	OriginLat    float64   `json:"originLat"`
	OriginLng    float64   `json:"originLng"`
	StartTime    string    `json:"startTime"`
	DurationSecs float64   `json:"durationSecs"`
	Settled      int       `json:"settled"`
	TripsBoarded int       `json:"tripsBoarded"`
	ElapsedMs    float64   `json:"elapsedMs"`
}

// PublishCompleted publishes ev on the events subject, suffixed with the city
// when there is one.
func (p *NATSPublisher) PublishCompleted(ev CompletedEvent) error {
	if p.eventsSubject == "" {
		return nil
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	subject := eventSubject(p.eventsSubject, ev.City)
	return p.observe(func() error { return p.nc.Publish(subject, b) })
}

func (p *NATSPublisher) observe(publish func() error) error {
	start := time.Now()
	err := publish()
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		log.Printf("nats publish error: %v", err)
	}
	return err
}

func eventSubject(base, city string) string {
	if strings.TrimSpace(city) == "" {
		return base
	}
	return base + "." + subjectToken(strings.ToLower(city))
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
