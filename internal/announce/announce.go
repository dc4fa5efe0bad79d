// Package announce receives site announcements over NATS.
//
// A publisher sends a JSON message on a subject below derefd.sites to add,
// replace or withdraw a site at runtime without touching the sites file.
package announce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/MrSnakeDoc/derefd/internal/logger"
	"github.com/MrSnakeDoc/derefd/internal/sources/definitions"
)

const (
	DefaultSubject        = "derefd.sites.>"
	DefaultHandlerTimeout = 5 * time.Second
)

// Announcement event types.
const (
	EventPut    = "PUT"
	EventDelete = "DELETE"
)

var ErrInvalidAnnouncement = errors.New("invalid announcement")

// Announcement is the wire format of a site announcement.
type Announcement struct {
	Event string                     `json:"event"`
	Site  definitions.SiteDefinition `json:"site"`
}

// SiteSink applies announcements.
type SiteSink interface {
	UpsertSite(ctx context.Context, def definitions.SiteDefinition) error
	RemoveSite(ctx context.Context, id string) error
}

// Subscriber listens for announcements and forwards them to a SiteSink.
type Subscriber struct {
	url     string
	subject string
	sink    SiteSink
	logger  logger.Logger
	timeout time.Duration

	mu  sync.Mutex
	nc  *nats.Conn
	sub *nats.Subscription
}

func New(url, subject string, sink SiteSink, log logger.Logger) *Subscriber {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Subscriber{
		url:     url,
		subject: subject,
		sink:    sink,
		logger:  logger.Named(log, "announce"),
		timeout: DefaultHandlerTimeout,
	}
}

func (s *Subscriber) Subject() string { return s.subject }

// Start connects to the server and subscribes to the announcement subject.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nc != nil {
		return nil
	}

	nc, err := nats.Connect(s.url,
		nats.Name("derefd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Warn("nats disconnected", logger.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			s.logger.Info("nats reconnected", logger.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	sub, err := nc.Subscribe(s.subject, func(msg *nats.Msg) {
		hctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if err := s.Handle(hctx, msg.Data); err != nil {
			s.logger.Warn("announcement rejected",
				logger.String("subject", msg.Subject),
				logger.Error(err))
		}
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("subscribe to %s: %w", s.subject, err)
	}

	s.nc = nc
	s.sub = sub
	s.logger.Info("listening for site announcements",
		logger.String("url", s.url),
		logger.String("subject", s.subject))
	return nil
}

// Stop drains the subscription and closes the connection.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nc == nil {
		return
	}
	if err := s.sub.Unsubscribe(); err != nil {
		s.logger.Debug("unsubscribe failed", logger.Error(err))
	}
	s.nc.Close()
	s.nc = nil
	s.sub = nil
}

// Connected reports whether the NATS connection is up.
func (s *Subscriber) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nc != nil && s.nc.IsConnected()
}

// Handle decodes one announcement and applies it.
func (s *Subscriber) Handle(ctx context.Context, data []byte) error {
	var a Announcement
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAnnouncement, err)
	}

	id := strings.TrimSpace(a.Site.ID)
	if id == "" {
		return fmt.Errorf("%w: site id is required", ErrInvalidAnnouncement)
	}
	a.Site.ID = id

	switch strings.ToUpper(strings.TrimSpace(a.Event)) {
	case EventPut:
		if err := s.sink.UpsertSite(ctx, a.Site); err != nil {
			return fmt.Errorf("failed to upsert site %s: %w", id, err)
		}
		s.logger.Debug("site announced", logger.String("site", id))
	case EventDelete:
		if err := s.sink.RemoveSite(ctx, id); err != nil {
			return fmt.Errorf("failed to remove site %s: %w", id, err)
		}
		s.logger.Debug("site withdrawn", logger.String("site", id))
	default:
		return fmt.Errorf("%w: unknown event %q", ErrInvalidAnnouncement, a.Event)
	}
	return nil
}
