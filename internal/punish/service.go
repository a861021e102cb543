package punish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"doggobot/internal/metrics"
	"doggobot/internal/storage"
	logx "doggobot/pkg/logx"
)

// ErrMalformedGroup is returned by Append when the target group exists but is
// not a JSON array. The group is left untouched.
var ErrMalformedGroup = errors.New("punishment group is not a list")

// Punishment describes a new event. Zero ids and empty strings are stored as null;
// an empty Reason becomes DefaultReason and a zero At becomes now.
type Punishment struct {
	ChatID    int64
	UserID    int64
	Username  string
	Moderator string
	Action    Action
	Reason    string
	At        time.Time
}

// Service is the punishment log API over a Store.
//
// Appends are serialized: load-modify-save runs under one mutex, so
// concurrent appends never lose each other. Reads do not take the lock.
type Service struct {
	store storage.Store
	log   logx.Logger
	loc   *time.Location
	now   func() time.Time

	mu sync.Mutex
}

type Option func(*Service)

// WithLocation sets the zone used for legacy timestamps and per-day buckets.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store storage.Store, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		store: store,
		log:   log.With(logx.String("comp", "punish")),
		loc:   time.Local,
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Location is the zone queries bucket dates in.
func (s *Service) Location() *time.Location { return s.loc }

// Now is the service clock.
func (s *Service) Now() time.Time { return s.now() }

func (s *Service) newEntry(p Punishment) Entry {
	at := p.At
	if at.IsZero() {
		at = s.now()
	}
	e := Entry{
		TS:        at.Unix(),
		Timestamp: at.In(s.loc).Format(LegacyTimeLayout),
		Action:    p.Action,
		Reason:    String(DefaultReason),
	}
	if p.ChatID != 0 {
		e.ChatID = Int64(p.ChatID)
	}
	if p.UserID != 0 {
		e.UserID = Int64(p.UserID)
	}
	if p.Username != "" {
		e.Username = String(p.Username)
	}
	if p.Moderator != "" {
		e.Moderator = String(p.Moderator)
	}
	if p.Reason != "" {
		e.Reason = String(p.Reason)
	}
	return e
}

// Append records p under its group key and persists the whole document.
func (s *Service) Append(ctx context.Context, p Punishment) (Entry, error) {
	e := s.newEntry(p)
	key := GroupKey(p.UserID, p.Username)

	start := time.Now()
	err := s.append(ctx, key, e)
	metrics.LogAppendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LogAppendsTotal.WithLabelValues(string(p.Action), "error").Inc()
		s.log.Error("append failed", logx.String("group", key), logx.String("action", string(p.Action)), logx.Err(err))
		return Entry{}, err
	}
	metrics.LogAppendsTotal.WithLabelValues(string(p.Action), "ok").Inc()
	s.log.Debug("appended", logx.String("group", key), logx.String("action", string(p.Action)), logx.Int64("ts", e.TS))
	return e, nil
}

func (s *Service) append(ctx context.Context, key string, e Entry) error {
	raw, err := e.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load punishments: %w", err)
	}
	var items []json.RawMessage
	if prev, ok := doc[key]; ok {
		if err := json.Unmarshal(prev, &items); err != nil {
			return fmt.Errorf("group %q: %w", key, ErrMalformedGroup)
		}
	}
	items = append(items, raw)
	group, err := marshalRaw(items)
	if err != nil {
		return fmt.Errorf("encode group: %w", err)
	}
	doc[key] = group
	if err := s.store.Save(ctx, doc); err != nil {
		return fmt.Errorf("save punishments: %w", err)
	}
	return nil
}

// Load reads, decodes and normalizes the whole log.
func (s *Service) Load(ctx context.Context) (Log, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	log, skipped := DecodeLog(doc)
	if skipped > 0 {
		metrics.LogSkippedRecords.Add(float64(skipped))
		s.log.Warn("skipped malformed records", logx.Int("count", skipped))
	}
	return normalizeAt(log, s.loc, s.now()), nil
}

// Export returns the persisted document bytes and whether one exists.
func (s *Service) Export(ctx context.Context) ([]byte, bool, error) {
	return s.store.Export(ctx)
}

func (s *Service) CountUserWarnings(ctx context.Context, chatID, userID int64, since time.Time) (int, error) {
	log, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	return log.CountUserWarnings(chatID, userID, since), nil
}

func (s *Service) TopWarned(ctx context.Context, q TopQuery) ([]LabelCount, error) {
	log, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return log.TopWarned(q), nil
}

func (s *Service) WarningsPerDay(ctx context.Context, q DailyQuery) ([]DayCount, error) {
	log, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return log.WarningsPerDay(q, s.loc), nil
}
