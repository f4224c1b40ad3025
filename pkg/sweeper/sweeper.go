// Package sweeper deactivates expired cart sessions and evicts idle
// conversations on a cron schedule.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/shreyanshjain05/sparkthon/internal/observability"
	"github.com/shreyanshjain05/sparkthon/pkg/conversation"
	"github.com/shreyanshjain05/sparkthon/pkg/store"
)

const defaultConversationTTL = 24 * time.Hour

// Sweeper runs the expired-session cleanup on a schedule.
type Sweeper struct {
	store           *store.Store
	conversations   *conversation.Store
	conversationTTL time.Duration
	schedule        string
	cron            *cron.Cron
	logger          zerolog.Logger
}

// Config holds sweeper configuration
type Config struct {
	Store           *store.Store
	Conversations   *conversation.Store // optional; swept when set
	ConversationTTL time.Duration
	Schedule        string // standard 5-field cron expression
	Logger          zerolog.Logger
}

// New creates a sweeper. The schedule is validated up front.
func New(cfg Config) (*Sweeper, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 * * * *"
	}
	if cfg.ConversationTTL <= 0 {
		cfg.ConversationTTL = defaultConversationTTL
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule: %w", err)
	}

	return &Sweeper{
		store:           cfg.Store,
		conversations:   cfg.Conversations,
		conversationTTL: cfg.ConversationTTL,
		schedule:        cfg.Schedule,
		logger:          cfg.Logger,
	}, nil
}

// Start schedules the sweep and runs one immediately to catch sessions that
// expired while the service was down.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.SweepNow(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("Session sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info().Str("schedule", s.schedule).Msg("Session sweeper started")

	if _, err := s.SweepNow(context.Background()); err != nil {
		s.logger.Error().Err(err).Msg("Initial session sweep failed")
	}

	return nil
}

// Stop halts the schedule, waiting for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Session sweeper stopped")
}

// SweepNow deactivates every session past its expiry and returns the count.
// Conversations idle past their TTL are dropped in the same pass.
func (s *Sweeper) SweepNow(ctx context.Context) (int, error) {
	expired, err := s.store.ExpireSessions(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	if expired > 0 {
		observability.RecordSessionsExpired(expired)
		s.logger.Info().Int("expired", expired).Msg("Session sweep completed")
	}

	if s.conversations != nil {
		if evicted := s.conversations.EvictIdle(s.conversationTTL); evicted > 0 {
			s.logger.Info().Int("evicted", evicted).Msg("Idle conversation sweep completed")
		}
	}

	return expired, nil
}
