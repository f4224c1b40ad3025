package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateSession creates a new cart session for the user with the given TTL.
// Session ids follow the session_<user>_<timestamp> convention.
func (s *Store) CreateSession(ctx context.Context, userID, sessionType string, ttl time.Duration) (*CartSession, error) {
	if sessionType == "" {
		sessionType = "recipe_based"
	}

	now := time.Now()
	session := &CartSession{
		UserID:      userID,
		SessionID:   fmt.Sprintf("session_%s_%s", userID, now.Format("20060102150405")),
		SessionType: sessionType,
		Active:      true,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cart_sessions (user_id, session_id, session_type, active, created_at, expires_at, metadata)
		VALUES (?, ?, ?, 1, ?, ?, ?)`,
		session.UserID, session.SessionID, session.SessionType,
		session.CreatedAt, session.ExpiresAt, `{"created_from": "recipe_assistant"}`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart session: %w", err)
	}

	session.ID, _ = res.LastInsertId()
	s.logger.Debug().Str("session_id", session.SessionID).Str("user_id", userID).Msg("Cart session created")

	return session, nil
}

// GetSession fetches a cart session by its session id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*CartSession, error) {
	var session CartSession
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, session_id, session_type, active, created_at, expires_at
		FROM cart_sessions WHERE session_id = ?`, sessionID,
	).Scan(
		&session.ID, &session.UserID, &session.SessionID, &session.SessionType,
		&session.Active, &session.CreatedAt, &session.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cart session: %w", err)
	}

	return &session, nil
}

// validateSession checks that the session exists, is active and has not expired.
func (s *Store) validateSession(ctx context.Context, sessionID string) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Active || session.Expired(time.Now()) {
		return ErrSessionInactive
	}
	return nil
}

// ExpireSessions deactivates every active session whose expiry is before now.
// Sessions with a future expiry are untouched. Returns the number expired.
func (s *Store) ExpireSessions(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE cart_sessions SET active = 0 WHERE active = 1 AND expires_at < ?", now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire sessions: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired sessions: %w", err)
	}

	if n > 0 {
		s.logger.Info().Int64("count", n).Msg("Expired cart sessions deactivated")
	}

	return int(n), nil
}
