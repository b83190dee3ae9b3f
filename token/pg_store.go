// Copyright (c) 2024 Bryan Frimin <bryan@frimin.fr>.
//
// Permission to use, copy, modify, and/or distribute this software
// for any purpose with or without fee is hereby granted, provided
// that the above copyright notice and this permission notice appear
// in all copies.
//
// THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL
// WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED
// WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE
// AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR
// CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS
// OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT,
// NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN
// CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.

package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"go.tevex.dev/storefront/pg"
)

type (
	// PGStore implements Store against PostgreSQL. The consume
	// path relies on the database's single-row atomic update: the
	// check-unused-and-mark-used is one statement, so concurrent
	// consumers are linearized by the row lock.
	PGStore struct {
		pg *pg.Client
	}
)

var _ Store = (*PGStore)(nil)

// NewPGStore creates a store over an existing database client.
func NewPGStore(pgClient *pg.Client) *PGStore {
	return &PGStore{pg: pgClient}
}

// CreateSession implements Store.
func (s *PGStore) CreateSession(ctx context.Context, session TrackingSession) error {
	err := s.pg.WithConn(ctx, func(conn pg.Conn) error {
		q := `
INSERT INTO tracking_sessions (token, order_number, expires_at)
VALUES ($1, $2, $3)
`
		_, err := conn.Exec(ctx, q, session.Token, session.OrderNumber, session.ExpiresAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("cannot create tracking session: %w", err)
	}

	return nil
}

// GetSession implements Store.
func (s *PGStore) GetSession(ctx context.Context, tok string) (TrackingSession, bool, error) {
	var (
		session TrackingSession
		found   bool
	)

	err := s.pg.WithConn(ctx, func(conn pg.Conn) error {
		q := `SELECT token, order_number, expires_at FROM tracking_sessions WHERE token = $1`
		row := conn.QueryRow(ctx, q, tok)
		err := row.Scan(&session.Token, &session.OrderNumber, &session.ExpiresAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		found = true
		return nil
	})
	if err != nil {
		return TrackingSession{}, false, fmt.Errorf("cannot fetch tracking session: %w", err)
	}

	return session, found, nil
}

// CreateToken implements Store.
func (s *PGStore) CreateToken(ctx context.Context, t OneTimeToken) error {
	err := s.pg.WithConn(ctx, func(conn pg.Conn) error {
		q := `
INSERT INTO order_tokens (token, order_number, kind, used, created_at)
VALUES ($1, $2, $3, FALSE, $4)
`
		_, err := conn.Exec(ctx, q, t.Token, t.OrderNumber, t.Kind, t.CreatedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("cannot create %s token: %w", t.Kind, err)
	}

	return nil
}

// ConsumeToken implements Store. The WHERE used = FALSE guard makes
// the update a compare-and-set: of any number of concurrent calls,
// exactly one matches the row and flips it.
func (s *PGStore) ConsumeToken(ctx context.Context, tok string, kind Kind) (string, bool, error) {
	var (
		orderNumber string
		consumed    bool
	)

	err := s.pg.WithConn(ctx, func(conn pg.Conn) error {
		q := `
UPDATE order_tokens
SET used = TRUE, used_at = now()
WHERE token = $1 AND kind = $2 AND used = FALSE
RETURNING order_number
`
		row := conn.QueryRow(ctx, q, tok, kind)
		err := row.Scan(&orderNumber)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		consumed = true
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("cannot consume token: %w", err)
	}

	return orderNumber, consumed, nil
}
