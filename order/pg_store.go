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

package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"go.tevex.dev/storefront/pg"
)

type (
	// PGStore implements Store against PostgreSQL.
	PGStore struct {
		pg *pg.Client
	}
)

var _ Store = (*PGStore)(nil)

// NewPGStore creates a store over an existing database client. The
// schema is owned by the migrations directory.
func NewPGStore(pgClient *pg.Client) *PGStore {
	return &PGStore{pg: pgClient}
}

// Lookup implements Store.
func (s *PGStore) Lookup(ctx context.Context, number string) (Order, bool, error) {
	var (
		o     Order
		found bool
	)

	err := s.pg.WithConn(ctx, func(conn pg.Conn) error {
		q := `
SELECT number, customer_name, customer_email, customer_phone, status, total_cents, created_at
FROM orders
WHERE number = $1
`
		row := conn.QueryRow(ctx, q, number)
		err := row.Scan(
			&o.Number,
			&o.CustomerName,
			&o.CustomerEmail,
			&o.CustomerPhone,
			&o.Status,
			&o.TotalCents,
			&o.CreatedAt,
		)
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
		return Order{}, false, fmt.Errorf("cannot lookup order: %w", err)
	}

	return o, found, nil
}

// Create implements Store. Order numbers come from a database
// sequence so they are unique without coordination.
func (s *PGStore) Create(ctx context.Context, o *Order) error {
	err := s.pg.WithConn(ctx, func(conn pg.Conn) error {
		q := `
INSERT INTO orders (number, customer_name, customer_email, customer_phone, status, total_cents)
VALUES ('TVX-' || nextval('order_numbers'), $1, $2, $3, $4, $5)
RETURNING number, created_at
`
		row := conn.QueryRow(ctx, q,
			o.CustomerName,
			o.CustomerEmail,
			o.CustomerPhone,
			o.Status,
			o.TotalCents,
		)
		return row.Scan(&o.Number, &o.CreatedAt)
	})
	if err != nil {
		return fmt.Errorf("cannot create order: %w", err)
	}

	return nil
}

// Update implements Store with a single-row atomic write; COALESCE
// keeps unpatched columns.
func (s *PGStore) Update(ctx context.Context, number string, patch Patch) (bool, error) {
	var matched bool

	err := s.pg.WithConn(ctx, func(conn pg.Conn) error {
		q := `
UPDATE orders
SET status      = COALESCE($2, status),
    total_cents = COALESCE($3, total_cents),
    updated_at  = now()
WHERE number = $1
`
		tag, err := conn.Exec(ctx, q, number, patch.Status, patch.TotalCents)
		if err != nil {
			return err
		}

		matched = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("cannot update order: %w", err)
	}

	return matched, nil
}

// LookupPromoCode implements Store.
func (s *PGStore) LookupPromoCode(ctx context.Context, code string) (PromoCode, bool, error) {
	var (
		p     PromoCode
		found bool
	)

	err := s.pg.WithConn(ctx, func(conn pg.Conn) error {
		q := `SELECT code, percent_off, active FROM promo_codes WHERE code = $1`
		row := conn.QueryRow(ctx, q, code)
		err := row.Scan(&p.Code, &p.PercentOff, &p.Active)
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
		return PromoCode{}, false, fmt.Errorf("cannot lookup promo code: %w", err)
	}

	return p, found, nil
}
