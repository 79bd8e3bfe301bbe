package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sgamolt/clawmarket/internal/model"
)

// CreateToken inserts a new API token and returns it.
func (db *DB) CreateToken(ctx context.Context, t model.Token) (model.Token, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	var scope any
	if t.Scope != nil {
		b, err := json.Marshal(t.Scope)
		if err != nil {
			return model.Token{}, fmt.Errorf("storage: encode token scope: %w", err)
		}
		scope = b
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO tokens (id, user_id, token, name, scope, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.UserID, t.Token, t.Name, scope, t.ExpiresAt, t.CreatedAt,
	)
	if err != nil {
		return model.Token{}, fmt.Errorf("storage: create token: %w", err)
	}
	return t, nil
}

// GetTokenByValue looks up a token by its opaque value.
func (db *DB) GetTokenByValue(ctx context.Context, value string) (model.Token, error) {
	var (
		t     model.Token
		scope []byte
	)
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, token, name, scope, expires_at, created_at
		 FROM tokens WHERE token = $1`, value,
	).Scan(&t.ID, &t.UserID, &t.Token, &t.Name, &scope, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Token{}, ErrNotFound
		}
		return model.Token{}, fmt.Errorf("storage: get token: %w", err)
	}
	if len(scope) > 0 {
		if err := json.Unmarshal(scope, &t.Scope); err != nil {
			return model.Token{}, fmt.Errorf("storage: decode token scope: %w", err)
		}
	}
	return t, nil
}

// ListTokensByUser returns a user's tokens, newest first.
func (db *DB) ListTokensByUser(ctx context.Context, userID uuid.UUID) ([]model.Token, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, token, name, scope, expires_at, created_at
		 FROM tokens WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []model.Token
	for rows.Next() {
		var (
			t     model.Token
			scope []byte
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.Name, &scope, &t.ExpiresAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan token: %w", err)
		}
		if len(scope) > 0 {
			if err := json.Unmarshal(scope, &t.Scope); err != nil {
				return nil, fmt.Errorf("storage: decode token scope: %w", err)
			}
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// DeleteToken removes a token owned by the given user.
func (db *DB) DeleteToken(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM tokens WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("storage: delete token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
