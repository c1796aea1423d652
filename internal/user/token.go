package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// ErrNoToken is returned when the user has not connected Spotify.
var ErrNoToken = errors.New("no spotify token stored")

// SaveToken stores tok for userID, sealing the secrets. An empty refresh
// token keeps the one already stored, since refresh responses often omit it.
func (s *Service) SaveToken(ctx context.Context, userID string, tok *oauth2.Token) error {
	access, err := s.enc.Encrypt(tok.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypting access token: %w", err)
	}
	refresh := ""
	if tok.RefreshToken != "" {
		if refresh, err = s.enc.Encrypt(tok.RefreshToken); err != nil {
			return fmt.Errorf("encrypting refresh token: %w", err)
		}
	}
	expiry := ""
	if !tok.Expiry.IsZero() {
		expiry = tok.Expiry.UTC().Format(time.RFC3339)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO spotify_tokens (user_id, access_token, refresh_token, token_type, expiry, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token = '' THEN spotify_tokens.refresh_token ELSE excluded.refresh_token END,
			token_type = excluded.token_type,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at
	`, userID, access, refresh, tok.TokenType, expiry, s.now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	return nil
}

// Token returns the stored Spotify token for userID.
func (s *Service) Token(ctx context.Context, userID string) (*oauth2.Token, error) {
	var access, refresh, tokenType, expiry string
	err := s.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, token_type, expiry FROM spotify_tokens WHERE user_id = ?
	`, userID).Scan(&access, &refresh, &tokenType, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("querying token: %w", err)
	}

	tok := &oauth2.Token{TokenType: tokenType}
	if tok.AccessToken, err = s.enc.Decrypt(access); err != nil {
		return nil, fmt.Errorf("decrypting access token: %w", err)
	}
	if refresh != "" {
		if tok.RefreshToken, err = s.enc.Decrypt(refresh); err != nil {
			return nil, fmt.Errorf("decrypting refresh token: %w", err)
		}
	}
	if expiry != "" {
		tok.Expiry, _ = time.Parse(time.RFC3339, expiry)
	}
	return tok, nil
}
