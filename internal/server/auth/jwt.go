// Package auth issues and verifies the two HS256 token kinds the server
// accepts: long-lived session tokens and short-lived, file-scoped media tokens.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/dmitrijs2005/vaultbox/internal/common"
	"github.com/dmitrijs2005/vaultbox/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

const (
	AudienceSession = "session"
	AudienceMedia   = "media"
)

// Claims carries the authenticated subject and, for media tokens, the single
// file the token is good for. The id/username/email names match the tokens
// minted by the login service, which signs with the same secret.
type Claims struct {
	jwt.RegisteredClaims
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FileID   int64  `json:"fileId,omitempty"`
}

// User returns the subject carried by the claims.
func (c *Claims) User() models.User {
	return models.User{ID: c.UserID, Username: c.Username, Email: c.Email}
}

// Issuer signs and verifies tokens with one shared secret. Audiences keep a
// media token from being accepted as a session token and vice versa.
type Issuer struct {
	secret     []byte
	sessionTTL time.Duration
	mediaTTL   time.Duration
	now        func() time.Time
}

func NewIssuer(secret []byte, sessionTTL, mediaTTL time.Duration) *Issuer {
	return &Issuer{secret: secret, sessionTTL: sessionTTL, mediaTTL: mediaTTL, now: time.Now}
}

// IssueSession mints a session token for u.
func (i *Issuer) IssueSession(u models.User) (string, error) {
	token, _, err := i.issue(u, 0, AudienceSession, i.sessionTTL)
	return token, err
}

// IssueMedia mints a token that only unlocks fileID and expires after the
// media TTL.
func (i *Issuer) IssueMedia(u models.User, fileID int64) (string, time.Time, error) {
	return i.issue(u, fileID, AudienceMedia, i.mediaTTL)
}

func (i *Issuer) issue(u models.User, fileID int64, audience string, ttl time.Duration) (string, time.Time, error) {
	now := i.now()
	expires := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		UserID:   u.ID,
		Username: u.Username,
		Email:    u.Email,
		FileID:   fileID,
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// VerifySession validates a session token. Tokens from the login service
// carry no audience, so any audience is accepted except the media one, and a
// token scoped to a file never passes as a session.
func (i *Issuer) VerifySession(tokenString string) (*Claims, error) {
	claims, err := i.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if slices.Contains(claims.Audience, AudienceMedia) || claims.FileID != 0 {
		return nil, fmt.Errorf("%w: media token used as session", common.ErrInvalidToken)
	}
	return claims, nil
}

// VerifyMedia validates a media token and requires it to have been minted for
// fileID. A valid token for another file is rejected.
func (i *Issuer) VerifyMedia(tokenString string, fileID int64) (*Claims, error) {
	claims, err := i.parse(tokenString, jwt.WithAudience(AudienceMedia))
	if err != nil {
		return nil, err
	}
	if claims.FileID != fileID {
		return nil, common.ErrTokenFileMismatch
	}
	return claims, nil
}

func (i *Issuer) parse(tokenString string, opts ...jwt.ParserOption) (*Claims, error) {
	if tokenString == "" {
		return nil, common.ErrAuthRequired
	}

	parser := jwt.NewParser(append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}, opts...)...)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, common.ErrTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	case !token.Valid:
		return nil, common.ErrInvalidToken
	case claims.UserID <= 0:
		return nil, fmt.Errorf("%w: missing user id", common.ErrInvalidToken)
	}
	return claims, nil
}
