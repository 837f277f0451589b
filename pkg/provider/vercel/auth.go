package vercel

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired is returned when an OIDC token's exp claim is in the past.
var ErrTokenExpired = errors.New("vercel OIDC token expired")

// OIDCClaims are the claims of a Vercel-issued OIDC token that identify the
// team and project the token is scoped to.
type OIDCClaims struct {
	OwnerID   string `json:"owner_id"`
	ProjectID string `json:"project_id"`
	jwtlib.RegisteredClaims
}

// ParseOIDCToken decodes a Vercel OIDC token without verifying its
// signature. The token is only forwarded to Vercel, which verifies it; the
// claims are read locally to derive the team and project scope.
func ParseOIDCToken(token string) (*OIDCClaims, error) {
	claims := &OIDCClaims{}
	parser := jwtlib.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse OIDC token: %w", err)
	}
	return claims, nil
}

// looksLikeJWT reports whether token has the three dot-separated segments
// of a compact JWS. Personal access tokens are opaque strings.
func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

// resolveScope fills teamID and projectID from the token claims when they
// are not set explicitly, and rejects expired OIDC tokens.
func resolveScope(token, teamID, projectID string, now time.Time) (string, string, error) {
	if token == "" {
		return "", "", errors.New("vercel token not set. Set VERCEL_TOKEN or VERCEL_OIDC_TOKEN")
	}

	if looksLikeJWT(token) {
		claims, err := ParseOIDCToken(token)
		if err != nil {
			return "", "", err
		}
		if claims.ExpiresAt != nil && !claims.ExpiresAt.After(now) {
			return "", "", fmt.Errorf("%w at %s", ErrTokenExpired, claims.ExpiresAt.Time.Format(time.RFC3339))
		}
		if teamID == "" {
			teamID = claims.OwnerID
		}
		if projectID == "" {
			projectID = claims.ProjectID
		}
	}

	if teamID == "" {
		return "", "", errors.New("VERCEL_TEAM_ID not set")
	}
	if projectID == "" {
		return "", "", errors.New("VERCEL_PROJECT_ID not set")
	}
	return teamID, projectID, nil
}
