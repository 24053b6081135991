// Package auth issues and verifies the JWT tokens gating the daemon RPC.
package auth

import (
	"context"
	"crypto/rand"
	"io"

	"github.com/filecoin-project/go-jsonrpc/auth"
	"github.com/gbrlsnchs/jwt/v3"
	"golang.org/x/xerrors"

	"github.com/talentchain/go-walletd/lib/repo"
)

// RPC permission levels, least to most privileged.
var (
	PermRead  auth.Permission = "read"
	PermWrite auth.Permission = "write"
	PermSign  auth.Permission = "sign"
	PermAdmin auth.Permission = "admin"

	AllPermissions = []auth.Permission{PermRead, PermWrite, PermSign, PermAdmin}
)

var secretKey = []byte("auth/secret")

type jwtPayload struct {
	Allow []auth.Permission
}

// JwtAuth signs and verifies API tokens with a per-repo HMAC secret.
type JwtAuth struct {
	alg *jwt.HMACSHA
}

// NewJwtAuth loads the repo's API secret, generating one on first use.
func NewJwtAuth(r repo.Repo) (*JwtAuth, error) {
	ds := r.MetaStore()

	secret, err := ds.Get(secretKey)
	if err != nil || len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, secret); err != nil {
			return nil, xerrors.Errorf("generate api secret: %w", err)
		}
		if err := ds.Put(secretKey, secret); err != nil {
			return nil, xerrors.Errorf("persist api secret: %w", err)
		}
	}

	return &JwtAuth{alg: jwt.NewHS256(secret)}, nil
}

func (a *JwtAuth) AuthVerify(ctx context.Context, token string) ([]auth.Permission, error) {
	var payload jwtPayload
	if _, err := jwt.Verify([]byte(token), a.alg, &payload); err != nil {
		return nil, xerrors.Errorf("verify token: %w", err)
	}
	return payload.Allow, nil
}

func (a *JwtAuth) AuthNew(ctx context.Context, perms []auth.Permission) ([]byte, error) {
	return jwt.Sign(jwtPayload{Allow: perms}, a.alg)
}
