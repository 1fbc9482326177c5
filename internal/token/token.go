// Package token issues and reads device access tokens. A token is an
// HS256 JWT carrying only the device id, so it can be regenerated from the
// id at any time and is never stored.
package token

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

var ErrInvalidToken = errors.New("invalid access token")

const deviceIDClaim = "device_id"

type Codec struct {
	secret []byte
	verify bool
}

// NewCodec returns a codec signing with secret. With verify=false the
// signature of incoming tokens is not checked, which lets anyone forge a
// device id; it exists only for devices provisioned by the legacy backend.
func NewCodec(secret string, verify bool) *Codec {
	if !verify {
		log.Warn().Msg("device token signature verification is DISABLED; any well-formed token is trusted")
	}
	return &Codec{secret: []byte(secret), verify: verify}
}

// Issue returns the token for a device. The same id always yields the
// same token.
func (c *Codec) Issue(deviceID int64) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{deviceIDClaim: deviceID})
	s, err := t.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign device token: %w", err)
	}
	return s, nil
}

// DeviceID extracts the device id from a token.
func (c *Codec) DeviceID(raw string) (int64, error) {
	claims := jwt.MapClaims{}

	if c.verify {
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return c.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		log.Warn().Msg("accepted device token without signature verification")
	}

	return deviceIDFrom(claims)
}

func deviceIDFrom(claims jwt.MapClaims) (int64, error) {
	switch v := claims[deviceIDClaim].(type) {
	case float64:
		if v != math.Trunc(v) || v < 1 {
			return 0, fmt.Errorf("%w: device_id %v is not a positive integer", ErrInvalidToken, v)
		}
		return int64(v), nil
	case nil:
		return 0, fmt.Errorf("%w: missing device_id claim", ErrInvalidToken)
	default:
		return 0, fmt.Errorf("%w: device_id has type %T", ErrInvalidToken, v)
	}
}
