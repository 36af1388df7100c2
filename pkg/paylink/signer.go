package paylink

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMalformed = errors.New("malformed payment link token")
	ErrSignature = errors.New("invalid payment link signature")
	ErrExpired   = errors.New("payment link expired")
)

// Claims are the facts embedded in a payment link token.
type Claims struct {
	PaymentID string
	Reference string
	ExpiresAt time.Time
}

// Signer issues and verifies HMAC-signed payment link tokens of the form
// base64(paymentID).base64(reference).expiryUnix.signature.
type Signer struct {
	secret  []byte
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

// NewSigner constructs a signer with the provided secret and TTL.
func NewSigner(secret string, ttl time.Duration, baseURL string) *Signer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Signer{
		secret:  []byte(secret),
		ttl:     ttl,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// Issue returns a signed token for the payment along with its expiry.
func (s *Signer) Issue(paymentID, reference string) (string, time.Time, error) {
	if paymentID == "" || reference == "" {
		return "", time.Time{}, fmt.Errorf("payment id and reference required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().UTC().Add(s.ttl).Truncate(time.Second)
	body := strings.Join([]string{
		encode(paymentID),
		encode(reference),
		strconv.FormatInt(expiresAt.Unix(), 10),
	}, ".")
	return body + "." + s.sign(body), expiresAt, nil
}

// URL renders the public link for a token.
func (s *Signer) URL(token string) string {
	if s.baseURL == "" {
		return token
	}
	return s.baseURL + "/" + token
}

// Verify validates the signature and expiry of token.
func (s *Signer) Verify(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return nil, ErrMalformed
	}
	body := strings.Join(parts[:3], ".")
	if !hmac.Equal([]byte(s.sign(body)), []byte(parts[3])) {
		return nil, ErrSignature
	}

	paymentID, err := decode(parts[0])
	if err != nil {
		return nil, ErrMalformed
	}
	reference, err := decode(parts[1])
	if err != nil {
		return nil, ErrMalformed
	}
	expUnix, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, ErrMalformed
	}

	claims := &Claims{PaymentID: paymentID, Reference: reference, ExpiresAt: time.Unix(expUnix, 0).UTC()}
	if s.now().After(claims.ExpiresAt) {
		return nil, ErrExpired
	}
	return claims, nil
}

func (s *Signer) sign(body string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func encode(v string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(v))
}

func decode(v string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
