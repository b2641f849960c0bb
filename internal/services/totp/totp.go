// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package totp generates per-user TOTP secrets and verifies submitted codes.
package totp

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"strconv"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// Period is the length of one TOTP time step.
	Period = 30
	// Skew is the number of steps accepted on either side of now.
	Skew = 1

	qrSize = 256
)

// Enrollment is the result of generating a new secret.
type Enrollment struct {
	Secret string // base32, persisted server-side only
	URL    string // otpauth:// URI
	QRCode string // data:image/png;base64 URL of the URI
}

// Engine issues and validates RFC 6238 codes.
type Engine struct {
	issuer string
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine that labels secrets with issuer.
func New(issuer string, opts ...Option) *Engine {
	e := &Engine{issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    Period,
		Skew:      Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Generate creates a fresh random secret for the user and its enrollment URI.
// The URI label embeds the issuer and the user ID.
func (e *Engine) Generate(userID int64) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: strconv.FormatInt(userID, 10),
		Period:      Period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return nil, fmt.Errorf("render totp qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode totp qr code: %w", err)
	}

	return &Enrollment{
		Secret: key.Secret(),
		URL:    key.URL(),
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// Validate reports whether code matches secret within one step of now.
func (e *Engine) Validate(code, secret string) bool {
	if code == "" || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, e.now().UTC(), validateOpts())
	return err == nil && ok
}

// Code returns the code for secret at t.
func (e *Engine) Code(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), validateOpts())
}
