package generac

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ericfisherdev/sungazer/internal/adapter/driven/vendorhttp"
	"github.com/ericfisherdev/sungazer/internal/domain/port/driven"
)

// Credentials is the decoded Generac credential bundle.
type Credentials struct {
	AccountID    string
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    time.Duration
	CreatedAt    *time.Time
}

type credentialsJSON struct {
	AccountID    vendorhttp.ID `json:"account_id"`
	UserID       vendorhttp.ID `json:"user_id"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    vendorhttp.ID `json:"expires_in"`
	CreatedAt    vendorhttp.ID `json:"created_at"`
}

// ParseCredentials decodes a base64-encoded JSON bundle. Older bundles carry
// the fleet ID as user_id rather than account_id; both are accepted.
func ParseCredentials(encoded string) (Credentials, error) {
	raw, err := decodeBase64(strings.TrimSpace(encoded))
	if err != nil {
		return Credentials{}, authError(fmt.Errorf("credential bundle is not base64: %w", err))
	}

	var cj credentialsJSON
	if err := json.Unmarshal(raw, &cj); err != nil {
		return Credentials{}, authError(fmt.Errorf("credential bundle is not JSON: %w", err))
	}

	creds := Credentials{
		AccountID:    cj.AccountID.String(),
		AccessToken:  cj.AccessToken,
		RefreshToken: cj.RefreshToken,
		TokenType:    cj.TokenType,
		CreatedAt:    vendorhttp.ParseTime(cj.CreatedAt.String(), nil),
	}
	if creds.AccountID == "" {
		creds.AccountID = cj.UserID.String()
	}
	if secs, err := strconv.ParseInt(cj.ExpiresIn.String(), 10, 64); err == nil && secs > 0 {
		creds.ExpiresIn = time.Duration(secs) * time.Second
	}

	if creds.AccountID == "" {
		return Credentials{}, authError(errors.New("credential bundle has no account_id"))
	}
	if creds.AccessToken == "" {
		return Credentials{}, authError(errors.New("credential bundle has no access_token"))
	}
	return creds, nil
}

// ExpiresAt returns when the access token lapses, or nil if unknown.
func (c Credentials) ExpiresAt() *time.Time {
	if c.CreatedAt == nil || c.ExpiresIn == 0 {
		return nil
	}
	t := c.CreatedAt.Add(c.ExpiresIn)
	return &t
}

// Encode produces the base64 bundle form of c.
func (c Credentials) Encode() (string, error) {
	cj := credentialsJSON{
		AccountID:    vendorhttp.ID(c.AccountID),
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
	}
	if c.ExpiresIn > 0 {
		cj.ExpiresIn = vendorhttp.ID(strconv.FormatInt(int64(c.ExpiresIn/time.Second), 10))
	}
	if c.CreatedAt != nil {
		cj.CreatedAt = vendorhttp.ID(c.CreatedAt.UTC().Format(time.RFC3339))
	}
	data, err := json.Marshal(cj)
	if err != nil {
		return "", fmt.Errorf("encoding credential bundle: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("illegal base64 data")
}

func authError(err error) error {
	return driven.NewError(driven.KindAuth, vendor, "authenticate", err)
}
