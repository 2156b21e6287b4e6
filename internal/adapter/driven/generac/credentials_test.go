package generac

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/sungazer/internal/domain/port/driven"
)

func encode(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestParseCredentials(t *testing.T) {
	tests := []struct {
		name      string
		encoded   string
		wantID    string
		wantToken string
		wantErr   bool
	}{
		{
			name:      "account id",
			encoded:   encode(`{"account_id":"a1","access_token":"tok"}`),
			wantID:    "a1",
			wantToken: "tok",
		},
		{
			name:      "numeric user id fallback",
			encoded:   encode(`{"user_id":4412,"access_token":"tok"}`),
			wantID:    "4412",
			wantToken: "tok",
		},
		{
			name:      "url-safe unpadded encoding",
			encoded:   base64.RawURLEncoding.EncodeToString([]byte(`{"account_id":"a1","access_token":"tok"}`)),
			wantID:    "a1",
			wantToken: "tok",
		},
		{
			name:    "missing account",
			encoded: encode(`{"access_token":"tok"}`),
			wantErr: true,
		},
		{
			name:    "missing token",
			encoded: encode(`{"account_id":"a1"}`),
			wantErr: true,
		},
		{
			name:    "not json",
			encoded: encode(`account=a1`),
			wantErr: true,
		},
		{
			name:    "not base64",
			encoded: "%%%",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := ParseCredentials(tt.encoded)
			if tt.wantErr {
				require.ErrorIs(t, err, driven.ErrAuth)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, creds.AccountID)
			assert.Equal(t, tt.wantToken, creds.AccessToken)
		})
	}
}

func TestCredentials_ExpiresAt(t *testing.T) {
	creds, err := ParseCredentials(encode(`{"account_id":"a1","access_token":"tok","expires_in":3600,"created_at":1772359200}`))
	require.NoError(t, err)

	require.NotNil(t, creds.ExpiresAt())
	assert.Equal(t, time.Unix(1772359200+3600, 0).UTC(), creds.ExpiresAt().UTC())

	creds.CreatedAt = nil
	assert.Nil(t, creds.ExpiresAt())
}

func TestCredentials_EncodeRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	in := Credentials{
		AccountID:    "fleet-9",
		AccessToken:  "tok",
		RefreshToken: "ref",
		ExpiresIn:    time.Hour,
		CreatedAt:    &created,
	}

	encoded, err := in.Encode()
	require.NoError(t, err)

	out, err := ParseCredentials(encoded)
	require.NoError(t, err)
	assert.Equal(t, in.AccountID, out.AccountID)
	assert.Equal(t, in.RefreshToken, out.RefreshToken)
	assert.Equal(t, created.Add(time.Hour), out.ExpiresAt().UTC())
}
