package oidc

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInsecureVerifier(t *testing.T) {
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u1","email":"a@example.com"}`))
	tok, err := NewInsecureVerifier().Verify(context.Background(), "e30."+payload+".sig")
	require.NoError(t, err)

	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "u1", claims["sub"])
	require.Equal(t, "a@example.com", claims["email"])

	var typed struct {
		Sub string `json:"sub"`
	}
	require.NoError(t, tok.Claims(&typed))
	require.Equal(t, "u1", typed.Sub)
}

func TestInsecureVerifier_Malformed(t *testing.T) {
	v := NewInsecureVerifier()
	for _, raw := range []string{"", "nodots", "a.!!!.c", "a." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".c"} {
		_, err := v.Verify(context.Background(), raw)
		require.Error(t, err, raw)
	}
}

func TestInsecureVerifier_Expiry(t *testing.T) {
	v := NewInsecureVerifier()
	v.now = func() time.Time { return time.Unix(2000, 0) }

	stale := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u1","exp":1000}`))
	_, err := v.Verify(context.Background(), "e30."+stale+".sig")
	require.ErrorIs(t, err, ErrExpired)

	fresh := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u1","exp":3000}`))
	_, err = v.Verify(context.Background(), "e30."+fresh+".sig")
	require.NoError(t, err)
}

func TestIssuerURL(t *testing.T) {
	require.Equal(t, "http://kc:8080/realms/docs", IssuerURL("http://kc:8080/", "docs"))
}

func TestNewVerifier_DiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err := NewVerifier(context.Background(), srv.URL, "client")
	require.Error(t, err)
}
