package utils

import (
	"net/url"
	"testing"
	"time"

	"PostPilotAPI/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("unit-test-signing-key")

func TestSignURLRoundTrip(t *testing.T) {
	signed := SignURL("http://localhost:8080/uploads/user-1/pic.jpg", testSigningKey, time.Hour)

	parsed, err := url.Parse(signed)
	require.NoError(t, err)

	token := parsed.Query().Get("token")
	expires := parsed.Query().Get("expires")
	require.NotEmpty(t, token)
	require.NotEmpty(t, expires)

	assert.True(t, ValidateSignedURL(parsed.Path, token, expires, testSigningKey))
}

func TestValidateSignedURLRejectsTampering(t *testing.T) {
	signed := SignURL("http://localhost:8080/uploads/user-1/pic.jpg", testSigningKey, time.Hour)
	parsed, err := url.Parse(signed)
	require.NoError(t, err)

	token := parsed.Query().Get("token")
	expires := parsed.Query().Get("expires")

	assert.False(t, ValidateSignedURL("/uploads/user-2/pic.jpg", token, expires, testSigningKey),
		"signature must bind to the path")
	assert.False(t, ValidateSignedURL(parsed.Path, token, "9999999999", testSigningKey),
		"signature must bind to the expiry")
	assert.False(t, ValidateSignedURL(parsed.Path, "forged", expires, testSigningKey))
	assert.False(t, ValidateSignedURL(parsed.Path, token, expires, []byte("other-key")))
}

func TestValidateSignedURLRejectsExpired(t *testing.T) {
	signed := SignURL("http://localhost:8080/uploads/user-1/pic.jpg", testSigningKey, -time.Minute)
	parsed, err := url.Parse(signed)
	require.NoError(t, err)

	assert.False(t, ValidateSignedURL(parsed.Path,
		parsed.Query().Get("token"), parsed.Query().Get("expires"), testSigningKey))
}

func TestSignMediaListDoesNotMutateOriginals(t *testing.T) {
	media := []*models.Media{
		{ID: "m1", URL: "http://localhost:8080/uploads/u/a.jpg"},
		{ID: "m2", URL: "http://localhost:8080/uploads/u/b.mp4", ThumbnailURL: "http://localhost:8080/uploads/u/b_thumb.jpg"},
	}

	signed := SignMediaList(media, testSigningKey, time.Hour)

	require.Len(t, signed, 2)
	assert.Contains(t, signed[0].URL, "token=")
	assert.Contains(t, signed[1].ThumbnailURL, "token=")

	assert.NotContains(t, media[0].URL, "token=")
	assert.NotContains(t, media[1].ThumbnailURL, "token=")
}
