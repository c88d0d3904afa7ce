package publishers

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Reference request from the X developer documentation on creating OAuth 1.0a
// signatures. The fixed nonce and timestamp reproduce the documented
// signature exactly.
func TestAuthorizationHeaderMatchesReferenceSignature(t *testing.T) {
	signer := NewOAuth1Signer(OAuth1Config{
		ConsumerKey:    "xvz1evFS4wEEPTGEFPHBog",
		ConsumerSecret: "kAcSOqF21Fu85e7zjz7ZN2U4ZRhfV3WpwPAoE3Z7kBw",
		AccessToken:    "370773112-GmHxMAgYyLbNEtIKZeRNFsMKPR9EyMZeS9weJAEb",
		AccessSecret:   "LswwdoUaIvS8ltyTt5jkRh4J50vUPVVHtR2YPi5kE",
	})
	signer.nonce = func() string { return "kYjzVBB8Y0ZFabxSWbWovY3uYSQ2pTgmZeNu2VS4cg" }
	signer.clock = func() time.Time { return time.Unix(1318622958, 0) }

	header, err := signer.AuthorizationHeader(
		"POST",
		"https://api.twitter.com/1.1/statuses/update.json?include_entities=true",
		url.Values{"status": {"Hello Ladies + Gentlemen, a signed OAuth request!"}},
	)
	require.NoError(t, err)

	assert.Contains(t, header, `oauth_signature="tnnArxj06cWHq44gCs1OSKk%2FjLY%3D"`)
	assert.Contains(t, header, `oauth_consumer_key="xvz1evFS4wEEPTGEFPHBog"`)
	assert.Contains(t, header, `oauth_signature_method="HMAC-SHA1"`)
	assert.Contains(t, header, `oauth_version="1.0"`)
	assert.True(t, len(header) > 6 && header[:6] == "OAuth ")
}

func TestAuthorizationHeaderVariesWithNonce(t *testing.T) {
	signer := NewOAuth1Signer(OAuth1Config{
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		AccessToken:    "tok",
		AccessSecret:   "ts",
	})

	first, err := signer.AuthorizationHeader("GET", "https://upload.twitter.com/1.1/media/upload.json?command=STATUS&media_id=1", nil)
	require.NoError(t, err)
	second, err := signer.AuthorizationHeader("GET", "https://upload.twitter.com/1.1/media/upload.json?command=STATUS&media_id=1", nil)
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "fresh nonce per request")
}

func TestPercentEncode(t *testing.T) {
	assert.Equal(t, "Ladies%20%2B%20Gentlemen", percentEncode("Ladies + Gentlemen"))
	assert.Equal(t, "An%20encoded%20string%21", percentEncode("An encoded string!"))
	assert.Equal(t, "Dogs%2C%20Cats%20%26%20Mice", percentEncode("Dogs, Cats & Mice"))
	assert.Equal(t, "%E2%98%83", percentEncode("☃"))
	assert.Equal(t, "abcXYZ019-._~", percentEncode("abcXYZ019-._~"))
}
