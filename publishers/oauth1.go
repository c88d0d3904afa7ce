package publishers

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// OAuth1Config carries the consumer pair (app-level) and token pair
// (user-level) for OAuth 1.0a user-context requests.
type OAuth1Config struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// OAuth1Signer computes per-request OAuth 1.0a HMAC-SHA1 authorization
// headers. It holds no mutable state, so one signer can sign concurrent
// requests; nonce and clock are injectable for deterministic tests.
type OAuth1Signer struct {
	cfg   OAuth1Config
	nonce func() string
	clock func() time.Time
}

func NewOAuth1Signer(cfg OAuth1Config) *OAuth1Signer {
	return &OAuth1Signer{
		cfg:   cfg,
		nonce: randomNonce,
		clock: time.Now,
	}
}

// AuthorizationHeader signs method+rawURL and returns the OAuth header value.
// Query-string parameters on rawURL participate in the signature; extraParams
// covers form-encoded body parameters when a caller uses them. Multipart and
// JSON bodies are excluded from the base string per RFC 5849 §3.4.1.3.
func (s *OAuth1Signer) AuthorizationHeader(method, rawURL string, extraParams url.Values) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url for oauth1 signing: %w", err)
	}

	oauthParams := map[string]string{
		"oauth_consumer_key":     s.cfg.ConsumerKey,
		"oauth_nonce":            s.nonce(),
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(s.clock().Unix(), 10),
		"oauth_token":            s.cfg.AccessToken,
		"oauth_version":          "1.0",
	}

	// Collect every signed parameter: oauth_*, query string, body form.
	var pairs []string
	for k, v := range oauthParams {
		pairs = append(pairs, percentEncode(k)+"="+percentEncode(v))
	}
	for k, vs := range parsed.Query() {
		for _, v := range vs {
			pairs = append(pairs, percentEncode(k)+"="+percentEncode(v))
		}
	}
	for k, vs := range extraParams {
		for _, v := range vs {
			pairs = append(pairs, percentEncode(k)+"="+percentEncode(v))
		}
	}
	sort.Strings(pairs)
	paramString := strings.Join(pairs, "&")

	baseURL := parsed.Scheme + "://" + parsed.Host + parsed.EscapedPath()
	baseString := strings.ToUpper(method) + "&" + percentEncode(baseURL) + "&" + percentEncode(paramString)

	signingKey := percentEncode(s.cfg.ConsumerSecret) + "&" + percentEncode(s.cfg.AccessSecret)
	mac := hmac.New(sha1.New, []byte(signingKey))
	mac.Write([]byte(baseString))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	oauthParams["oauth_signature"] = signature

	keys := make([]string, 0, len(oauthParams))
	for k := range oauthParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var header strings.Builder
	header.WriteString("OAuth ")
	for i, k := range keys {
		if i > 0 {
			header.WriteString(", ")
		}
		header.WriteString(percentEncode(k))
		header.WriteString(`="`)
		header.WriteString(percentEncode(oauthParams[k]))
		header.WriteString(`"`)
	}

	return header.String(), nil
}

// percentEncode implements RFC 3986 encoding as required by OAuth 1.0a:
// unreserved characters pass through, everything else becomes uppercase %XX.
// url.QueryEscape is not usable here (it emits '+' for spaces).
func percentEncode(s string) string {
	var out strings.Builder
	for _, b := range []byte(s) {
		if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9') ||
			b == '-' || b == '.' || b == '_' || b == '~' {
			out.WriteByte(b)
		} else {
			out.WriteString(fmt.Sprintf("%%%02X", b))
		}
	}
	return out.String()
}

func randomNonce() string {
	buf := make([]byte, 16)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}
