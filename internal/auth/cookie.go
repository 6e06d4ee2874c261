// Package auth resolves WebSocket handshakes to users through the HTTP session
// cookie and serves the REST endpoints that create those sessions.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
)

// DefaultCookieName is the session cookie name used by the HTTP layer.
const DefaultCookieName = "travel.sid"

const signedPrefix = "s:"

// ParseCookieHeader splits a raw Cookie header into name/value pairs.
// Malformed pairs are skipped; nil is returned when nothing usable remains.
func ParseCookieHeader(raw string) map[string]string {
	var out map[string]string
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cookies, err := http.ParseCookie(part)
		if err != nil || len(cookies) != 1 {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		if _, seen := out[cookies[0].Name]; !seen {
			out[cookies[0].Name] = cookies[0].Value
		}
	}
	return out
}

// Sign produces the s:<value>.<signature> form used for session cookies.
func Sign(value, secret string) string {
	return signedPrefix + value + "." + signature(value, secret)
}

// Unsign verifies a cookie value produced by Sign and returns the inner value.
func Unsign(signed, secret string) (string, bool) {
	if !strings.HasPrefix(signed, signedPrefix) || secret == "" {
		return "", false
	}
	body := strings.TrimPrefix(signed, signedPrefix)
	dot := strings.LastIndexByte(body, '.')
	if dot <= 0 {
		return "", false
	}
	value, sig := body[:dot], body[dot+1:]
	if !hmac.Equal([]byte(sig), []byte(signature(value, secret))) {
		return "", false
	}
	return value, true
}

func signature(value, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(value))
	return base64.RawStdEncoding.EncodeToString(mac.Sum(nil))
}

// SessionIDFromCookie extracts the session id stored under name. When secret is
// set only signed values are accepted.
func SessionIDFromCookie(rawHeader, name, secret string) (string, bool) {
	value, ok := ParseCookieHeader(rawHeader)[name]
	if !ok || value == "" {
		return "", false
	}
	if decoded, err := url.PathUnescape(value); err == nil {
		value = decoded
	}

	if strings.HasPrefix(value, signedPrefix) {
		return Unsign(value, secret)
	}
	if secret != "" {
		return "", false
	}
	return value, true
}

// EncodeCookieValue returns the value to place in a Set-Cookie header for id.
func EncodeCookieValue(id, secret string) string {
	if secret == "" {
		return id
	}
	return url.QueryEscape(Sign(id, secret))
}
