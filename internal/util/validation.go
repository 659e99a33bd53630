package util

import (
	"net"
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	phoneRegex          = regexp.MustCompile(`^01[0-9]-?[0-9]{3,4}-?[0-9]{4}$`)
	businessNumberRegex = regexp.MustCompile(`^[0-9]{10,12}$`)
)

func IsValidPhone(s string) bool {
	return phoneRegex.MatchString(s)
}

func IsValidBusinessNumber(s string) bool {
	return businessNumberRegex.MatchString(s)
}

func IsValidEmail(s string) bool {
	if s == "" || strings.ContainsAny(s, " <>") {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// LengthBetween counts runes, not bytes.
func LengthBetween(s string, min, max int) bool {
	n := utf8.RuneCountInString(s)
	return n >= min && n <= max
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address without its port. The headers are client supplied, so the
// result is only fit for logs and audit records.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// PeerIP is the connection's remote address without its port. Behind
// TrustedRealIP it is the address the trusted proxy reported.
func PeerIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
