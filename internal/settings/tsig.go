package settings

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/miekg/dns"

	"isotope/internal/model"
)

var (
	ErrInvalidKeyName   = errors.New("settings: invalid TSIG key name")
	ErrUnknownAlgorithm = errors.New("settings: unsupported TSIG algorithm")
	ErrDuplicateKey     = errors.New("settings: TSIG key already exists")
)

// TSIGAlgorithms lists the algorithms the DNS server accepts, in the
// server's spelling (no trailing dot).
var TSIGAlgorithms = []string{
	algo(dns.HmacMD5),
	algo(dns.HmacSHA1),
	algo(dns.HmacSHA256),
	"hmac-sha256-128",
	algo(dns.HmacSHA384),
	"hmac-sha384-192",
	algo(dns.HmacSHA512),
	"hmac-sha512-256",
}

// secretSize is the generated secret length per algorithm family, equal to
// the HMAC output size.
var secretSize = map[string]int{
	algo(dns.HmacMD5):    16,
	algo(dns.HmacSHA1):   20,
	algo(dns.HmacSHA256): 32,
	"hmac-sha256-128":    32,
	algo(dns.HmacSHA384): 48,
	"hmac-sha384-192":    48,
	algo(dns.HmacSHA512): 64,
	"hmac-sha512-256":    64,
}

func algo(fqdn string) string { return strings.TrimSuffix(fqdn, ".") }

// NewTSIGKey validates name and algorithm and generates a random secret
// when secret is empty.
func NewTSIGKey(name, algorithm, secret string) (model.TSIGKey, error) {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".")
	if _, ok := dns.IsDomainName(name); !ok || name == "" || strings.ContainsFunc(name, badKeyRune) {
		return model.TSIGKey{}, fmt.Errorf("%w: %q", ErrInvalidKeyName, name)
	}
	size, ok := secretSize[strings.ToLower(algorithm)]
	if !ok {
		return model.TSIGKey{}, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
	if secret == "" {
		b := make([]byte, size)
		if _, err := rand.Read(b); err != nil {
			return model.TSIGKey{}, fmt.Errorf("settings: generate TSIG secret: %w", err)
		}
		secret = base64.StdEncoding.EncodeToString(b)
	} else if _, err := base64.StdEncoding.DecodeString(secret); err != nil {
		return model.TSIGKey{}, fmt.Errorf("settings: TSIG secret must be base64: %w", err)
	}
	return model.TSIGKey{KeyName: name, SharedSecret: secret, AlgorithmName: strings.ToLower(algorithm)}, nil
}

// AddTSIGKey appends key to a tsigKeys field value.
func AddTSIGKey(field string, key model.TSIGKey) (string, error) {
	keys, err := ParseTSIGKeys(field)
	if err != nil {
		return "", err
	}
	for _, k := range keys {
		if sameKeyName(k.KeyName, key.KeyName) {
			return "", fmt.Errorf("%w: %s", ErrDuplicateKey, key.KeyName)
		}
	}
	return joinKeys(append(keys, key)), nil
}

// RemoveTSIGKey drops the named key. The bool is false if it was absent.
func RemoveTSIGKey(field, name string) (string, bool, error) {
	keys, err := ParseTSIGKeys(field)
	if err != nil {
		return "", false, err
	}
	out := keys[:0]
	found := false
	for _, k := range keys {
		if sameKeyName(k.KeyName, name) {
			found = true
			continue
		}
		out = append(out, k)
	}
	return joinKeys(out), found, nil
}

func joinKeys(keys []model.TSIGKey) string {
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = FormatTSIGKey(k)
	}
	return strings.Join(lines, "\n")
}

func badKeyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case r == '-', r == '_', r == '.':
		return false
	}
	return true
}

func sameKeyName(a, b string) bool {
	return strings.EqualFold(dns.Fqdn(a), dns.Fqdn(b))
}
