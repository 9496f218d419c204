// Package domains holds helpers for the blocked and allowed domain lists.
package domains

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/miekg/dns"
)

var ErrInvalidDomain = errors.New("domains: invalid domain name")

// ParseImport turns pasted or uploaded text into domain entries: one per
// line, whitespace trimmed, blank lines and lines starting with "#" dropped.
// Order and duplicates are preserved.
func ParseImport(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if d, ok := entry(line); ok {
			out = append(out, d)
		}
	}
	return out
}

// ReadImport is ParseImport over a reader, for uploaded files.
func ReadImport(r io.Reader) ([]string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("domains: read import: %w", err)
	}
	return ParseImport(string(b)), nil
}

func entry(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", false
	}
	return line, true
}

// Filter keeps the items containing q, ignoring case. An empty query keeps
// everything.
func Filter(items []string, q string) []string {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return items
	}
	var out []string
	for _, it := range items {
		if strings.Contains(strings.ToLower(it), q) {
			out = append(out, it)
		}
	}
	return out
}

// Validate checks that d is a syntactically valid domain name and returns
// it lower-cased without a trailing dot.
func Validate(d string) (string, error) {
	d = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(d), "."))
	if d == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDomain)
	}
	if _, ok := dns.IsDomainName(d); !ok || strings.ContainsAny(d, " \t/\\@") {
		return "", fmt.Errorf("%w: %q", ErrInvalidDomain, d)
	}
	return d, nil
}

// Partition splits entries into valid (normalized) and rejected ones.
func Partition(entries []string) (valid, rejected []string) {
	for _, e := range entries {
		if d, err := Validate(e); err == nil {
			valid = append(valid, d)
		} else {
			rejected = append(rejected, e)
		}
	}
	return valid, rejected
}

// WriteText writes one domain per line.
func WriteText(w io.Writer, items []string) error {
	bw := bufio.NewWriter(w)
	for _, d := range items {
		if _, err := bw.WriteString(d + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
