package settings

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/miekg/dns"

	"isotope/internal/form"
)

// Validate checks the values of a section before they are sent. Numeric
// fields are not checked here; unparsable numbers go out as the field's
// default.
func Validate(section string, v form.Values) error {
	switch section {
	case General:
		if d := strings.TrimSpace(v["dnsServerDomain"]); d != "" {
			if _, ok := dns.IsDomainName(d); !ok || strings.ContainsAny(d, " /") {
				return fmt.Errorf("DNS server domain %q is not a valid domain name", d)
			}
		}
	case TSIG:
		keys, err := ParseTSIGKeys(v["tsigKeys"])
		if err != nil {
			return err
		}
		var errs []error
		seen := map[string]bool{}
		for _, k := range keys {
			name := strings.ToLower(dns.Fqdn(k.KeyName))
			if seen[name] {
				errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateKey, k.KeyName))
			}
			seen[name] = true
			if !slices.Contains(TSIGAlgorithms, strings.ToLower(k.AlgorithmName)) {
				errs = append(errs, fmt.Errorf("%w: %q for key %s", ErrUnknownAlgorithm, k.AlgorithmName, k.KeyName))
			}
		}
		return errors.Join(errs...)
	}
	return nil
}
