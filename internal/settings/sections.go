// Package settings declares the settings sections edited through the
// override-merged form pattern. Every section is a view over the same
// settings bundle returned by /api/settings/get.
package settings

import (
	"fmt"
	"strings"

	"isotope/internal/form"
	"isotope/internal/model"
)

// Section names, used in URLs.
const (
	General    = "general"
	Cache      = "cache"
	Logging    = "logging"
	Proxy      = "proxy"
	Recursion  = "recursion"
	TSIG       = "tsig"
	WebService = "webservice"
	Blocking   = "blocking"
)

// Order is the navigation order of the sections.
var Order = []string{General, WebService, Recursion, Proxy, Cache, Blocking, Logging, TSIG}

var sections = map[string]*form.Schema{
	General: {
		Name:  General,
		Title: "General",
		Fields: []form.Field{
			{Name: "dnsServerDomain", Label: "DNS Server Domain", Kind: form.String, Default: "localhost"},
			{Name: "dnsServerLocalEndPoints", Label: "DNS Server Local End Points", Kind: form.List, Default: "0.0.0.0:53\n[::]:53"},
			{Name: "defaultRecordTtl", Label: "Default Record TTL (seconds)", Kind: form.Int, Default: "3600"},
			{Name: "preferIPv6", Label: "Prefer IPv6", Kind: form.Bool, Default: "false"},
			{Name: "udpPayloadSize", Label: "UDP Payload Size", Kind: form.Int, Default: "1232"},
			{Name: "dnssecValidation", Label: "Enable DNSSEC Validation", Kind: form.Bool, Default: "true"},
			{Name: "eDnsClientSubnet", Label: "Enable EDNS Client Subnet", Kind: form.Bool, Default: "false"},
			{Name: "qpmLimitRequests", Label: "Queries Per Minute Limit (requests)", Kind: form.Int, Default: "0"},
			{Name: "qpmLimitErrors", Label: "Queries Per Minute Limit (errors)", Kind: form.Int, Default: "0"},
			{Name: "enableInMemoryStats", Label: "Enable In-Memory Stats", Kind: form.Bool, Default: "false"},
		},
	},
	WebService: {
		Name:  WebService,
		Title: "Web Service",
		Fields: []form.Field{
			{Name: "webServiceLocalAddresses", Label: "Local Addresses", Kind: form.List, Default: "0.0.0.0\n[::]"},
			{Name: "webServiceHttpPort", Label: "HTTP Port", Kind: form.Int, Default: "5380"},
			{Name: "webServiceEnableTls", Label: "Enable HTTPS", Kind: form.Bool, Default: "false"},
			{Name: "webServiceHttpToTlsRedirect", Label: "Redirect HTTP to HTTPS", Kind: form.Bool, Default: "false", When: tlsEnabled},
			{Name: "webServiceUseSelfSignedTlsCertificate", Label: "Use Self-Signed Certificate", Kind: form.Bool, Default: "false", When: tlsEnabled},
			{Name: "webServiceTlsPort", Label: "HTTPS Port", Kind: form.Int, Default: "53443", When: tlsEnabled},
			{Name: "webServiceTlsCertificatePath", Label: "TLS Certificate File Path", Kind: form.String, When: tlsEnabled},
			{Name: "webServiceTlsCertificatePassword", Label: "TLS Certificate Password", Kind: form.String, When: tlsEnabled},
		},
	},
	Recursion: {
		Name:  Recursion,
		Title: "Recursion",
		Fields: []form.Field{
			{Name: "recursion", Label: "Recursion", Kind: form.Choice, Default: "AllowOnlyForPrivateNetworks",
				Choices: []string{"Deny", "Allow", "AllowOnlyForPrivateNetworks", "UseSpecifiedNetworkACL"}},
			{Name: "recursionNetworkACL", Label: "Network ACL", Kind: form.List, When: equals("recursion", "UseSpecifiedNetworkACL")},
			{Name: "randomizeName", Label: "Randomize Name", Kind: form.Bool, Default: "true"},
			{Name: "qnameMinimization", Label: "QNAME Minimization", Kind: form.Bool, Default: "true"},
			{Name: "nsRevalidation", Label: "NS Revalidation", Kind: form.Bool, Default: "true"},
			{Name: "resolverRetries", Label: "Resolver Retries", Kind: form.Int, Default: "2"},
			{Name: "resolverTimeout", Label: "Resolver Timeout (ms)", Kind: form.Int, Default: "1500"},
			{Name: "resolverConcurrency", Label: "Resolver Concurrency", Kind: form.Int, Default: "2"},
			{Name: "resolverMaxStackCount", Label: "Resolver Max Stack Count", Kind: form.Int, Default: "16"},
		},
	},
	Proxy: {
		Name:  Proxy,
		Title: "Proxy & Forwarders",
		Fields: []form.Field{
			{Name: "proxyType", Path: "proxy.type", Label: "Proxy Type", Kind: form.Choice, Default: "None",
				Choices: []string{"None", "Http", "Socks5"}},
			{Name: "proxyAddress", Path: "proxy.address", Label: "Proxy Address", Kind: form.String, When: proxyEnabled},
			{Name: "proxyPort", Path: "proxy.port", Label: "Proxy Port", Kind: form.Int, Default: "8080", When: proxyEnabled},
			{Name: "proxyUsername", Path: "proxy.username", Label: "Proxy Username", Kind: form.String, When: proxyEnabled},
			{Name: "proxyPassword", Path: "proxy.password", Label: "Proxy Password", Kind: form.String, When: proxyEnabled},
			{Name: "proxyBypass", Path: "proxy.bypass", Label: "Bypass List", Kind: form.List, When: proxyEnabled},
			{Name: "forwarders", Label: "Forwarders", Kind: form.List, Empty: "false"},
			{Name: "forwarderProtocol", Label: "Forwarder Protocol", Kind: form.Choice, Default: "Udp",
				Choices: []string{"Udp", "Tcp", "Tls", "Https", "Quic"}},
			{Name: "concurrentForwarding", Label: "Concurrent Forwarding", Kind: form.Bool, Default: "true"},
			{Name: "forwarderRetries", Label: "Forwarder Retries", Kind: form.Int, Default: "3"},
			{Name: "forwarderTimeout", Label: "Forwarder Timeout (ms)", Kind: form.Int, Default: "2000"},
			{Name: "forwarderConcurrency", Label: "Forwarder Concurrency", Kind: form.Int, Default: "2"},
		},
	},
	Cache: {
		Name:  Cache,
		Title: "Cache",
		Fields: []form.Field{
			{Name: "saveCache", Label: "Save Cache To Disk", Kind: form.Bool, Default: "true"},
			{Name: "serveStale", Label: "Serve Stale", Kind: form.Bool, Default: "true"},
			{Name: "serveStaleTtl", Label: "Serve Stale TTL (seconds)", Kind: form.Int, Default: "259200", When: equals("serveStale", "true")},
			{Name: "cacheMaximumEntries", Label: "Maximum Entries", Kind: form.Int, Default: "10000"},
			{Name: "cacheMinimumRecordTtl", Label: "Minimum Record TTL", Kind: form.Int, Default: "10"},
			{Name: "cacheMaximumRecordTtl", Label: "Maximum Record TTL", Kind: form.Int, Default: "604800"},
			{Name: "cacheNegativeRecordTtl", Label: "Negative Record TTL", Kind: form.Int, Default: "300"},
			{Name: "cacheFailureRecordTtl", Label: "Failure Record TTL", Kind: form.Int, Default: "10"},
			{Name: "cachePrefetchEligibility", Label: "Prefetch Eligibility", Kind: form.Int, Default: "2"},
			{Name: "cachePrefetchTrigger", Label: "Prefetch Trigger", Kind: form.Int, Default: "9"},
			{Name: "cachePrefetchSampleIntervalInMinutes", Label: "Prefetch Sample Interval (minutes)", Kind: form.Int, Default: "5"},
			{Name: "cachePrefetchSampleEligibilityHitsPerHour", Label: "Prefetch Sample Eligibility (hits/hour)", Kind: form.Int, Default: "30"},
		},
	},
	Blocking: {
		Name:  Blocking,
		Title: "Blocking",
		Fields: []form.Field{
			{Name: "enableBlocking", Label: "Enable Blocking", Kind: form.Bool, Default: "true"},
			{Name: "allowTxtBlockingReport", Label: "Allow TXT Blocking Report", Kind: form.Bool, Default: "true"},
			{Name: "blockingType", Label: "Blocking Type", Kind: form.Choice, Default: "AnyAddress",
				Choices: []string{"AnyAddress", "NxDomain", "CustomAddress"}},
			{Name: "customBlockingAddresses", Label: "Custom Blocking Addresses", Kind: form.List,
				When: equals("blockingType", "CustomAddress")},
			{Name: "blockingAnswerTtl", Label: "Blocking Answer TTL", Kind: form.Int, Default: "30"},
			{Name: "blockListUrls", Label: "Block List URLs", Kind: form.List, Empty: "false"},
			{Name: "blockListUrlUpdateIntervalHours", Label: "Block List Update Interval (hours)", Kind: form.Int, Default: "24"},
		},
	},
	Logging: {
		Name:  Logging,
		Title: "Logging",
		Fields: []form.Field{
			{Name: "enableLogging", Label: "Enable Logging", Kind: form.Bool, Default: "true"},
			{Name: "logQueries", Label: "Log All Queries", Kind: form.Bool, Default: "false", When: equals("enableLogging", "true")},
			{Name: "useLocalTime", Label: "Use Local Time", Kind: form.Bool, Default: "false", When: equals("enableLogging", "true")},
			{Name: "logFolder", Label: "Log Folder", Kind: form.String, Default: "logs", When: equals("enableLogging", "true")},
			{Name: "maxLogFileDays", Label: "Max Log File Days", Kind: form.Int, Default: "0"},
			{Name: "maxStatFileDays", Label: "Max Stat File Days", Kind: form.Int, Default: "0"},
		},
	},
	TSIG: {
		Name:  TSIG,
		Title: "TSIG",
		Fields: []form.Field{
			{Name: "tsigKeys", Label: "TSIG Keys (name|secret|algorithm per line)", Kind: form.List, Sep: "|", Empty: "false",
				FromServer: tsigKeysFromServer},
		},
	},
}

// Section returns the schema for name.
func Section(name string) (*form.Schema, bool) {
	s, ok := sections[name]
	return s, ok
}

func tlsEnabled(v form.Values) bool { return v["webServiceEnableTls"] == "true" }

func proxyEnabled(v form.Values) bool { return v["proxyType"] != "" && v["proxyType"] != "None" }

func equals(field, want string) func(form.Values) bool {
	return func(v form.Values) bool { return v[field] == want }
}

func tsigKeysFromServer(v any) (string, bool) {
	list, ok := v.([]any)
	if !ok {
		return "", false
	}
	lines := make([]string, 0, len(list))
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["keyName"].(string)
		secret, _ := m["sharedSecret"].(string)
		algo, _ := m["algorithmName"].(string)
		lines = append(lines, FormatTSIGKey(model.TSIGKey{KeyName: name, SharedSecret: secret, AlgorithmName: algo}))
	}
	return strings.Join(lines, "\n"), true
}

// FormatTSIGKey renders a key as one line of the tsigKeys field. The wire
// format joins the same triples with "|".
func FormatTSIGKey(k model.TSIGKey) string {
	return k.KeyName + "|" + k.SharedSecret + "|" + k.AlgorithmName
}

// ParseTSIGKeys reads the tsigKeys field value back into keys.
func ParseTSIGKeys(v string) ([]model.TSIGKey, error) {
	var keys []model.TSIGKey
	for i, line := range form.Lines(v) {
		parts := strings.Split(line, "|")
		if len(parts) != 3 {
			return nil, fmt.Errorf("tsig key on line %d: want name|secret|algorithm", i+1)
		}
		keys = append(keys, model.TSIGKey{
			KeyName:       strings.TrimSpace(parts[0]),
			SharedSecret:  strings.TrimSpace(parts[1]),
			AlgorithmName: strings.TrimSpace(parts[2]),
		})
	}
	return keys, nil
}
