// Package signal classifies recovered configuration values by what they
// tell an analyst: network indicators, key material, persistence hints.
package signal

import (
	"math"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// Categories for value classification.
const (
	CatURL         = "url"
	CatHost        = "host"
	CatPort        = "port"
	CatEncryption  = "encryption"
	CatBase64Key   = "base64"
	CatCertificate = "certificate"
	CatPersistence = "persistence" // startup folders, run keys, scheduled tasks
	CatDeadDrop    = "deaddrop"    // paste sites and other indirect C2 lookups
	CatMessenger   = "messenger"   // Telegram / Discord bot channels
	CatFileExt     = "file"
)

var (
	reURL       = regexp.MustCompile(`(?i)(https?|wss?|ftp|tcp)://`)
	reIPLiteral = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	reBase64    = regexp.MustCompile(`^[A-Za-z0-9+/=]{16,}$`)
	reHexKey    = regexp.MustCompile(`^(?i)[0-9a-f]{32,}$`)

	// Domains need a dotted label and a plausible TLD. Bare words like
	// "Default" or version strings do not qualify.
	reDomain = regexp.MustCompile(`(?i)^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,24}(:\d{1,5})?$`)

	// Short crypto words need word-boundary matching ("aes" in "caesar").
	reCryptoShort = regexp.MustCompile(`(?i)(^|[^a-zA-Z])(aes|rsa|hmac|sha1|sha256|md5|cbc|ecb|pkcs|xor|rc4|3des|salt|iv)([^a-zA-Z]|$)`)

	cryptoKeywords = []string{
		"encrypt", "decrypt", "cipher", "pbkdf", "rfc2898", "serversignature",
	}

	persistenceKeywords = []string{
		`currentversion\run`, "schtasks", "startupfolder", "startmenu\\programs\\startup",
		"%appdata%", "%temp%", "%localappdata%", "applicationdata", "localapplicationdata",
		"startup", "regkey",
	}

	deadDropHosts = []string{
		"pastebin.com", "paste.ee", "hastebin", "ghostbin", "rentry.co",
		"raw.githubusercontent.com", "gist.githubusercontent.com", "textbin",
	}

	messengerMarkers = []string{
		"api.telegram.org", "t.me/", "discord.com/api/webhooks", "discordapp.com/api/webhooks",
	}

	signalExtensions = []string{
		".exe", ".dll", ".bat", ".cmd", ".vbs", ".ps1", ".scr", ".lnk", ".js", ".hta",
	}
)

// ClassifyString returns the set of categories matching value, or nil.
func ClassifyString(value string) []string {
	value = strings.TrimSpace(value)
	if len(value) < 2 || value == "null" || value == "false" || value == "true" {
		return nil
	}

	var cats []string
	lower := strings.ToLower(value)

	if reURL.MatchString(value) {
		cats = append(cats, CatURL)
	}
	if reIPLiteral.MatchString(value) || isDomain(value) {
		cats = append(cats, CatHost)
	}
	if isPortList(value) {
		cats = append(cats, CatPort)
	}
	if containsKeyword(value, cryptoKeywords) || reCryptoShort.MatchString(value) {
		cats = append(cats, CatEncryption)
	}
	if (strings.HasPrefix(value, "MII") && reBase64.MatchString(value)) || strings.Contains(value, "-----BEGIN CERTIFICATE") {
		cats = append(cats, CatCertificate)
	} else if (reBase64.MatchString(value) && entropy(value) > 3.5 && !isCamelCase(value)) || reHexKey.MatchString(value) {
		cats = append(cats, CatBase64Key)
	}
	for _, kw := range persistenceKeywords {
		if strings.Contains(lower, kw) {
			cats = append(cats, CatPersistence)
			break
		}
	}
	for _, h := range deadDropHosts {
		if strings.Contains(lower, h) {
			cats = append(cats, CatDeadDrop)
			break
		}
	}
	for _, m := range messengerMarkers {
		if strings.Contains(lower, m) {
			cats = append(cats, CatMessenger)
			break
		}
	}
	for _, ext := range signalExtensions {
		if strings.HasSuffix(lower, ext) {
			cats = append(cats, CatFileExt)
			break
		}
	}
	return cats
}

func isDomain(s string) bool {
	if !reDomain.MatchString(s) {
		return false
	}
	host := s
	if h, _, err := net.SplitHostPort(s); err == nil {
		host = h
	}
	// "Client.exe" has the shape of a domain.
	for _, ext := range signalExtensions {
		if strings.HasSuffix(strings.ToLower(host), ext) {
			return false
		}
	}
	return true
}

// isPortList matches "4449", "6606,7707" or "6606;7707" with every part a
// valid TCP port.
func isPortList(s string) bool {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	if len(parts) == 0 {
		return false
	}
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 || n > 65535 {
			return false
		}
	}
	return true
}

// Severity levels for categories.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// CategorySeverity returns the severity level for a category.
func CategorySeverity(cat string) string {
	switch cat {
	case CatURL, CatHost, CatDeadDrop, CatMessenger:
		return SeverityHigh
	case CatEncryption, CatBase64Key, CatCertificate, CatPort, CatPersistence:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// MaxSeverity returns the highest severity from a list of categories.
func MaxSeverity(categories []string) string {
	best := ""
	for _, c := range categories {
		s := CategorySeverity(c)
		if s == SeverityHigh {
			return SeverityHigh
		}
		if s == SeverityMedium {
			best = SeverityMedium
		} else if best == "" {
			best = SeverityLow
		}
	}
	if best == "" {
		return SeverityLow
	}
	return best
}

// isCamelCase reports an identifier made only of letters with a
// lowercase-to-uppercase transition ("InstallFolder"). Random base64 almost
// always carries digits or padding and is not matched.
func isCamelCase(s string) bool {
	camel := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
		if i > 0 && s[i-1] >= 'a' && s[i-1] <= 'z' && c >= 'A' && c <= 'Z' {
			camel = true
		}
	}
	return camel
}

// normalizeForMatch lowercases s and drops _ - space and dot, so
// "Server_Signature" matches "serversignature".
func normalizeForMatch(s string) string {
	lower := strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c != '_' && c != '-' && c != ' ' && c != '.' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func containsKeyword(value string, keywords []string) bool {
	norm := normalizeForMatch(value)
	for _, kw := range keywords {
		if strings.Contains(norm, kw) {
			return true
		}
	}
	return false
}

func containsCat(cats []string, cat string) bool {
	for _, c := range cats {
		if c == cat {
			return true
		}
	}
	return false
}

// entropy computes Shannon entropy of a string in bits per character.
func entropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[byte]int)
	for i := 0; i < len(s); i++ {
		freq[s[i]]++
	}
	n := float64(len(s))
	var ent float64
	for _, count := range freq {
		p := float64(count) / n
		if p > 0 {
			ent -= p * math.Log2(p)
		}
	}
	return ent
}
