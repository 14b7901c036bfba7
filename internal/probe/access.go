package probe

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Reason explains an access decision
type Reason string

const (
	ReasonKeyMatched  Reason = "key_matched"
	ReasonIPAllowed   Reason = "ip_allowed"
	ReasonKeyMismatch Reason = "key_mismatch"
	ReasonIPNotListed Reason = "ip_not_listed"
)

// Decision is the outcome of Authorize. Reason, IP and Key are for logs and
// metrics; callers only ever see the generic AccessDeniedError.
type Decision struct {
	Allowed bool
	Reason  Reason
	IP      string
	Key     string
}

// AccessDeniedError is returned to the caller when a probe is rejected
type AccessDeniedError struct {
	IP  string
	Key string
}

// FaultCode is the numeric fault code reported for denied probes
const FaultCode = 403

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("Access denied for this IP (%s) and probe key (%s).", e.IP, e.Key)
}

var lineBreaks = regexp.MustCompile(`\r\n|\r|\n`)

// Authorize decides whether a probe may proceed. A non-empty key equal to the
// trimmed configured key wins; otherwise the client IP must appear verbatim
// as a line of the allow-list. Every call is evaluated on its own: there is no
// rate limiting or lockout.
func Authorize(providedKey, clientIP, configuredKey, allowedIPs string) Decision {
	decision := Decision{IP: clientIP, Key: providedKey}

	if providedKey != "" && providedKey == strings.TrimSpace(configuredKey) {
		decision.Allowed = true
		decision.Reason = ReasonKeyMatched
		return decision
	}

	if slices.Contains(AllowedIPs(allowedIPs), clientIP) {
		decision.Allowed = true
		decision.Reason = ReasonIPAllowed
		return decision
	}

	if providedKey != "" {
		decision.Reason = ReasonKeyMismatch
	} else {
		decision.Reason = ReasonIPNotListed
	}
	return decision
}

// AllowedIPs splits a newline separated allow-list, dropping blank lines
func AllowedIPs(list string) []string {
	var ips []string
	for _, line := range lineBreaks.Split(list, -1) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ips = append(ips, line)
	}
	return ips
}

// Err returns the caller-facing error for a denied decision, nil otherwise
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &AccessDeniedError{IP: d.IP, Key: d.Key}
}
