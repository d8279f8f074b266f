// Package device derives a stable fingerprint for the requesting
// device/browser/OS from the User-Agent header and compares it against the
// device claim carried inside issued tokens.
//
// A request without a User-Agent header hashes the sentinel "unknown" instead
// of being rejected. This is a deliberate soft-fail: headerless clients (curl,
// server-to-server callers) keep working, at the cost of making cross-device
// spoofing trivial for them. Known weakness, kept on purpose.
package device

import (
	"strings"

	ua "github.com/mileusna/useragent"

	"github.com/mkarimv/tokengate/internal"
)

const unknownDetails = "unknown"

// Details builds the readable device signature string that gets hashed into
// the token's device claim: "<device>, <browser>, <major.minor>, <os>, <major.minor>".
func Details(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return unknownDetails
	}

	parsed := ua.Parse(userAgent)

	deviceInfo := parsed.Device
	if deviceInfo == "" {
		deviceInfo = "Other"
	}
	browserInfo := parsed.Name + ", " + majorMinor(parsed.Version)
	osInfo := parsed.OS + ", " + majorMinor(parsed.OSVersion)

	return deviceInfo + ", " + browserInfo + ", " + osInfo
}

// FingerprintHash returns the base64 SHA-256 digest of Details(userAgent).
func FingerprintHash(userAgent string) string {
	return internal.Sha256Hash(Details(userAgent))
}

// Matches reports whether the live request fingerprint equals the device
// claim digest stored in a token at issuance time.
func Matches(userAgent, claimDigest string) bool {
	if claimDigest == "" {
		return false
	}
	return internal.DigestsEqual(FingerprintHash(userAgent), claimDigest)
}

func majorMinor(version string) string {
	parts := strings.Split(version, ".")
	switch len(parts) {
	case 0:
		return "0.0"
	case 1:
		if parts[0] == "" {
			return "0.0"
		}
		return parts[0] + ".0"
	default:
		return parts[0] + "." + parts[1]
	}
}
