package domain

import (
	"fmt"
	"io"
	"regexp"
)

const (
	licenseKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	licenseKeyGroups   = 4
	licenseKeyGroupLen = 4
)

var licenseKeyPattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// IsValidLicenseKey checks the XXXX-XXXX-XXXX-XXXX shape.
func IsValidLicenseKey(key string) bool {
	return licenseKeyPattern.MatchString(key)
}

// GenerateLicenseKey draws 16 symbols from rnd. Bytes at or above 252 are discarded so
// every symbol of the 36-letter alphabet is equally likely.
func GenerateLicenseKey(rnd io.Reader) (string, error) {
	const limit = 256 - 256%len(licenseKeyAlphabet)
	out := make([]byte, 0, licenseKeyGroups*licenseKeyGroupLen+licenseKeyGroups-1)
	buf := make([]byte, licenseKeyGroups*licenseKeyGroupLen)
	symbols := 0
	for symbols < licenseKeyGroups*licenseKeyGroupLen {
		if _, err := io.ReadFull(rnd, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			if symbols > 0 && symbols%licenseKeyGroupLen == 0 {
				out = append(out, '-')
			}
			out = append(out, licenseKeyAlphabet[int(b)%len(licenseKeyAlphabet)])
			symbols++
			if symbols == licenseKeyGroups*licenseKeyGroupLen {
				break
			}
		}
	}
	return string(out), nil
}
