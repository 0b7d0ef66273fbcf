package processor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// signatureExcluded fields never take part in a Bumper signature.
var signatureExcluded = map[string]bool{
	"SIGNATURE":           true,
	"PRODUCT_DESCRIPTION": true,
}

// CanonicalString builds the string Bumper signs: every field except the
// excluded ones as KEY=value&, ordered by upper-cased key.
func CanonicalString(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if signatureExcluded[strings.ToUpper(k)] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.ToUpper(keys[i]) < strings.ToUpper(keys[j])
	})

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(strings.ToUpper(k))
		b.WriteByte('=')
		b.WriteString(fields[k])
		b.WriteByte('&')
	}
	return b.String()
}

// Sign returns the hex HMAC-SHA256 of the canonical string.
func Sign(fields map[string]string, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(CanonicalString(fields)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCallback checks the signature carried by a partner redirect.
func VerifyCallback(params url.Values, secret string) bool {
	got := params.Get("signature")
	if got == "" || secret == "" {
		return false
	}
	fields := make(map[string]string, len(params))
	for k := range params {
		fields[k] = params.Get(k)
	}
	want := Sign(fields, secret)
	return hmac.Equal([]byte(strings.ToLower(got)), []byte(want))
}
