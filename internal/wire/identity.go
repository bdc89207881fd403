package wire

import (
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
	"unicode"
	"unicode/utf8"
)

// The ledger is not consistent about how it encodes identities across call
// sites: the same principal may arrive as a plain string, as an object that
// can render its own text, or as a raw byte array that has to be
// reconstructed. DecodePrincipal is the single place that handles all of
// them, so call sites never special-case wire shapes.

// Texter is implemented by wire values that carry their own textual identity.
type Texter interface {
	Text() string
}

// ErrUndecodableIdentity is returned when none of the decode strategies
// produced a usable identity string.
var ErrUndecodableIdentity = errors.New("undecodable identity")

// maxPrincipalLen bounds the raw byte form of a principal.
const maxPrincipalLen = 29

var principalEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// ResolvePrincipal reconstructs a canonical identity string from any wire
// encoding. It never fails: when every strategy is exhausted the raw value
// is stringified, so two encodings of the same identity always compare
// equal by value afterwards.
func ResolvePrincipal(raw any) string {
	s, err := DecodePrincipal(raw)
	if err != nil {
		return strings.TrimSpace(fmt.Sprintf("%v", raw))
	}
	return s
}

// DecodePrincipal attempts the ordered decode strategies and reports
// failure instead of falling back to stringification.
func DecodePrincipal(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", ErrUndecodableIdentity
	case string:
		return strings.TrimSpace(v), nil
	case Texter:
		return strings.TrimSpace(v.Text()), nil
	}
	if b, ok := bytesFromValue(raw); ok {
		if s, err := principalFromBytes(b); err == nil {
			return s, nil
		}
		if decoded, err := hex.DecodeString(strings.TrimSpace(string(b))); err == nil && len(decoded) > 0 {
			if s, err := principalFromBytes(decoded); err == nil {
				return s, nil
			}
		}
		if s, ok := textFromBytes(b); ok {
			return s, nil
		}
	}
	return "", ErrUndecodableIdentity
}

// PrincipalText renders the canonical textual form of a raw principal:
// a crc32 checksum prefix and the payload, base32 encoded lowercase and
// grouped in runs of five.
func PrincipalText(data []byte) string {
	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE(data))
	copy(buf[4:], data)
	enc := strings.ToLower(principalEncoding.EncodeToString(buf))
	var sb strings.Builder
	for i, r := range enc {
		if i > 0 && i%5 == 0 {
			sb.WriteByte('-')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func principalFromBytes(b []byte) (string, error) {
	if len(b) == 0 || len(b) > maxPrincipalLen {
		return "", fmt.Errorf("principal byte form of length %d", len(b))
	}
	return PrincipalText(b), nil
}

// textFromBytes treats the bytes as characters, accepting only printable
// UTF-8 so binary garbage does not masquerade as an identity.
func textFromBytes(b []byte) (string, bool) {
	if len(b) == 0 || !utf8.Valid(b) {
		return "", false
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if !unicode.IsGraphic(r) {
			return "", false
		}
	}
	return s, true
}

// bytesFromValue extracts a raw byte array from the wire shapes that carry
// one: []byte, a JSON number array, or an object keyed "bytes"/"_arr".
func bytesFromValue(raw any) ([]byte, bool) {
	switch v := raw.(type) {
	case []byte:
		return v, len(v) > 0
	case []any:
		return bytesFromSlice(v)
	case map[string]any:
		for _, key := range []string{"bytes", "_arr"} {
			if inner, ok := v[key]; ok {
				if b, ok := bytesFromValue(inner); ok {
					return b, true
				}
			}
		}
	}
	return nil, false
}

func bytesFromSlice(vals []any) ([]byte, bool) {
	if len(vals) == 0 {
		return nil, false
	}
	b := make([]byte, 0, len(vals))
	for _, v := range vals {
		switch n := v.(type) {
		case float64:
			if n != float64(byte(n)) {
				return nil, false
			}
			b = append(b, byte(n))
		case int:
			if n < 0 || n > 255 {
				return nil, false
			}
			b = append(b, byte(n))
		default:
			return nil, false
		}
	}
	return b, true
}
