package wire

import (
	"strings"
	"testing"
)

type textual struct{ s string }

func (t textual) Text() string { return t.s }

func TestResolvePrincipalEquivalentEncodings(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	text := PrincipalText(raw)

	cases := []struct {
		name string
		in   any
	}{
		{"string", text},
		{"padded string", "  " + text + "  "},
		{"texter", textual{s: text}},
		{"byte slice", raw},
		{"number array", []any{float64(1), float64(2), float64(3), float64(4), float64(5)}},
		{"int array", []any{1, 2, 3, 4, 5}},
		{"bytes key", map[string]any{"bytes": []any{float64(1), float64(2), float64(3), float64(4), float64(5)}}},
		{"arr key", map[string]any{"_arr": raw}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolvePrincipal(tc.in); got != text {
				t.Fatalf("ResolvePrincipal(%v) = %q, want %q", tc.in, got, text)
			}
		})
	}
}

func TestPrincipalTextFormat(t *testing.T) {
	got := PrincipalText([]byte{0xab, 0xcd})
	if got != strings.ToLower(got) {
		t.Fatalf("principal text not lowercase: %q", got)
	}
	for i, group := range strings.Split(got, "-") {
		if len(group) > 5 {
			t.Fatalf("group %d of %q longer than 5", i, got)
		}
	}
	if PrincipalText([]byte{0xab, 0xcd}) != got {
		t.Fatalf("principal text not deterministic")
	}
}

func TestDecodePrincipalHexForm(t *testing.T) {
	// 32 hex characters exceed the raw length bound, so the bytes are
	// decoded as hex first.
	hexStr := strings.Repeat("ab", 16)
	want := PrincipalText([]byte{
		0xab, 0xab, 0xab, 0xab, 0xab, 0xab, 0xab, 0xab,
		0xab, 0xab, 0xab, 0xab, 0xab, 0xab, 0xab, 0xab,
	})
	got, err := DecodePrincipal([]byte(hexStr))
	if err != nil {
		t.Fatalf("DecodePrincipal: %v", err)
	}
	if got != want {
		t.Fatalf("hex form decoded to %q, want %q", got, want)
	}
}

func TestDecodePrincipalPrintableText(t *testing.T) {
	long := "this-identity-is-longer-than-the-byte-bound"
	got, err := DecodePrincipal([]byte(long))
	if err != nil {
		t.Fatalf("DecodePrincipal: %v", err)
	}
	if got != long {
		t.Fatalf("got %q, want %q", got, long)
	}
}

func TestDecodePrincipalRejectsGarbage(t *testing.T) {
	garbage := make([]byte, 40)
	for i := range garbage {
		garbage[i] = 0xff
	}
	if _, err := DecodePrincipal(garbage); err == nil {
		t.Fatal("expected error for invalid utf-8 over length bound")
	}
	if _, err := DecodePrincipal(nil); err == nil {
		t.Fatal("expected error for nil")
	}
	if _, err := DecodePrincipal(42.5); err == nil {
		t.Fatal("expected error for bare number")
	}
}

func TestResolvePrincipalNeverFails(t *testing.T) {
	if got := ResolvePrincipal(map[string]any{"weird": true}); got == "" {
		t.Fatal("expected stringified fallback, got empty")
	}
	if got := ResolvePrincipal(42); got != "42" {
		t.Fatalf("got %q, want %q", got, "42")
	}
}

func TestBytesFromSliceRejectsOutOfRange(t *testing.T) {
	if _, ok := bytesFromValue([]any{float64(300)}); ok {
		t.Fatal("accepted value above 255")
	}
	if _, ok := bytesFromValue([]any{-1}); ok {
		t.Fatal("accepted negative value")
	}
	if _, ok := bytesFromValue([]any{"a"}); ok {
		t.Fatal("accepted non-numeric element")
	}
}
