//go:build go1.18

package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseBackpackID tests that parsing never panics on arbitrary input
// and that accepted ids round-trip through String.
func FuzzParseBackpackID(f *testing.F) {
	f.Add("")
	f.Add("0")
	f.Add("1")
	f.Add("18446744073709551615")
	f.Add("18446744073709551616")
	f.Add("'; DROP TABLE ledger_items;--")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseBackpackID(input)
		if err != nil {
			return
		}
		if id.IsNil() {
			t.Error("zero id was accepted")
		}
		roundTrip, err := ParseBackpackID(id.String())
		if err != nil {
			t.Errorf("valid id failed round-trip: %v", err)
		}
		if roundTrip != id {
			t.Error("round-trip changed id value")
		}
	})
}

// FuzzParsePrincipal checks that accepted principals are trimmed, valid UTF-8 and idempotent.
func FuzzParsePrincipal(f *testing.F) {
	f.Add("")
	f.Add("0xA11CE")
	f.Add(" agent-7 ")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		p, err := ParsePrincipal(input)
		if err != nil {
			return
		}
		if !utf8.ValidString(p.String()) {
			t.Error("non-UTF8 principal was accepted")
		}
		again, err := ParsePrincipal(p.String())
		if err != nil || again != p {
			t.Errorf("parsing is not idempotent for %q", p)
		}
	})
}
