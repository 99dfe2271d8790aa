//go:build go1.18

package domain

import "testing"

// FuzzParsePetCode checks parsing never panics and valid codes round-trip.
func FuzzParsePetCode(f *testing.F) {
	f.Add("")
	f.Add("DOG12345")
	f.Add("dog12345")
	f.Add("CATLZ3K9Q1042")
	f.Add("'; DROP TABLE registry_entries;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		code, err := ParsePetCode(input)
		if err != nil {
			if code != "" {
				t.Errorf("error path returned non-empty code %q", code)
			}
			return
		}
		again, err := ParsePetCode(code.String())
		if err != nil {
			t.Errorf("valid code failed round-trip: %v", err)
		}
		if again != code {
			t.Errorf("round-trip changed code: %q != %q", again, code)
		}
	})
}
