package container

import (
	"fmt"
)

// LanguageUndetermined is the packed form of "und".
var LanguageUndetermined = mustPackLanguage("und")

func mustPackLanguage(s string) uint16 {
	v, err := PackLanguage(s)
	if err != nil {
		panic(err)
	}
	return v
}

// PackLanguage packs a ISO-639-2/T language code into 15 bits.
func PackLanguage(s string) (uint16, error) {
	if len(s) != 3 {
		return 0, fmt.Errorf("invalid language code '%s'", s)
	}

	var v uint16

	for i := 0; i < 3; i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c < 'a' || c > 'z' {
			return 0, fmt.Errorf("invalid language code '%s'", s)
		}
		v = v<<5 | uint16(c-0x60)
	}

	return v, nil
}

// UnpackLanguage unpacks a language code packed with PackLanguage.
func UnpackLanguage(v uint16) string {
	return string([]byte{
		byte((v>>10)&0x1F) + 0x60,
		byte((v>>5)&0x1F) + 0x60,
		byte(v&0x1F) + 0x60,
	})
}
