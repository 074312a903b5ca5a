package spc700

import (
	"fmt"
	"regexp"
	"strings"
)

var nonHexRe = regexp.MustCompile(`[^0-9A-Fa-f]`)

// HexToBytes converts a hex string (optionally containing spaces or
// other separators) into bytes. Returns an error on odd length.
func HexToBytes(s string) ([]byte, error) {
	clean := nonHexRe.ReplaceAllString(s, "")
	if len(clean)%2 != 0 {
		return nil, newErr(KindBadNumber, 0, "hex string has odd length: %d", len(clean))
	}
	out := make([]byte, len(clean)/2)
	for i := 0; i < len(out); i++ {
		hi, err := hexNibble(clean[i*2])
		if err != nil {
			return nil, err
		}
		lo, err := hexNibble(clean[i*2+1])
		if err != nil {
			return nil, err
		}
		out[i] = byte(hi<<4 | lo)
	}
	return out, nil
}

func hexNibble(c byte) (int, error) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), nil
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, nil
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, nil
	default:
		return 0, fmt.Errorf("bad hex digit %q", c)
	}
}

// BytesToHex renders bytes as unspaced (bytes_to_hexstr spaced=false) or
// space-separated uppercase hex.
func BytesToHex(b []byte, spaced bool) string {
	var sb strings.Builder
	for i, v := range b {
		if spaced && i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	return sb.String()
}
