package utils

const hexDigits = "0123456789ABCDEF"

// HexBytes formats b as upper-case hex pairs joined by sep; a zero sep
// packs them. Used for debug logging of attribute payloads.
func HexBytes(b []byte, sep byte) string {
	if len(b) == 0 {
		return ""
	}
	n := len(b) * 2
	if sep != 0 {
		n += len(b) - 1
	}
	out := make([]byte, 0, n)
	for i, x := range b {
		if i > 0 && sep != 0 {
			out = append(out, sep)
		}
		out = append(out, hexDigits[x>>4], hexDigits[x&0x0F])
	}
	return string(out)
}
