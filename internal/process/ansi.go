package process

import "regexp"

var (
	ansiCSI     = regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]`)
	ansiOSC     = regexp.MustCompile(`\x1b\].*?(?:\x07|\x1b\\)`)
	ansiString  = regexp.MustCompile(`\x1b[P^_k].*?\x1b\\`)
	ansiCharset = regexp.MustCompile(`\x1b[()][0-9A-Za-z]`)
	ansiSingle  = regexp.MustCompile(`\x1b.`)
)

// cleanLine removes terminal escape sequences and control bytes from one
// line of viewer output. Backspace erases the previous byte, carriage
// returns are dropped, tabs survive.
func cleanLine(s string) string {
	s = ansiCSI.ReplaceAllString(s, "")
	s = ansiOSC.ReplaceAllString(s, "")
	s = ansiString.ReplaceAllString(s, "")
	s = ansiCharset.ReplaceAllString(s, "")
	s = ansiSingle.ReplaceAllString(s, "")

	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '\b':
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		case ch == '\t':
			out = append(out, ch)
		case ch < 0x20 || ch == 0x7f:
		default:
			out = append(out, ch)
		}
	}
	return string(out)
}
