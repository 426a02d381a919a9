package tagging

import (
	"encoding/binary"
	"strings"

	"lrcforge/internal/lrc"
)

const (
	syltEncodingUTF8   = 0x03
	syltFormatMillis   = 0x02
	syltContentLyrics  = 0x01
	undeterminedLocale = "und"
)

// LanguageCode returns a three-letter ID3 language code, falling back to "und".
func LanguageCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if len(code) != 3 {
		return undeterminedLocale
	}
	return code
}

// SYLTBody encodes a synchronised lyrics frame body: text encoding, language,
// millisecond timestamps, lyrics content type, an empty descriptor, then each
// line as NUL-terminated text followed by a big-endian uint32 offset.
func SYLTBody(language string, lines []lrc.Line) []byte {
	body := make([]byte, 0, 7+len(lines)*16)
	body = append(body, syltEncodingUTF8)
	body = append(body, LanguageCode(language)...)
	body = append(body, syltFormatMillis, syltContentLyrics)
	body = append(body, 0)
	for _, line := range lines {
		body = append(body, line.Text...)
		body = append(body, 0)
		body = binary.BigEndian.AppendUint32(body, uint32(line.Millis()))
	}
	return body
}
