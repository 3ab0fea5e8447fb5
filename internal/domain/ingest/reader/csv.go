package reader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// csvEncodings is the decode chain for CSV bytes, tried in order. UTF-8 is
// strict; the legacy single-byte encodings accept any byte stream, so the
// chain always terminates.
var csvEncodings = []struct {
	name   string
	decode func([]byte) ([]byte, error)
}{
	{"utf-8", decodeUTF8},
	{"latin-1", decodeCharmap(charmap.ISO8859_1)},
	{"windows-1252", decodeCharmap(charmap.Windows1252)},
}

func decodeUTF8(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("invalid utf-8 byte sequence")
	}
	return data, nil
}

func decodeCharmap(cm *charmap.Charmap) func([]byte) ([]byte, error) {
	return func(data []byte) ([]byte, error) {
		return cm.NewDecoder().Bytes(data)
	}
}

func decodeText(data []byte) ([]byte, error) {
	var lastErr error
	for _, enc := range csvEncodings {
		decoded, err := enc.decode(data)
		if err == nil {
			return decoded, nil
		}
		lastErr = fmt.Errorf("%s: %w", enc.name, err)
	}
	return nil, lastErr
}

// detectDelimiter picks the most frequent of comma, semicolon and tab in the
// header line. Comma wins ties and empty input.
func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}

	delim := ','
	best := bytes.Count(line, []byte{','})
	for _, cand := range []byte{';', '\t'} {
		if n := bytes.Count(line, []byte{cand}); n > best {
			best = n
			delim = rune(cand)
		}
	}
	return delim
}

func parseCSV(filename string, data []byte) (*Table, error) {
	decoded, err := decodeText(data)
	if err != nil {
		return nil, &UnreadableFileError{Filename: filename, Reason: err.Error()}
	}

	r := csv.NewReader(bytes.NewReader(decoded))
	r.Comma = detectDelimiter(decoded)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, &UnreadableFileError{Filename: filename, Reason: fmt.Sprintf("malformed csv: %v", err)}
	}
	return tableFromRows(filename, rows)
}
