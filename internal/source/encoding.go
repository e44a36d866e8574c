package source

// encoding.go decodes delimited text exported by spreadsheet tools.
//
// Files saved from Excel on Windows commonly carry a UTF-8 BOM, and files
// from older Chinese-locale tools are GBK/GB18030. Both are turned into
// plain UTF-8 before CSV parsing so that header labels match exactly.

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrEncoding is wrapped by Decode failures.
var ErrEncoding = errors.New("encoding error")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode returns data as UTF-8 without a byte order mark. UTF-16 input is
// recognized by its BOM; input that is not valid UTF-8 is read as GB18030.
func Decode(data []byte) ([]byte, error) {
	var fallback transform.Transformer = unicode.UTF8.NewDecoder()
	if !utf8.Valid(bytes.TrimPrefix(data, utf8BOM)) {
		fallback = simplifiedchinese.GB18030.NewDecoder()
	}

	out, _, err := transform.Bytes(unicode.BOMOverride(fallback), data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return out, nil
}
