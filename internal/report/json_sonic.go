//go:build sonic

package report

import (
	"io"

	"github.com/bytedance/sonic"
)

var sonicAPI = sonic.Config{
	EscapeHTML:       true,
	SortMapKeys:      true,
	CompactMarshaler: true,
}.Froze()

func jsonEncoder(w io.Writer, v any) error {
	enc := sonicAPI.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func jsonDecoder(r io.Reader, v any) error {
	return sonicAPI.NewDecoder(r).Decode(v)
}
