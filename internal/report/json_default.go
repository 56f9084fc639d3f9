//go:build !sonic

package report

import (
	"io"

	"github.com/goccy/go-json"
)

func jsonEncoder(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func jsonDecoder(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}
