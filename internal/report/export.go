package report

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Format is an export format.
type Format string

// Export formats.
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ErrUnknownFormat is returned for an unrecognized Format.
var ErrUnknownFormat = errors.New("report: unknown format")

// Write renders doc to w in the given format.
func Write(w io.Writer, doc *Document, format Format, color ColorMode) error {
	switch format {
	case FormatTable, "":
		return WriteTable(w, doc, color)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(doc), "report: encode json")
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return errors.Wrap(err, "report: encode yaml")
		}
		return errors.Wrap(enc.Close(), "report: encode yaml")
	default:
		return errors.Wrapf(ErrUnknownFormat, "%q", format)
	}
}
