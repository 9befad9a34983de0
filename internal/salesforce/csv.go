package salesforce

import (
	"encoding/csv"
	"strings"

	"github.com/pkg/errors"
)

// The bulk API is strict about its CSV payloads: fields joined with a bare
// comma, rows joined with LF only, values wrapped in quotes only when they
// contain a comma, embedded quotes doubled before the wrapper is added. The
// encoder below reproduces those rules exactly; stdlib csv.Writer does not
// (it quotes on quote characters too and never trims).

// EncodeRecords renders a homogeneous, non-empty record list as a bulk API
// CSV payload. The header comes from the first record's shape.
func EncodeRecords(records []Record) (string, error) {
	if len(records) == 0 {
		return "", errors.New("no records to encode")
	}
	shape := records[0].shape
	lines := make([]string, 0, len(records)+1)
	lines = append(lines, encodeRow(shape.Header()))
	for _, rec := range records {
		if rec.shape.ObjectName != shape.ObjectName {
			return "", errors.Wrapf(ErrSchemaMismatch,
				"mixed shapes in one payload: %s and %s", shape.ObjectName, rec.shape.ObjectName)
		}
		row := make([]string, len(shape.Fields))
		for i, field := range shape.Fields {
			row[i] = rec.Get(field)
		}
		lines = append(lines, encodeRow(row))
	}
	return strings.Join(lines, "\n"), nil
}

func encodeRow(values []string) string {
	encoded := make([]string, len(values))
	for i, v := range values {
		encoded[i] = encodeField(v)
	}
	return strings.Join(encoded, ",")
}

// encodeField trims the value, then quote-wraps it when it contains a comma.
// Embedded quotes are doubled before wrapping so they are never mistaken for
// the wrapper quotes.
func encodeField(value string) string {
	value = strings.TrimSpace(value)
	if strings.Contains(value, ",") {
		value = strings.ReplaceAll(value, `"`, `""`)
		value = `"` + value + `"`
	}
	return value
}

// DecodeRecords parses a CSV blob into Records of shape. The reader tolerates
// a single space after each comma, for interop with a legacy encoder variant
// that padded its separators. A payload with a header and zero data rows
// decodes to an empty slice.
func DecodeRecords(shape Shape, raw string) ([]Record, error) {
	header, rows, err := parseCSV(raw)
	if err != nil {
		return nil, err
	}
	if header == nil {
		return nil, errors.Wrapf(ErrSchemaMismatch, "%s: empty csv payload", shape.ObjectName)
	}
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := RecordFromRow(shape, header, row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// NormalizeResults rewrites an ingest result CSV into the canonical shape
// header: the service-prefixed sf__Id column is renamed back to Id, while the
// echoed Id column and the sf__Created status column are dropped. Column
// order is preserved for everything that remains.
func NormalizeResults(raw string) (string, error) {
	header, rows, err := parseCSV(raw)
	if err != nil {
		return "", err
	}
	if header == nil {
		return "", errors.Wrap(ErrUnexpectedResponseShape, "empty result payload")
	}

	keep := make([]int, 0, len(header))
	outHeader := make([]string, 0, len(header))
	sawRemoteID := false
	for i, col := range header {
		switch col {
		case "sf__Id":
			sawRemoteID = true
			keep = append(keep, i)
			outHeader = append(outHeader, "Id")
		case "Id", "sf__Created":
			// Dropped: Id is repopulated from sf__Id, sf__Created is noise.
		default:
			keep = append(keep, i)
			outHeader = append(outHeader, col)
		}
	}
	if !sawRemoteID {
		return "", errors.Wrapf(ErrUnexpectedResponseShape, "no sf__Id column in %v", header)
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, encodeRow(outHeader))
	for _, row := range rows {
		out := make([]string, 0, len(keep))
		for _, i := range keep {
			out = append(out, row[i])
		}
		lines = append(lines, encodeRow(out))
	}
	return strings.Join(lines, "\n"), nil
}

func parseCSV(raw string) (header []string, rows [][]string, err error) {
	r := csv.NewReader(strings.NewReader(raw))
	r.TrimLeadingSpace = true
	r.LazyQuotes = true
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, errors.Wrap(err, "parsing csv payload")
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}
