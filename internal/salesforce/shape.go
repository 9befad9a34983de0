package salesforce

import (
	"github.com/pkg/errors"
)

// Shape declares the closed field set of one remote object type. The field
// list is ordered and fixed at definition time; the first field is always Id,
// empty until the remote service assigns one.
type Shape struct {
	ObjectName string
	Fields     []string
}

// The two record kinds this migration moves. Adding a kind means declaring it
// here; there is no open-ended subclassing or runtime field discovery.
var (
	TempAccount = Shape{
		ObjectName: "TempAccount__c",
		Fields:     []string{"Id", "Name", "Phone", "Email"},
	}
	TempContact = Shape{
		ObjectName: "TempContact__c",
		Fields:     []string{"Id", "FirstName", "LastName", "BirthDate", "Gender", "AccountRef"},
	}
)

// Header returns the canonical CSV header for the shape, in declared order.
func (s Shape) Header() []string {
	header := make([]string, len(s.Fields))
	copy(header, s.Fields)
	return header
}

func (s Shape) declares(field string) bool {
	for _, f := range s.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Record is one instance of a Shape: a mapping from declared field name to an
// optional string value. Unset fields read as the empty string.
type Record struct {
	shape  Shape
	values map[string]string
}

func NewRecord(shape Shape) Record {
	return Record{shape: shape, values: make(map[string]string, len(shape.Fields))}
}

// RecordFromRow populates a new Record of shape from one decoded CSV row.
// The header must match the shape's declared fields exactly; a renamed,
// missing or extra column would corrupt every row deterministically, so this
// is a hard failure rather than a partial fill.
func RecordFromRow(shape Shape, header, row []string) (Record, error) {
	if len(header) != len(shape.Fields) {
		return Record{}, errors.Wrapf(ErrSchemaMismatch,
			"%s: header has %d columns, shape declares %d", shape.ObjectName, len(header), len(shape.Fields))
	}
	if len(row) != len(header) {
		return Record{}, errors.Wrapf(ErrSchemaMismatch,
			"%s: row has %d values for %d columns", shape.ObjectName, len(row), len(header))
	}
	rec := NewRecord(shape)
	for i, col := range header {
		if !shape.declares(col) {
			return Record{}, errors.Wrapf(ErrSchemaMismatch, "%s: undeclared column %q", shape.ObjectName, col)
		}
		rec.values[col] = row[i]
	}
	return rec, nil
}

func (r Record) Shape() Shape { return r.shape }

// Get returns the value of a declared field, or the empty string when unset.
func (r Record) Get(field string) string { return r.values[field] }

// Set assigns a declared field. Undeclared fields are rejected so a Record
// can never drift from its Shape.
func (r *Record) Set(field, value string) error {
	if !r.shape.declares(field) {
		return errors.Wrapf(ErrSchemaMismatch, "%s: undeclared field %q", r.shape.ObjectName, field)
	}
	if r.values == nil {
		r.values = make(map[string]string, len(r.shape.Fields))
	}
	r.values[field] = value
	return nil
}

// ID returns the remote identifier, empty until the record has been persisted
// by a completed ingest job.
func (r Record) ID() string { return r.values["Id"] }

// Values returns a copy of the record's field values, for handing records
// across serialization boundaries.
func (r Record) Values() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// RecordFromValues rebuilds a Record from a field-value map, enforcing that
// every key is a declared field of the shape.
func RecordFromValues(shape Shape, values map[string]string) (Record, error) {
	rec := NewRecord(shape)
	for field, value := range values {
		if err := rec.Set(field, value); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}
