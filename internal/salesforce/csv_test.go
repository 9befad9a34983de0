package salesforce

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func accountRecord(t *testing.T, id, name, phone, email string) Record {
	t.Helper()
	rec := NewRecord(TempAccount)
	require.NoError(t, rec.Set("Id", id))
	require.NoError(t, rec.Set("Name", name))
	require.NoError(t, rec.Set("Phone", phone))
	require.NoError(t, rec.Set("Email", email))
	return rec
}

func TestEncodeRecords(t *testing.T) {
	records := []Record{
		accountRecord(t, "A01", "Doe, John", "555-0100", "john@example.com"),
		accountRecord(t, "A02", " Plain ", "", "plain@example.com"),
	}

	payload, err := EncodeRecords(records)
	require.NoError(t, err)

	expected := "Id,Name,Phone,Email\n" +
		`A01,"Doe, John",555-0100,john@example.com` + "\n" +
		"A02,Plain,,plain@example.com"
	assert.Equal(t, expected, payload)
}

func TestEncodeRecordsQuotesOnlyOnComma(t *testing.T) {
	// A value with quotes but no comma stays unwrapped; quotes are doubled
	// only when the wrapper is added.
	rec := accountRecord(t, "A01", `Doe, "Johnny" John`, "", "")
	payload, err := EncodeRecords([]Record{rec})
	require.NoError(t, err)
	assert.Contains(t, payload, `"Doe, ""Johnny"" John"`)

	rec = accountRecord(t, "A02", `"Johnny"`, "", "")
	payload, err = EncodeRecords([]Record{rec})
	require.NoError(t, err)
	assert.Contains(t, payload, "\nA02,\"Johnny\",,")
}

func TestEncodeRecordsRejectsEmptyAndMixed(t *testing.T) {
	_, err := EncodeRecords(nil)
	assert.Error(t, err)

	contact := NewRecord(TempContact)
	require.NoError(t, contact.Set("Id", "C01"))
	_, err = EncodeRecords([]Record{accountRecord(t, "A01", "Doe, Jane", "", ""), contact})
	assert.True(t, errors.Is(err, ErrSchemaMismatch))
}

func TestDecodeRecords(t *testing.T) {
	raw := "Id,Name,Phone,Email\n" +
		`A01,"Doe, John",555-0100,john@example.com` + "\n" +
		"A02, Padded,555-0101,padded@example.com"

	records, err := DecodeRecords(TempAccount, raw)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Doe, John", records[0].Get("Name"))
	assert.Equal(t, "A01", records[0].ID())
	// A single space after the separator is tolerated and stripped.
	assert.Equal(t, "Padded", records[1].Get("Name"))
}

func TestDecodeRecordsRoundTrip(t *testing.T) {
	original := []Record{
		accountRecord(t, "A01", `Doe, "Johnny" John`, "555-0100", "jj@example.com"),
		accountRecord(t, "A02", "Smith, Sue", "", "sue@example.com"),
	}

	payload, err := EncodeRecords(original)
	require.NoError(t, err)
	decoded, err := DecodeRecords(TempAccount, payload)
	require.NoError(t, err)
	require.Len(t, decoded, len(original))
	for i := range original {
		for _, field := range TempAccount.Fields {
			assert.Equal(t, original[i].Get(field), decoded[i].Get(field))
		}
	}
}

func TestDecodeRecordsSchemaEnforcement(t *testing.T) {
	t.Run("empty payload", func(t *testing.T) {
		_, err := DecodeRecords(TempAccount, "")
		assert.True(t, errors.Is(err, ErrSchemaMismatch))
	})

	t.Run("header only", func(t *testing.T) {
		records, err := DecodeRecords(TempAccount, "Id,Name,Phone,Email")
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("undeclared column", func(t *testing.T) {
		_, err := DecodeRecords(TempAccount, "Id,Name,Phone,Fax\nA01,Doe,555,555")
		assert.True(t, errors.Is(err, ErrSchemaMismatch))
	})

	t.Run("missing column", func(t *testing.T) {
		_, err := DecodeRecords(TempAccount, "Id,Name,Phone\nA01,Doe,555")
		assert.True(t, errors.Is(err, ErrSchemaMismatch))
	})
}

func TestNormalizeResults(t *testing.T) {
	raw := "sf__Id,sf__Created,Id,Name\n" +
		`"X01","true","","Doe, John"`

	canonical, err := NormalizeResults(raw)
	require.NoError(t, err)
	assert.Equal(t, "Id,Name\nX01,\"Doe, John\"", canonical)

	records, err := DecodeRecords(Shape{ObjectName: "TempAccount__c", Fields: []string{"Id", "Name"}}, canonical)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "X01", records[0].ID())
}

func TestNormalizeResultsPreservesColumnOrder(t *testing.T) {
	raw := "Name,sf__Created,sf__Id,Email\nDoe,true,X02,doe@example.com"
	canonical, err := NormalizeResults(raw)
	require.NoError(t, err)
	assert.Equal(t, "Name,Id,Email\nDoe,X02,doe@example.com", canonical)
}

func TestNormalizeResultsMissingRemoteID(t *testing.T) {
	_, err := NormalizeResults("Id,Name\nA01,Doe")
	assert.True(t, errors.Is(err, ErrUnexpectedResponseShape))

	_, err = NormalizeResults("")
	assert.True(t, errors.Is(err, ErrUnexpectedResponseShape))
}

func TestRecordSetRejectsUndeclaredField(t *testing.T) {
	rec := NewRecord(TempAccount)
	err := rec.Set("Fax", "555")
	assert.True(t, errors.Is(err, ErrSchemaMismatch))
}

func TestRecordFromValues(t *testing.T) {
	rec, err := RecordFromValues(TempAccount, map[string]string{"Id": "A01", "Name": "Doe, Jane"})
	require.NoError(t, err)
	assert.Equal(t, "A01", rec.ID())

	_, err = RecordFromValues(TempAccount, map[string]string{"Fax": "555"})
	assert.True(t, errors.Is(err, ErrSchemaMismatch))
}
