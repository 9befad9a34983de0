package pairing

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chartsync/chartsync-api/internal/salesforce"
)

func account(t *testing.T, id, name, phone, email string) salesforce.Record {
	t.Helper()
	rec := salesforce.NewRecord(salesforce.TempAccount)
	require.NoError(t, rec.Set("Id", id))
	require.NoError(t, rec.Set("Name", name))
	require.NoError(t, rec.Set("Phone", phone))
	require.NoError(t, rec.Set("Email", email))
	return rec
}

func contact(t *testing.T, id, first, last, birthDate, gender, accountRef string) salesforce.Record {
	t.Helper()
	rec := salesforce.NewRecord(salesforce.TempContact)
	require.NoError(t, rec.Set("Id", id))
	require.NoError(t, rec.Set("FirstName", first))
	require.NoError(t, rec.Set("LastName", last))
	require.NoError(t, rec.Set("BirthDate", birthDate))
	require.NoError(t, rec.Set("Gender", gender))
	require.NoError(t, rec.Set("AccountRef", accountRef))
	return rec
}

func TestMergeUniqueMatch(t *testing.T) {
	engine := NewEngine(zerolog.Nop())

	accounts := []salesforce.Record{account(t, "A01", "Doe, John", "555-0100", "john@example.com")}
	contacts := []salesforce.Record{
		contact(t, "C01", "John", "Doe", "1990-03-14", "male", "A01"),
		contact(t, "C02", "Jane", "Doe", "1992-01-01", "female", "A01"),
	}

	patients := engine.Merge(accounts, contacts)
	require.Len(t, patients, 1)

	p := patients[0]
	assert.Equal(t, "John", p.FirstName)
	assert.Equal(t, "Doe", p.LastName)
	assert.Equal(t, "1990-03-14", p.DOB)
	assert.Equal(t, "male", p.Gender)
	assert.Equal(t, "555-0100", p.Phone)
	assert.Equal(t, "john@example.com", p.Email)
	assert.Equal(t, "A01", p.AccountID)
}

func TestMergeNameMatchIsCaseInsensitive(t *testing.T) {
	engine := NewEngine(zerolog.Nop())

	accounts := []salesforce.Record{account(t, "A01", "DOE,  john ", "", "")}
	contacts := []salesforce.Record{contact(t, "C01", " John", "doe", "1990-03-14", "male", "A01")}

	patients := engine.Merge(accounts, contacts)
	require.Len(t, patients, 1)
	assert.Equal(t, "C01", contacts[0].ID())
}

func TestMergeOldestWins(t *testing.T) {
	engine := NewEngine(zerolog.Nop())

	accounts := []salesforce.Record{account(t, "A01", "Doe, John", "", "")}
	contacts := []salesforce.Record{
		contact(t, "C01", "John", "Doe", "1990-03-14", "male", "A01"),
		contact(t, "C02", "John", "Doe", "1985-05-05", "male", "A01"),
		contact(t, "C03", "John", "Doe", "1999-12-31", "male", "A01"),
	}

	patients := engine.Merge(accounts, contacts)
	require.Len(t, patients, 1)
	assert.Equal(t, "1985-05-05", patients[0].DOB)
}

func TestMergeIdenticalBirthDatesKeepsInputOrder(t *testing.T) {
	engine := NewEngine(zerolog.Nop())

	accounts := []salesforce.Record{account(t, "A01", "Doe, John", "", "")}
	contacts := []salesforce.Record{
		contact(t, "C01", "John", "Doe", "1985-05-05", "male", "A01"),
		contact(t, "C02", "John", "Doe", "1985-05-05", "male", "A01"),
	}

	patients := engine.Merge(accounts, contacts)
	require.Len(t, patients, 1)
	// The stable sort keeps C01 first.
	assert.Equal(t, "1985-05-05", patients[0].DOB)
}

func TestMergeSkipsUnmatchable(t *testing.T) {
	engine := NewEngine(zerolog.Nop())

	accounts := []salesforce.Record{
		account(t, "A01", "Doe, John", "", ""),
		account(t, "A02", "NoComma", "", ""),
		account(t, "A03", "Smith, Sue", "", ""),
	}
	contacts := []salesforce.Record{
		// References the wrong account.
		contact(t, "C01", "John", "Doe", "1990-03-14", "male", "A03"),
		// Name does not match its account.
		contact(t, "C02", "Bob", "Smith", "1970-01-01", "male", "A03"),
	}

	patients := engine.Merge(accounts, contacts)
	assert.Empty(t, patients)
}

func TestMergeContactsAreScopedToTheirAccount(t *testing.T) {
	engine := NewEngine(zerolog.Nop())

	accounts := []salesforce.Record{
		account(t, "A01", "Doe, John", "555-0100", ""),
		account(t, "A02", "Doe, John", "555-0200", ""),
	}
	contacts := []salesforce.Record{
		contact(t, "C01", "John", "Doe", "1990-03-14", "male", "A01"),
		contact(t, "C02", "John", "Doe", "1960-06-06", "male", "A02"),
	}

	patients := engine.Merge(accounts, contacts)
	require.Len(t, patients, 2)
	assert.Equal(t, "1990-03-14", patients[0].DOB)
	assert.Equal(t, "555-0100", patients[0].Phone)
	assert.Equal(t, "1960-06-06", patients[1].DOB)
	assert.Equal(t, "555-0200", patients[1].Phone)
}
