// Package pairing reconciles CRM account records with their contact records
// into merged patient entities. It is pure: no I/O beyond the injected
// logger, and a deterministic result for a given input order.
package pairing

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chartsync/chartsync-api/internal/models"
	"github.com/chartsync/chartsync-api/internal/salesforce"
)

type Engine struct {
	logger zerolog.Logger
}

func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{logger: logger.With().Str("component", "pairing").Logger()}
}

// Merge pairs each account with exactly one contact. Accounts carry a display
// name encoded as "Last, First"; contacts carry discrete name fields, a
// lexically sortable YYYY-MM-DD birth date and an AccountRef back-reference.
//
// Per account: parse the display name, keep contacts referencing the account,
// keep those whose names match case-insensitively, then take the smallest
// birth-date string so the oldest contact wins deterministically. An account
// with no matching contact is a data-quality problem, not a fatal one: it is
// logged and skipped.
func (e *Engine) Merge(accounts, contacts []salesforce.Record) []models.MergedPatient {
	patients := make([]models.MergedPatient, 0, len(accounts))
	for _, account := range accounts {
		first, last, ok := splitDisplayName(account.Get("Name"))
		if !ok {
			e.logger.Warn().Str("account_id", account.ID()).Str("name", account.Get("Name")).
				Msg("account name is not in Last, First form; skipping")
			continue
		}

		candidates := matchContacts(contacts, account.ID(), first, last)
		if len(candidates) == 0 {
			e.logger.Warn().Str("account_id", account.ID()).Str("name", account.Get("Name")).
				Msg("no contact matches account; skipping")
			continue
		}

		winner := oldest(candidates)
		if len(candidates) > 1 && candidates[0].Get("BirthDate") == candidates[1].Get("BirthDate") {
			// Identical names and identical birth dates: there is no rule to
			// break this tie, so the choice is arbitrary. Flag it.
			e.logger.Warn().Str("account_id", account.ID()).
				Str("kept_contact_id", winner.ID()).Str("birth_date", winner.Get("BirthDate")).
				Msg("multiple contacts share name and birth date; keeping first in input order")
		}

		patients = append(patients, models.MergedPatient{
			FirstName: winner.Get("FirstName"),
			LastName:  winner.Get("LastName"),
			DOB:       winner.Get("BirthDate"),
			Gender:    winner.Get("Gender"),
			Phone:     account.Get("Phone"),
			Email:     account.Get("Email"),
			AccountID: account.ID(),
		})
	}
	return patients
}

// splitDisplayName parses "Last, First" into its parts.
func splitDisplayName(name string) (first, last string, ok bool) {
	parts := strings.SplitN(name, ",", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	last = strings.TrimSpace(parts[0])
	first = strings.TrimSpace(parts[1])
	return first, last, first != "" && last != ""
}

func matchContacts(contacts []salesforce.Record, accountID, first, last string) []salesforce.Record {
	var matched []salesforce.Record
	for _, c := range contacts {
		if c.Get("AccountRef") != accountID {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(c.Get("FirstName")), first) ||
			!strings.EqualFold(strings.TrimSpace(c.Get("LastName")), last) {
			continue
		}
		matched = append(matched, c)
	}
	return matched
}

// oldest returns the candidate with the lexicographically smallest birth-date
// string; the YYYY-MM-DD format sorts correctly as text. The sort is stable
// so equal dates keep input order.
func oldest(candidates []salesforce.Record) salesforce.Record {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Get("BirthDate") < candidates[j].Get("BirthDate")
	})
	return candidates[0]
}
