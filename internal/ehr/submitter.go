// Package ehr is the sink side of a migration run: it takes finished
// MergedPatient entities and enters them into the EHR's web application
// through a real browser, since the EHR exposes no import API.
package ehr

import (
	"context"

	"github.com/chartsync/chartsync-api/internal/models"
)

// Submitter accepts one merged patient at a time. The orchestration layer
// depends on this interface only; the browser mechanics stay behind it.
type Submitter interface {
	Submit(ctx context.Context, patient models.MergedPatient) error
}
