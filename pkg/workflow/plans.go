package workflow

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/herald-crm/herald/pkg/agent"
)

// The workflow's value objects are the agent package's: the sales and
// market agents produce them, the workflow only sequences them.
type (
	PotentialCustomer = agent.PotentialCustomer
	CustomerProfile   = agent.CustomerProfile
	ContactStrategy   = agent.ContactStrategy
	VisitPlan         = agent.VisitPlan
	ContactRecord     = agent.ContactRecord
)

// ContactPlan pairs one qualified customer with the strategy and visit plan
// prepared for them.
type ContactPlan struct {
	Customer CustomerProfile `json:"customer"`
	Strategy ContactStrategy `json:"strategy"`
	Visit    VisitPlan       `json:"visit"`
}

// ContactResultPatch updates one contact record after the fact. Zero-valued
// fields leave the record's value unchanged.
type ContactResultPatch struct {
	Status      string `mapstructure:"status"`
	Response    string `mapstructure:"response"`
	NextStep    string `mapstructure:"next_step"`
	ScheduledAt string `mapstructure:"scheduled_at"`
	Notes       string `mapstructure:"notes"`
}

var validContactStatuses = map[string]bool{
	agent.ContactSent:      true,
	agent.ContactFailed:    true,
	agent.ContactReplied:   true,
	agent.ContactScheduled: true,
	agent.ContactRejected:  true,
}

// decodeContactPatch validates a loose patch map against the patch schema.
// Unknown fields and unknown statuses are rejected.
func decodeContactPatch(raw map[string]any) (ContactResultPatch, error) {
	var patch ContactResultPatch
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata: &md,
		Result:   &patch,
	})
	if err != nil {
		return patch, err
	}
	if err := decoder.Decode(raw); err != nil {
		return patch, err
	}
	if len(md.Unused) > 0 {
		return patch, fmt.Errorf("unknown patch fields: %s", strings.Join(md.Unused, ", "))
	}
	if patch.Status != "" && !validContactStatuses[patch.Status] {
		return patch, fmt.Errorf("unknown contact status %q", patch.Status)
	}
	return patch, nil
}

// apply overlays the patch's non-empty fields onto the record.
func (p ContactResultPatch) apply(rec *ContactRecord) {
	if p.Status != "" {
		rec.Status = p.Status
	}
	if p.Response != "" {
		rec.Response = p.Response
	}
	if p.NextStep != "" {
		rec.NextStep = p.NextStep
	}
	if p.ScheduledAt != "" {
		rec.ScheduledAt = p.ScheduledAt
	}
	if p.Notes != "" {
		rec.Notes = p.Notes
	}
}
