package ingest

// Status is the outcome of one slot.
type Status string

const (
	StatusStored   Status = "stored"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
	// StatusSkipped marks an optional slot that was not submitted.
	StatusSkipped Status = "skipped"
)

// Overall summarizes an ingest.
type Overall string

const (
	OverallAllStored      Overall = "all_stored"
	OverallPartialFailure Overall = "partial_failure"
	OverallRejected       Overall = "rejected"
)

// Rejection reasons.
const (
	ReasonMissingRequired      = "missing required file"
	ReasonUnsupportedExtension = "unsupported extension"
	ReasonTooLarge             = "file too large"
)

// PartResult is the outcome for one manifest slot.
type PartResult struct {
	Slot       string `json:"slot"`
	Status     Status `json:"status"`
	StorageKey string `json:"storage_key,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Filename   string `json:"filename,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
}

// Result is the aggregated outcome of one ingest, with one part per
// manifest slot in manifest order.
type Result struct {
	Overall Overall      `json:"overall"`
	Parts   []PartResult `json:"parts"`
}

// Counts tallies parts by status.
func (r Result) Counts() map[Status]int {
	counts := make(map[Status]int, 4)
	for _, p := range r.Parts {
		counts[p.Status]++
	}
	return counts
}

// Aggregate derives the overall status: Rejected when any required slot was
// rejected, AllStored when every required slot was stored and no optional
// slot failed, PartialFailure otherwise.
func Aggregate(m *Manifest, parts []PartResult) Overall {
	requiredRejected := false
	requiredAllStored := true
	optionalFailed := false

	for _, p := range parts {
		slot, ok := m.Slot(p.Slot)
		if !ok {
			continue
		}
		if slot.Required {
			switch p.Status {
			case StatusRejected:
				requiredRejected = true
				requiredAllStored = false
			case StatusStored:
			default:
				requiredAllStored = false
			}
			continue
		}
		if p.Status == StatusFailed {
			optionalFailed = true
		}
	}

	switch {
	case requiredRejected:
		return OverallRejected
	case requiredAllStored && !optionalFailed:
		return OverallAllStored
	default:
		return OverallPartialFailure
	}
}
