package models

// Outcome classifies how a single item left the pipeline.
type Outcome int

const (
	// OutcomeEnriched means the detail page was read.
	OutcomeEnriched Outcome = iota
	// OutcomeDegraded means the detail page could not be fetched and the
	// basic record is kept.
	OutcomeDegraded
	// OutcomeSkipped means processing failed and the item is dropped.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEnriched:
		return "enriched"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// ItemResult is the per-item result folded by the driver.
type ItemResult struct {
	ID      string
	Outcome Outcome
	Record  *Equipment
	Reason  string
}

// Enriched wraps a record built from its detail page.
func Enriched(record *Equipment) ItemResult {
	return ItemResult{ID: record.ID, Outcome: OutcomeEnriched, Record: record}
}

// Degraded wraps a basic record kept after a failed detail fetch.
func Degraded(record *Equipment, reason string) ItemResult {
	return ItemResult{ID: record.ID, Outcome: OutcomeDegraded, Record: record, Reason: reason}
}

// Skipped drops an item.
func Skipped(id, reason string) ItemResult {
	return ItemResult{ID: id, Outcome: OutcomeSkipped, Reason: reason}
}
