// Package models defines data structures for the scraper.
package models

import "time"

// UnknownName is the display name of a record whose detail page yielded no
// heading.
const UnknownName = "Unknown"

// ConditionLogic tells how the condition groups of an item combine. It is
// LogicAnd or LogicOr once the detail page has been read. A record whose
// detail page could not be fetched keeps LogicNotEvaluated, which serialises
// as "condition_logic": "".
type ConditionLogic string

const (
	LogicNotEvaluated ConditionLogic = ""
	LogicAnd          ConditionLogic = "AND"
	LogicOr           ConditionLogic = "OR"
)

// Listing is what the listing page tells us about an item.
type Listing struct {
	ID    string
	URL   string
	Image string
}

// SlotEntry is one equipment slot and its effect text.
type SlotEntry struct {
	SlotIndex int    `json:"slot_index"`
	Effect    string `json:"effect"`
}

// Equipment represents one equipment item in the output document.
type Equipment struct {
	ID             string         `json:"id"`
	URL            string         `json:"url"`
	Image          string         `json:"image"`
	Name           string         `json:"name"`
	Slots          []SlotEntry    `json:"slots"`
	ConditionsData [][]string     `json:"conditions_data"`
	ConditionLogic ConditionLogic `json:"condition_logic"`
	ConditionDesc  string         `json:"condition_desc"`
}

// NewBasicEquipment builds the record known before the detail page is read:
// name UnknownName, no slots or groups, and LogicNotEvaluated with an empty
// description. This is also the record written for a degraded item.
func NewBasicEquipment(l Listing) *Equipment {
	return &Equipment{
		ID:             l.ID,
		URL:            l.URL,
		Image:          l.Image,
		Name:           UnknownName,
		Slots:          []SlotEntry{},
		ConditionsData: [][]string{},
		ConditionLogic: LogicNotEvaluated,
	}
}

// RunResult holds the overall result of a scraping run.
type RunResult struct {
	RunID        string
	Records      []*Equipment
	StartTime    time.Time
	EndTime      time.Time
	Discovered   int
	Enriched     int
	Degraded     int
	Skipped      int
	FailedURLs   []string
	ErrorsByType map[string]int
}

// NewRunResult starts an empty result for the given run.
func NewRunResult(runID string) *RunResult {
	return &RunResult{
		RunID:        runID,
		Records:      []*Equipment{},
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}
}

// Apply folds one item outcome into the run. Skipped items are counted but
// never collected.
func (r *RunResult) Apply(item ItemResult) {
	switch item.Outcome {
	case OutcomeEnriched:
		r.Enriched++
		r.Records = append(r.Records, item.Record)
	case OutcomeDegraded:
		r.Degraded++
		r.Records = append(r.Records, item.Record)
	case OutcomeSkipped:
		r.Skipped++
	}
}

// RecordFailure notes a failed request under its error category.
func (r *RunResult) RecordFailure(url, category string) {
	r.FailedURLs = append(r.FailedURLs, url)
	r.ErrorsByType[category]++
}
