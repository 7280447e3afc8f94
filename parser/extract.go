package parser

import "github.com/aluiziolira/dbl-equipment-scraper/models"

const (
	slotTag       = "div"
	slotClass     = "card-body"
	traitTag      = "div"
	traitClass    = "trait-container"
	tagLabelTag   = "div"
	tagLabelClass = "name"
	nameTag       = "h2"
)

// Condition descriptions paired with each ConditionLogic. Consumers match on
// these strings.
const (
	DescAllTags  = "Must meet all tags in the group"
	DescAnyGroup = "Must meet requirements of Group 1 OR Group 2..."
)

// Extract enriches basic with what the detail page carries. A nil detail
// means the page could not be fetched and basic is returned unchanged.
func Extract(detail Markup, basic *models.Equipment) *models.Equipment {
	if detail == nil {
		return basic
	}

	rec := *basic
	if h2, ok := detail.First(nameTag); ok {
		rec.Name = h2.Text("")
	}
	rec.Slots = ExtractSlots(detail)
	rec.ConditionsData = ExtractConditionGroups(detail)
	rec.ConditionLogic, rec.ConditionDesc = InferConditionLogic(rec.ConditionsData)
	return &rec
}

// ExtractSlots reads every card body in order. Bodies without text are
// dropped and do not use up an index.
func ExtractSlots(detail Markup) []models.SlotEntry {
	slots := []models.SlotEntry{}
	for _, card := range detail.FindByClass(slotTag, slotClass) {
		text := card.Text(" ")
		if text == "" {
			continue
		}
		slots = append(slots, models.SlotEntry{
			SlotIndex: len(slots) + 1,
			Effect:    text,
		})
	}
	return slots
}

// ExtractConditionGroups returns one tag list per trait container that
// holds at least one tag.
func ExtractConditionGroups(detail Markup) [][]string {
	groups := [][]string{}
	for _, container := range detail.FindByClassContains(traitTag, traitClass) {
		var tags []string
		for _, label := range container.FindByClass(tagLabelTag, tagLabelClass) {
			tags = append(tags, label.Text(""))
		}
		if len(tags) > 0 {
			groups = append(groups, tags)
		}
	}
	return groups
}

// InferConditionLogic decides from the group count alone: one group (or
// none) means every tag is required, several groups are alternatives.
func InferConditionLogic(groups [][]string) (models.ConditionLogic, string) {
	if len(groups) > 1 {
		return models.LogicOr, DescAnyGroup
	}
	return models.LogicAnd, DescAllTags
}
