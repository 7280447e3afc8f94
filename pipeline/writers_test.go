package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aluiziolira/dbl-equipment-scraper/models"
)

func sampleRecords() []*models.Equipment {
	return []*models.Equipment{
		{
			ID:    "1578",
			URL:   "https://example.test/equip/1578",
			Image: "https://example.test/assets/equips/EqIco_1578.webp",
			Name:  "Poção «Sûre» & <Shield>",
			Slots: []models.SlotEntry{
				{SlotIndex: 1, Effect: "攻撃力 +10%"},
				{SlotIndex: 2, Effect: "Ki +5"},
			},
			ConditionsData: [][]string{{"Fire"}, {"Water", "Rare"}},
			ConditionLogic: models.LogicOr,
			ConditionDesc:  "Must meet requirements of Group 1 OR Group 2...",
		},
		models.NewBasicEquipment(models.Listing{ID: "9", URL: "https://example.test/equip/9"}),
	}
}

func TestJSONWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "equipment.json")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Validate(); err == nil {
		t.Fatalf("validate should fail before anything is written")
	}

	records := sampleRecords()
	if err := writer.Write(records); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	text := string(data)
	for _, literal := range []string{"«Sûre»", "攻撃力", "& <Shield>", "\n    {\n        \"id\": \"1578\""} {
		if !strings.Contains(text, literal) {
			t.Fatalf("output missing literal %q:\n%s", literal, text)
		}
	}

	var decoded []*models.Equipment
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(records) {
		t.Fatalf("decoded %d records, want %d", len(decoded), len(records))
	}
	for i := range records {
		want, _ := json.Marshal(records[i])
		got, _ := json.Marshal(decoded[i])
		if string(want) != string(got) {
			t.Fatalf("record %d mismatch:\nwant %s\ngot  %s", i, want, got)
		}
	}
	if decoded[1].Slots == nil || decoded[1].ConditionsData == nil {
		t.Fatalf("empty collections should round-trip as [] not null")
	}
}

func TestJSONWriterEmptyCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write(nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("empty output = %q, want []", data)
	}
}

func TestJSONWriterWriteOnce(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewJSONWriter(filepath.Join(dir, "once.json"))
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write(sampleRecords()); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := writer.Write(sampleRecords()); !errors.Is(err, ErrAlreadyWritten) {
		t.Fatalf("second write error = %v, want ErrAlreadyWritten", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the output file, found %d entries", len(entries))
	}
}

func TestCSVWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "equipment.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write(sampleRecords()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records=%d, want 3", len(records))
	}
	if records[0][0] != "id" || records[0][4] != "slots" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][5] != `[["Fire"],["Water","Rare"]]` {
		t.Fatalf("conditions cell = %q", records[1][5])
	}
	if records[2][4] != "[]" || records[2][1] != models.UnknownName {
		t.Fatalf("basic row = %v", records[2])
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "equipment.json")

	writer, err := NewWriter("dual", jsonPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if err := writer.Write(sampleRecords()); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}

	if info, err := os.Stat(jsonPath); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
	if info, err := os.Stat(filepath.Join(dir, "equipment.csv")); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
}

func TestNewWriterUnknownFormat(t *testing.T) {
	if _, err := NewWriter("xml", filepath.Join(t.TempDir(), "x.xml")); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}
