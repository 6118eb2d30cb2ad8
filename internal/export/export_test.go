package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ramonehamilton/commander-deckgen/internal/deck"
	"github.com/ramonehamilton/commander-deckgen/internal/storage/models"
)

func merenRecord() *deck.Record {
	return &deck.Record{
		Anchor: deck.Anchor{Name: "Meren of Clan Nel Toth", Identity: deck.MustIdentity("B", "G"), Resolved: true, PriceUSD: 0.5},
		Entries: []deck.Entry{
			{Name: "Sol Ring", Quantity: 1, Category: "Artifacts", Status: deck.Valid(), PriceUSD: 1.25},
			{Name: "Sakura-Tribe Elder", ProposedName: "Sakura Tribe Elder", Quantity: 1, Category: "Creatures", Status: deck.RescuedAs("Sakura-Tribe Elder"), Identity: deck.MustIdentity("G")},
			{Name: "Forest", Quantity: 30, Category: "Lands", Status: deck.Valid()},
			{Name: "Unresolved Card", Quantity: 1, Category: "Creatures", Status: deck.Unresolved()},
		},
	}
}

func TestWriteDeckText(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatText, merenRecord(), false); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	want := "1 Meren of Clan Nel Toth\n\n1 Sol Ring\n1 Sakura-Tribe Elder\n30 Forest\n"
	if buf.String() != want {
		t.Errorf("text export = %q, want %q", buf.String(), want)
	}
}

func TestWriteDeckText_NoCommander(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDeckText(&buf, &deck.Record{}); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
}

func TestWrite_TextRequiresRecord(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatText, []DeckRow{}, false); err == nil {
		t.Error("expected an error for a non-record value")
	}
}

func TestWrite_DeckCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatCSV, merenRecord(), false); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 6 {
		t.Fatalf("expected header + 5 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != "category,quantity,name,proposed_name,status,color_identity,price_usd" {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[1][0] != deck.CommanderCategory || rows[1][5] != "BG" || rows[1][6] != "0.50" {
		t.Errorf("unexpected commander row %v", rows[1])
	}
	if rows[3][3] != "Sakura Tribe Elder" || rows[3][4] != "rescued" {
		t.Errorf("unexpected rescued row %v", rows[3])
	}
}

func TestWrite_AttemptsCSV(t *testing.T) {
	attempts := []*models.RefinementAttempt{
		{ID: 1, SessionID: "s1", Attempt: 1, Outcome: models.OutcomeIncomplete, TotalSize: 92, CreatedAt: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
		{ID: 2, SessionID: "s1", Attempt: 2, Outcome: models.OutcomeComplete, TotalSize: 100, IsComplete: true},
	}

	var buf bytes.Buffer
	if err := Write(&buf, FormatCSV, attempts, false); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(rows))
	}
	if rows[0][0] != "id" || rows[0][1] != "session_id" {
		t.Errorf("unexpected header %v", rows[0])
	}
	last := len(rows[0]) - 1
	if rows[1][last] != "2026-01-01T12:00:00Z" {
		t.Errorf("unexpected created_at %q", rows[1][last])
	}
	if rows[2][last] != "" {
		t.Errorf("zero time should be empty, got %q", rows[2][last])
	}
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatJSON, DeckRows(merenRecord()), true); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var rows []DeckRow
	if err := json.Unmarshal(buf.Bytes(), &rows); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}
	if len(rows) != 5 || rows[0].Name != "Meren of Clan Nel Toth" {
		t.Errorf("unexpected rows %+v", rows)
	}
}

func TestWrite_EmptySlice(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatCSV, []DeckRow{}, false); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
}

func TestExporter_Overwrite(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "decks", "meren.txt")

	exporter := NewExporter(Options{Format: FormatText, FilePath: filePath})
	if err := exporter.Export(merenRecord()); err != nil {
		t.Fatalf("first export failed: %v", err)
	}
	if err := exporter.Export(merenRecord()); err == nil {
		t.Error("expected an error when the file exists and overwrite is off")
	}

	exporter = NewExporter(Options{Format: FormatJSON, FilePath: filePath, Overwrite: true, PrettyJSON: true})
	if err := exporter.Export(merenRecord()); err != nil {
		t.Fatalf("overwrite export failed: %v", err)
	}
	content, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), `"commander"`) {
		t.Errorf("expected JSON content, got %s", content)
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"csv", "json", "text"} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q): %v", s, err)
		}
	}
	if _, err := ParseFormat("arena"); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestGenerateFilename(t *testing.T) {
	name := GenerateFilename("deck", FormatText)
	if !strings.HasPrefix(name, "deck_") || !strings.HasSuffix(name, ".txt") {
		t.Errorf("unexpected filename %q", name)
	}
	if !strings.HasSuffix(GenerateFilename("attempts", FormatCSV), ".csv") {
		t.Error("csv filename should end in .csv")
	}
}
