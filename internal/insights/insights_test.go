package insights

import (
	"testing"

	"github.com/UWellLabs/uwell/internal/models"
)

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestPickReturnsLocaleInsight(t *testing.T) {
	entries := []models.JournalEntry{{Mood: "ok", Text: "long day", At: "2026-08-28T10:00:00Z"}}

	for i := 0; i < 20; i++ {
		insight := Pick(entries, models.LangEnglish)
		if insight == "" {
			t.Fatal("Expected non-empty insight")
		}
		if !contains(insightList[models.LangEnglish], insight) {
			t.Fatalf("Insight not from English list: %q", insight)
		}
	}
}

func TestPickHindiLocale(t *testing.T) {
	insight := Pick(nil, "hi")
	if !contains(insightList[models.LangHindi], insight) {
		t.Errorf("Insight not from Hindi list: %q", insight)
	}
}

func TestPickUnknownLocaleFallsBackToEnglish(t *testing.T) {
	insight := Pick(nil, "fr")
	if !contains(insightList[models.LangEnglish], insight) {
		t.Errorf("Expected English fallback, got %q", insight)
	}
}
