// Package crisis implements the keyword safety net and the static helpline
// table for U-Well.
//
// The keyword scan runs on the raw user input for every chat request and wins
// over whatever the language model classified, so helpline referrals never
// depend on model behavior.
package crisis

import (
	"log/slog"
	"strings"

	"github.com/UWellLabs/uwell/internal/models"
)

// keywords are matched as lower-cased substrings of the latest user message.
// Only the latest message is scanned, not the full history.
var keywords = []string{
	"suicide",
	"suicidal",
	"kill myself",
	"end my life",
	"want to die",
	"wish i was dead",
	"hopeless",
	"no reason to live",
	"self harm",
	"hurt myself",
	"आत्महत्या",
	"मरना चाहता",
	"मरना चाहती",
	"जीना नहीं चाहता",
	"जीना नहीं चाहती",
	"खुद को नुकसान",
}

// helplines is the static per-locale referral table. Both locales currently
// share the same Indian services; the split keeps room for regional numbers.
var helplines = map[string][]models.Helpline{
	models.LangEnglish: {
		{Name: "AASRA", Phone: "+91-9820466726"},
		{Name: "NIMHANS", Phone: "080-46110007"},
	},
	models.LangHindi: {
		{Name: "AASRA", Phone: "+91-9820466726"},
		{Name: "NIMHANS", Phone: "080-46110007"},
	},
}

// Detect reports whether the message contains a crisis keyword.
func Detect(message string) bool {
	lowered := strings.ToLower(message)
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			slog.Debug("crisis.Detect: keyword matched", "keyword", kw)
			return true
		}
	}
	return false
}

// Helplines returns the referral list for a locale. The result is never empty.
func Helplines(lang string) []models.Helpline {
	if list, ok := helplines[models.NormalizeLang(lang)]; ok {
		return list
	}
	return helplines[models.LangEnglish]
}
