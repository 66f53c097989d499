// Package insights produces lightweight journal insights.
//
// The insight is chosen pseudo-randomly from a fixed per-locale list; this is
// deliberately a demo, not a scored psychological assessment.
package insights

import (
	"log/slog"

	"github.com/UWellLabs/uwell/internal/models"
	"github.com/UWellLabs/uwell/internal/util"
)

var insightList = map[string][]string{
	models.LangEnglish: {
		"You have been showing up for yourself consistently. Keep the streak going.",
		"Your entries suggest evenings are your hardest time. A short wind-down routine may help.",
		"Small daily check-ins add up. Notice which activities leave you feeling lighter.",
		"Consider pairing journaling with a two-minute stretch; body and mood track together.",
		"Writing about what went well, even briefly, tends to lift the next day's mood.",
	},
	models.LangHindi: {
		"आप लगातार अपने लिए समय निकाल रहे हैं। इसे जारी रखें।",
		"आपकी प्रविष्टियाँ बताती हैं कि शाम का समय कठिन रहता है। सोने से पहले एक छोटी दिनचर्या मदद कर सकती है।",
		"रोज़ की छोटी जांच का असर बड़ा होता है। ध्यान दें कि कौन सी गतिविधियाँ आपको हल्का महसूस कराती हैं।",
		"जर्नलिंग के साथ दो मिनट की स्ट्रेचिंग जोड़ें; शरीर और मन साथ चलते हैं।",
		"जो अच्छा हुआ उसके बारे में लिखना अगले दिन का मूड बेहतर करता है।",
	},
}

// Pick returns one insight for the submitted entries. The entries themselves
// only gate the response; selection is pseudo-random by design.
func Pick(entries []models.JournalEntry, lang string) string {
	lang = models.NormalizeLang(lang)
	slog.Debug("insights.Pick: choosing insight", "entries", len(entries), "lang", lang)
	return util.PickRandom(insightList[lang])
}
