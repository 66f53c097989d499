// Package locale holds the static localized strings served by U-Well.
//
// The tables are read-only leaf data. Locales outside the table fall back to
// English via models.NormalizeLang at the call sites.
package locale

import "github.com/UWellLabs/uwell/internal/models"

// Apology is the soft-failure reply sent after provider retries are exhausted.
var Apology = map[string]string{
	models.LangEnglish: "I'm sorry, I'm having trouble responding right now. Please try again in a moment.",
	models.LangHindi:   "क्षमा करें, अभी जवाब देने में समस्या हो रही है। कृपया थोड़ी देर बाद फिर कोशिश करें।",
}

// EmptyReply is returned when the provider answered but produced no usable text.
var EmptyReply = map[string]string{
	models.LangEnglish: "I could not generate a response. Could you rephrase that?",
	models.LangHindi:   "मैं कोई जवाब तैयार नहीं कर सका। क्या आप इसे दोबारा कह सकते हैं?",
}

// CrisisMessage is the server's own crisis reply, used when the keyword safety
// net fires regardless of what the model classified.
var CrisisMessage = map[string]string{
	models.LangEnglish: "I'm really sorry you're feeling this way. You are not alone, and help is available right now. Please reach out to one of these helplines — they are free and confidential.",
	models.LangHindi:   "मुझे बहुत दुख है कि आप ऐसा महसूस कर रहे हैं। आप अकेले नहीं हैं, और मदद अभी उपलब्ध है। कृपया इनमें से किसी हेल्पलाइन से संपर्क करें — ये निःशुल्क और गोपनीय हैं।",
}

// FallbackSummary describes the canned analysis used when the pose service is
// unreachable.
var FallbackSummary = map[string]string{
	models.LangEnglish: "Your posture looks good overall.",
	models.LangHindi:   "आपकी मुद्रा कुल मिलाकर अच्छी दिख रही है।",
}

// FallbackNotes explains why the canned analysis was substituted.
var FallbackNotes = map[string]string{
	models.LangEnglish: "The analysis service was unreachable, so this is a general assessment.",
	models.LangHindi:   "विश्लेषण सेवा उपलब्ध नहीं थी, इसलिए यह एक सामान्य आकलन है।",
}

// FallbackStep is the single maintenance recommendation in the canned analysis.
var FallbackStep = map[string]models.Step{
	models.LangEnglish: {
		Title:  "Posture Maintenance",
		Detail: "Keep upright posture; avoid staying in one position for too long.",
	},
	models.LangHindi: {
		Title:  "स्थिति बनाए रखें",
		Detail: "सही मुद्रा बनाए रखें; लंबे समय तक एक ही स्थिति न रखें।",
	},
}

// Get looks up a string table entry, falling back to English.
func Get(table map[string]string, lang string) string {
	if v, ok := table[models.NormalizeLang(lang)]; ok {
		return v
	}
	return table[models.LangEnglish]
}
