package agent

// Localization holds the per-language text used in prompts and fallbacks.
type Localization struct {
	Summary     string
	FundFlow    string
	Sentiment   string
	Fallback    string
	Instruction string
}

var localizations = map[string]Localization{
	"en": {
		Summary:     "📝 Summary",
		FundFlow:    "💸 Fund Flow",
		Sentiment:   "🚀 Sentiment",
		Fallback:    "📝 Summary: Market movement detected.\n\n💸 Fund Flow: Analyzing on-chain data.\n\n🚀 Sentiment: NEUTRAL 🤖\n\n#Bitcoin #Crypto #Sentix",
		Instruction: "Ensure the tweet is in English.",
	},
	"th": {
		Summary:     "📝 สรุป",
		FundFlow:    "💸 กระแสเงินทุน",
		Sentiment:   "🚀 ความรู้สึก",
		Fallback:    "📝 สรุป: ตรวจพบความเคลื่อนไหวของตลาด\n\n💸 กระแสเงินทุน: กำลังวิเคราะห์ข้อมูล On-chain\n\n🚀 ความรู้สึก: เป็นกลาง (NEUTRAL) 🤖\n\n#Bitcoin #Crypto #Sentix",
		Instruction: "Translate the tweet content to Thai. Translate the headers as specified below. Keep hashtags in English (e.g. #Bitcoin #Crypto).",
	},
}

// Localize returns the text for lang, defaulting to English.
func Localize(lang string) Localization {
	if l, ok := localizations[lang]; ok {
		return l
	}
	return localizations["en"]
}

// Supported reports whether lang has a localization.
func Supported(lang string) bool {
	_, ok := localizations[lang]
	return ok
}
