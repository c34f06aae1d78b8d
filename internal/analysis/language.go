package analysis

// DefaultLanguage is used when no valid language is requested.
const DefaultLanguage = "en-US"

// Language is a supported output language.
type Language struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// SupportedLanguages lists the language codes accepted for explanations.
var SupportedLanguages = []Language{
	{Code: "en-US", Label: "English"},
	{Code: "hi-IN", Label: "Hindi"},
	{Code: "bn-IN", Label: "Bengali"},
	{Code: "ta-IN", Label: "Tamil"},
	{Code: "te-IN", Label: "Telugu"},
	{Code: "mr-IN", Label: "Marathi"},
	{Code: "gu-IN", Label: "Gujarati"},
}

// ValidLanguage reports whether code is a supported language code.
func ValidLanguage(code string) bool {
	for _, l := range SupportedLanguages {
		if l.Code == code {
			return true
		}
	}
	return false
}

func normalizeLanguage(code string) string {
	if ValidLanguage(code) {
		return code
	}
	return DefaultLanguage
}
