package assertions

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	FlagNumericFragment  = "contains_numeric_fragment"
	FlagDateOrTime       = "contains_date_or_time_fragment"
	FlagWeatherOrNews    = "contains_weather_or_news_fragment"
	FlagHeadlineLikeText = "contains_headline_like_text"
	FlagPipeSeparator    = "contains_pipe_separator"
)

var (
	numericFragmentRe = regexp.MustCompile(`\d`)
	dateOrTimeRe      = regexp.MustCompile(`\b\d{4}-\d{1,2}-\d{1,2}\b|\b\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}\b|\b\d{1,2}:\d{2}\b`)
	volatileVocabRe   = regexp.MustCompile(`(?i)\b(breaking( news)?|liveblog|live ?stream|live updates?|just in|latest news|nieuws van vandaag|video van vandaag|winterweer|weerbericht|weather forecast)\b`)

	bareNumberRe = regexp.MustCompile(`^\d+(?:[.,]\d+)?$`)
	bareURLRe    = regexp.MustCompile(`(?i)^https?://`)
	letterRe     = regexp.MustCompile(`[a-zA-Z]`)
)

const (
	headlineMinChars = 30
	headlineMinWords = 5
)

// DetectVolatilityFlags names the signals that suggest text will differ on
// the next run. Empty text has no flags.
func DetectVolatilityFlags(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}
	}

	flags := []string{}
	if numericFragmentRe.MatchString(text) {
		flags = append(flags, FlagNumericFragment)
	}
	if dateOrTimeRe.MatchString(text) {
		flags = append(flags, FlagDateOrTime)
	}
	if volatileVocabRe.MatchString(text) {
		flags = append(flags, FlagWeatherOrNews)
	}
	if isHeadlineLike(text) {
		flags = append(flags, FlagHeadlineLikeText)
	}
	if strings.Contains(text, "|") {
		flags = append(flags, FlagPipeSeparator)
	}
	return flags
}

func isHeadlineLike(text string) bool {
	if utf8.RuneCountInString(text) < headlineMinChars || len(strings.Fields(text)) < headlineMinWords {
		return false
	}
	var upper, lower bool
	for _, r := range text {
		upper = upper || unicode.IsUpper(r)
		lower = lower || unicode.IsLower(r)
	}
	return upper && lower
}

// IsNoisyText rejects text unsuitable for an assertion: too short or long,
// a bare number or URL, letterless, or carrying any volatility flag.
func IsNoisyText(value string) bool {
	text := strings.TrimSpace(value)
	if n := utf8.RuneCountInString(text); n < 2 || n > 120 {
		return true
	}
	if bareNumberRe.MatchString(text) || bareURLRe.MatchString(text) || !letterRe.MatchString(text) {
		return true
	}
	return len(DetectVolatilityFlags(text)) > 0
}
