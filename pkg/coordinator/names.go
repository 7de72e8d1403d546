package coordinator

import (
	"regexp"
	"strings"
	"unicode"
)

var introductionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy name(?:'s| is)\s+(.+)`),
	regexp.MustCompile(`(?i)\bcall me\s+(.+)`),
	regexp.MustCompile(`(?i)\b(?:i am|i'm|im)\s+(.+)`),
	regexp.MustCompile(`(?i)\b(?:this is|it's|it is)\s+(.+)`),
	regexp.MustCompile(`(?i)\bname\s*[:=]\s*(.+)`),
}

// Words that follow "I'm" or "it's" without being a name, or that are replies
// rather than names.
var notNames = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "not": true, "so": true, "very": true,
	"fine": true, "good": true, "great": true, "ok": true, "okay": true, "well": true,
	"here": true, "back": true, "sorry": true, "sure": true, "just": true, "tired": true,
	"happy": true, "sad": true, "busy": true, "new": true, "hungry": true, "looking": true,
	"yes": true, "no": true, "yeah": true, "nope": true, "hi": true, "hello": true, "hey": true,
	"what": true, "why": true, "who": true, "how": true, "thanks": true, "thank": true,
	"i": true, "im": true, "i'm": true, "me": true, "my": true, "you": true, "it": true,
	"nothing": true, "nobody": true, "please": true, "unknown": true, "going": true, "doing": true,
	"from": true, "in": true, "at": true, "up": true, "on": true, "to": true, "of": true,
	"for": true, "with": true, "by": true, "out": true, "off": true, "over": true, "about": true,
	"raining": true, "snowing": true, "cold": true, "hot": true, "warm": true, "nice": true,
	"late": true, "early": true, "true": true, "right": true, "wrong": true, "cool": true,
	"bad": true, "all": true, "that": true, "this": true, "there": true, "done": true, "ready": true,
}

// Openers that make the text a question rather than an introduction. "will"
// and "may" are left out since they are also names.
var questionWords = map[string]bool{
	"where": true, "what": true, "what's": true, "whats": true, "who": true, "who's": true,
	"whos": true, "how": true, "how's": true, "hows": true, "why": true, "when": true,
	"which": true, "is": true, "are": true, "can": true, "could": true, "would": true,
	"do": true, "does": true, "did": true, "should": true,
}

const (
	maxNameWords = 3
	maxBareWords = 2
)

// ExtractName pulls a person's name out of a free-text introduction such as
// "my name is alice" or a bare "Alice". It returns false when the text does not
// look like an introduction.
func ExtractName(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" || isQuestion(text) {
		return "", false
	}

	for _, re := range introductionPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return cleanName(m[1])
		}
	}

	// A short bare answer is taken as the name itself.
	words := strings.Fields(text)
	if len(words) > maxBareWords {
		return "", false
	}
	for _, w := range words {
		if !isBareNameWord(strings.Trim(w, `"'.,!`)) {
			return "", false
		}
	}
	return cleanName(text)
}

func isQuestion(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	first := strings.ToLower(strings.Fields(text)[0])
	first = strings.Trim(first, `"',.!`)
	first = strings.ReplaceAll(first, "’", "'")
	return questionWords[first]
}

// isBareNameWord accepts a capitalised word or one made only of letters.
func isBareNameWord(w string) bool {
	if w == "" {
		return false
	}
	if unicode.IsUpper([]rune(w)[0]) {
		return true
	}
	for _, r := range w {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func cleanName(raw string) (string, bool) {
	if i := strings.IndexAny(raw, ".,!?;:\n("); i >= 0 {
		raw = raw[:i]
	}
	lower := strings.ToLower(raw)
	for _, sep := range []string{" and ", " but ", " from ", " nice ", " how "} {
		if i := strings.Index(lower, sep); i >= 0 {
			raw, lower = raw[:i], lower[:i]
		}
	}

	words := strings.Fields(raw)
	if len(words) == 0 || len(words) > maxNameWords {
		return "", false
	}

	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, `"'`)
		if w == "" || notNames[strings.ToLower(w)] || !isNameWord(w) {
			return "", false
		}
		out = append(out, titleCase(w))
	}
	return strings.Join(out, " "), true
}

func isNameWord(w string) bool {
	letters := 0
	for _, r := range w {
		switch {
		case unicode.IsLetter(r):
			letters++
		case r == '-' || r == '\'':
		default:
			return false
		}
	}
	return letters > 0
}

func titleCase(w string) string {
	runes := []rune(w)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
