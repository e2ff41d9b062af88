package quizgen

import (
	"crypto/sha256"
	"encoding/binary"
	"regexp"
	"sort"
	"strings"
)

// Option is one displayable answer option.
type Option struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// letterToken matches a standalone A-D reference like "Line A" or "C".
// Letters embedded in words (Banana, Data) do not count.
var letterToken = regexp.MustCompile(`\b[A-Da-d]\b`)

// ShuffleMultipleChoice orders answer options for display. The order is
// deterministic for given content, so re-rendering a lesson never moves
// the options around.
//
// When every option references lettered items over a shared template
// ("Line A" ... "Line D"), alphabetical order is kept: shuffling those
// would scramble the reference the letters point at.
func ShuffleMultipleChoice(answers, distractors []string) []Option {
	options := make([]Option, 0, len(answers)+len(distractors))
	for _, a := range answers {
		options = append(options, Option{Text: a, IsCorrect: true})
	}
	for _, d := range distractors {
		options = append(options, Option{Text: d, IsCorrect: false})
	}
	if hasLetterPattern(options) {
		sort.SliceStable(options, func(i, j int) bool {
			return strings.ToLower(options[i].Text) < strings.ToLower(options[j].Text)
		})
		return options
	}

	seed := contentSeed(optionTexts(options))
	sort.SliceStable(options, func(i, j int) bool {
		return rankOf(seed, options[i].Text) < rankOf(seed, options[j].Text)
	})
	return options
}

// ShuffleOrderItems returns a deterministic display order for the items
// of an ordering question. Input stays untouched: it holds the correct
// sequence.
func ShuffleOrderItems(items []string) []string {
	out := append([]string(nil), items...)
	seed := contentSeed(items)
	sort.SliceStable(out, func(i, j int) bool {
		return rankOf(seed, out[i]) < rankOf(seed, out[j])
	})
	return out
}

// ShuffleMatchRight returns a deterministic display order for the
// right-hand column of a match question.
func ShuffleMatchRight(rights []string) []string {
	return ShuffleOrderItems(rights)
}

// hasLetterPattern reports whether every option contains a standalone
// letter A-D and all options reduce to the same template once the letters
// are stripped.
func hasLetterPattern(options []Option) bool {
	if len(options) == 0 {
		return false
	}
	template := ""
	for i, opt := range options {
		if !letterToken.MatchString(opt.Text) {
			return false
		}
		stripped := letterToken.ReplaceAllString(opt.Text, "")
		if i == 0 {
			template = stripped
			continue
		}
		if stripped != template {
			return false
		}
	}
	return true
}

func optionTexts(options []Option) []string {
	out := make([]string, len(options))
	for i, opt := range options {
		out[i] = opt.Text
	}
	return out
}

// contentSeed hashes the sorted option texts, so the seed depends on the
// set of options and not their incoming order.
func contentSeed(texts []string) [32]byte {
	sorted := append([]string(nil), texts...)
	sort.Strings(sorted)
	return sha256.Sum256([]byte(strings.Join(sorted, "\x1f")))
}

// rankOf gives each text a stable position key under the seed.
func rankOf(seed [32]byte, text string) uint64 {
	h := sha256.New()
	h.Write(seed[:])
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}
