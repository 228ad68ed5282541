package judge

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rhuss/formchat/pkg/form"
)

var (
	yesWords = map[string]bool{
		"yes": true, "y": true, "yeah": true, "yea": true, "yep": true, "yup": true,
		"sure": true, "affirmative": true, "absolutely": true, "definitely": true,
		"certainly": true, "correct": true, "true": true, "ok": true, "okay": true,
	}
	noWords = map[string]bool{
		"no": true, "n": true, "nope": true, "nah": true, "negative": true,
		"never": true, "false": true, "didn't": true,
	}
	yesPhrases = []string{"of course", "i do", "i did", "i have"}
	noPhrases  = []string{"no way", "not really", "i don't", "i didn't", "i haven't"}

	// Non-answers that would otherwise be read as a No vote.
	unsurePhrases = []string{
		"don't know", "dont know", "do not know", "no idea", "no clue",
		"not sure", "unsure", "never mind", "nevermind", "not applicable",
		"n a", "can't say", "cannot say", "can't remember", "don't remember",
	}

	ordinals = map[string]int{
		"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
		"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
	}
	numberWords = map[string]int{
		"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
		"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	}

	wordPattern   = regexp.MustCompile(`[\p{L}\p{N}']+`)
	numberPattern = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)
	outOfPattern  = regexp.MustCompile(`(-?\d+)\s*(?:/|out of)\s*\d+`)
	datePattern   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
)

// Match interprets a raw answer under the type policy of k. It returns the
// normalized value, or a reason when the answer is not acceptable.
func Match(k form.Kind, raw string) (any, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ReasonNoMatch
	}
	switch k := k.(type) {
	case form.Text:
		return raw, ""
	case form.MultipleChoice:
		return matchOption(k.Options, raw)
	case form.Dropdown:
		return matchOption(k.Options, raw)
	case form.YesNo:
		return matchYesNo(raw)
	case form.Rating:
		return matchRating(k, raw)
	case form.Date:
		return matchDate(raw)
	default:
		panic(fmt.Sprintf("judge: unhandled kind %T", k))
	}
}

// Normalize checks a value extracted by a language model against the type
// policy of k and returns its canonical form.
func Normalize(k form.Kind, value any) (any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case string:
		got, reason := Match(k, v)
		return got, reason == ""
	case bool:
		if _, ok := k.(form.YesNo); !ok {
			return nil, false
		}
		if v {
			return "Yes", true
		}
		return "No", true
	case float64:
		if v != math.Trunc(v) {
			return nil, false
		}
		got, reason := Match(k, strconv.Itoa(int(v)))
		return got, reason == ""
	case int:
		got, reason := Match(k, strconv.Itoa(v))
		return got, reason == ""
	default:
		return nil, false
	}
}

func words(s string) []string {
	return wordPattern.FindAllString(strings.ToLower(s), -1)
}

func matchOption(options []string, raw string) (any, string) {
	lower := strings.ToLower(raw)
	trimmed := strings.Trim(lower, " .!?\"'")
	for _, o := range options {
		if strings.EqualFold(o, trimmed) {
			return o, ""
		}
	}

	// Phrase containment on word boundaries.
	var hits []string
	padded := " " + strings.Join(words(raw), " ") + " "
	for _, o := range options {
		needle := strings.Join(words(o), " ")
		if needle != "" && strings.Contains(padded, " "+needle+" ") {
			hits = append(hits, o)
		}
	}
	hits = dropContained(hits)
	if len(hits) == 1 {
		return hits[0], ""
	}
	if len(hits) > 1 {
		return nil, ReasonAmbiguous
	}

	// Positional references: "the first one", "2", "option 3", "the last".
	pos := 0
	ordinal := false
	for _, w := range words(raw) {
		// "one" after "second" or "last" is a filler, not a position.
		if ordinal && (w == "one" || w == "ones") {
			ordinal = false
			continue
		}
		ordinal = false
		n := 0
		if o, ok := ordinals[w]; ok {
			n, ordinal = o, true
		} else if w == "last" {
			n, ordinal = len(options), true
		} else if d, err := strconv.Atoi(w); err == nil {
			n = d
		} else if nw, ok := numberWords[w]; ok {
			n = nw
		}
		if n == 0 {
			continue
		}
		if pos != 0 && pos != n {
			return nil, ReasonAmbiguous
		}
		pos = n
	}
	if pos >= 1 && pos <= len(options) {
		return options[pos-1], ""
	}
	return nil, ReasonNoMatch
}

// dropContained removes hits whose text is part of a longer hit, so that
// "Online" loses to "Online hybrid" when both match.
func dropContained(hits []string) []string {
	var out []string
	for i, h := range hits {
		inner := false
		for j, other := range hits {
			if i != j && len(other) > len(h) && strings.Contains(strings.ToLower(other), strings.ToLower(h)) {
				inner = true
				break
			}
		}
		if !inner {
			out = append(out, h)
		}
	}
	return out
}

func matchYesNo(raw string) (any, string) {
	lower := " " + strings.Join(words(raw), " ") + " "
	for _, p := range unsurePhrases {
		if strings.Contains(lower, " "+p+" ") {
			return nil, ReasonNoMatch
		}
	}
	yes, no := false, false
	for _, p := range noPhrases {
		if strings.Contains(lower, " "+p+" ") {
			no = true
		}
	}
	for _, p := range yesPhrases {
		if strings.Contains(lower, " "+p+" ") {
			yes = true
		}
	}
	for _, w := range words(raw) {
		if yesWords[w] {
			yes = true
		}
		if noWords[w] {
			no = true
		}
	}
	switch {
	case yes && !no:
		return "Yes", ""
	case no && !yes:
		return "No", ""
	case yes && no:
		return nil, ReasonAmbiguous
	default:
		return nil, ReasonNoMatch
	}
}

func matchRating(k form.Rating, raw string) (any, string) {
	lower := strings.ToLower(raw)
	var nums []string
	if m := outOfPattern.FindStringSubmatch(lower); m != nil {
		nums = []string{m[1]}
	} else {
		nums = numberPattern.FindAllString(lower, -1)
		for _, w := range words(lower) {
			if n, ok := numberWords[w]; ok {
				nums = append(nums, strconv.Itoa(n))
			}
		}
	}
	if len(nums) == 0 {
		return nil, ReasonNoMatch
	}
	distinct := map[string]bool{}
	for _, n := range nums {
		distinct[n] = true
	}
	if len(distinct) > 1 {
		return nil, ReasonAmbiguous
	}
	n, err := strconv.Atoi(nums[0])
	if err != nil {
		return nil, ReasonBadFormat
	}
	if n < k.Min || n > k.Max {
		return nil, ReasonOutOfRange
	}
	return n, ""
}

func matchDate(raw string) (any, string) {
	found := datePattern.FindAllString(raw, -1)
	switch len(found) {
	case 0:
		return nil, ReasonBadFormat
	case 1:
	default:
		return nil, ReasonAmbiguous
	}
	d, err := time.Parse(form.DateLayout, found[0])
	if err != nil {
		return nil, ReasonBadFormat
	}
	return d.Format(form.DateLayout), ""
}
