package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// AnswerKind tags which variant an Answer holds.
type AnswerKind uint8

const (
	// AnswerNone is a missing or unscoreable answer.
	AnswerNone AnswerKind = iota
	// AnswerSingle holds one option string.
	AnswerSingle
	// AnswerMultiple holds a set of option strings.
	AnswerMultiple
)

// Answer is either a single option or a set of options. Values are trimmed
// and deduplicated when the answer is built, so comparison sites never have
// to re-normalise.
type Answer struct {
	kind    AnswerKind
	text    string
	choices []string
}

// SingleAnswer builds a single-choice answer. Blank text yields an empty answer.
func SingleAnswer(text string) Answer {
	text = strings.TrimSpace(text)
	if text == "" {
		return Answer{}
	}
	return Answer{kind: AnswerSingle, text: text}
}

// MultipleAnswer builds a multiple-choice answer from the given options.
func MultipleAnswer(choices ...string) Answer {
	normalized := normalizeChoices(choices)
	if len(normalized) == 0 {
		return Answer{}
	}
	return Answer{kind: AnswerMultiple, choices: normalized}
}

func (a Answer) Kind() AnswerKind { return a.kind }

// IsEmpty reports whether nothing scoreable was submitted.
func (a Answer) IsEmpty() bool { return a.kind == AnswerNone }

// Text returns the single option, or the options joined by commas.
func (a Answer) Text() string {
	if a.kind == AnswerMultiple {
		return strings.Join(a.choices, ",")
	}
	return a.text
}

// Choices returns the answer as a normalised set. A single answer is read as
// a comma-separated list, so "A, C" and ["A","C"] produce the same set.
func (a Answer) Choices() []string {
	switch a.kind {
	case AnswerMultiple:
		out := make([]string, len(a.choices))
		copy(out, a.choices)
		return out
	case AnswerSingle:
		return normalizeChoices(strings.Split(a.text, ","))
	default:
		return nil
	}
}

// Equal compares two answers by variant and normalised content.
func (a Answer) Equal(b Answer) bool {
	if a.kind != b.kind {
		return false
	}
	if a.kind != AnswerMultiple {
		return a.text == b.text
	}
	return sameSet(a.choices, b.choices)
}

func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.kind {
	case AnswerSingle:
		return json.Marshal(a.text)
	case AnswerMultiple:
		return json.Marshal(a.choices)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON never fails on shape: strings become single answers, arrays
// become multiple answers and anything else is kept as an empty answer so a
// single malformed entry cannot reject a whole submission.
func (a *Answer) UnmarshalJSON(data []byte) error {
	*a = Answer{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			*a = SingleAnswer(s)
		}
	case '[':
		var items []any
		if err := json.Unmarshal(data, &items); err != nil {
			return nil
		}
		choices := make([]string, 0, len(items))
		for _, item := range items {
			switch v := item.(type) {
			case string:
				choices = append(choices, v)
			case float64:
				choices = append(choices, strconv.FormatFloat(v, 'f', -1, 64))
			case bool:
				choices = append(choices, strconv.FormatBool(v))
			}
		}
		*a = MultipleAnswer(choices...)
	}
	return nil
}

// Answers maps question ids to submitted answers.
type Answers map[int64]Answer

// ParseAnswers decodes a submission payload. The payload must be a non-empty
// JSON object keyed by integer question ids.
func ParseAnswers(raw json.RawMessage) (Answers, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("%w: answers are required and must be an object", ErrValidation)
	}
	var byKey map[string]Answer
	if err := json.Unmarshal(raw, &byKey); err != nil {
		return nil, fmt.Errorf("%w: answers: %v", ErrValidation, err)
	}
	if len(byKey) == 0 {
		return nil, fmt.Errorf("%w: at least one answer must be provided", ErrValidation)
	}

	answers := make(Answers, len(byKey))
	var invalid []string
	for key, answer := range byKey {
		id, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil {
			invalid = append(invalid, key)
			continue
		}
		answers[id] = answer
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return nil, fmt.Errorf("%w: invalid question ids in answers: %s", ErrValidation, strings.Join(invalid, ", "))
	}
	return answers, nil
}

func (a Answers) MarshalJSON() ([]byte, error) {
	byKey := make(map[string]Answer, len(a))
	for id, answer := range a {
		byKey[strconv.FormatInt(id, 10)] = answer
	}
	return json.Marshal(byKey)
}

func (a *Answers) UnmarshalJSON(data []byte) error {
	var byKey map[string]Answer
	if err := json.Unmarshal(data, &byKey); err != nil {
		return err
	}
	out := make(Answers, len(byKey))
	for key, answer := range byKey {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("answer key %q: %w", key, err)
		}
		out[id] = answer
	}
	*a = out
	return nil
}

func normalizeChoices(choices []string) []string {
	seen := make(map[string]struct{}, len(choices))
	out := make([]string, 0, len(choices))
	for _, c := range choices {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; !ok {
			return false
		}
	}
	return true
}
