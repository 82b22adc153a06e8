// Package classify holds the pure text heuristics the conversation engine
// relies on: emergency keyword detection, sentiment scoring, free-text
// property matching, and tenant-name extraction from registration replies.
// They sit behind the Classifier interface so better implementations can be
// swapped in without touching the orchestration state machine.
package classify

import (
	"strings"

	"github.com/mk-162/fixMate/internal/store"
)

// Classifier is the pluggable text-heuristics boundary.
type Classifier interface {
	// DetectEmergency returns the emergency keywords found in text, in
	// keyword-list order. Empty slice means no emergency indicators.
	DetectEmergency(text string) []string

	// AssessSentiment scores a tenant message. See Sentiment for the
	// labeling contract.
	AssessSentiment(text string) Sentiment

	// MatchProperty returns the first candidate whose name or address
	// appears in text (case-insensitive substring), or nil.
	MatchProperty(text string, candidates []store.Property) *store.Property

	// ExtractName pulls a tenant name out of a registration reply by
	// stripping a greeting prefix and the matched property name.
	ExtractName(reply, propertyName string) string
}

// Sentiment is the result of the keyword-count heuristic.
//
// Score = (positive - negative) / (positive + negative + 1), which is
// clamped to (-1, 1) by construction. Label is "positive" above 0.3,
// "negative" below -0.3, otherwise "neutral", with an "_urgent" suffix
// when any urgency keyword is present.
type Sentiment struct {
	Label    string
	Score    float64
	Positive int
	Negative int
	Urgent   int
}

// Emergency keywords that trigger immediate escalation.
var emergencyKeywords = []string{
	"gas leak", "smell gas", "gas smell", "burning smell", "smoke", "fire",
	"flooding", "burst pipe", "water everywhere", "electrical fire",
	"sparks", "exposed wire", "no heating", "freezing", "carbon monoxide",
	"break-in", "broken lock", "intruder", "emergency",
}

var positiveWords = []string{
	"thanks", "thank you", "great", "perfect", "amazing", "worked", "fixed",
	"brilliant", "helpful",
}

var negativeWords = []string{
	"frustrated", "angry", "annoyed", "terrible", "useless", "waste",
	"still not", "doesn't work", "broken",
}

var urgentWords = []string{
	"urgent", "emergency", "asap", "immediately", "help", "please help",
}

// Keywords is the default keyword-based Classifier.
type Keywords struct{}

// NewKeywords returns the default keyword classifier.
func NewKeywords() *Keywords { return &Keywords{} }

func (k *Keywords) DetectEmergency(text string) []string {
	lower := strings.ToLower(text)
	var detected []string
	for _, kw := range emergencyKeywords {
		if strings.Contains(lower, kw) {
			detected = append(detected, kw)
		}
	}
	return detected
}

func (k *Keywords) AssessSentiment(text string) Sentiment {
	lower := strings.ToLower(text)

	count := func(words []string) int {
		n := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				n++
			}
		}
		return n
	}

	s := Sentiment{
		Positive: count(positiveWords),
		Negative: count(negativeWords),
		Urgent:   count(urgentWords),
	}

	if s.Positive+s.Negative > 0 {
		s.Score = float64(s.Positive-s.Negative) / float64(s.Positive+s.Negative+1)
	}

	switch {
	case s.Score > 0.3:
		s.Label = "positive"
	case s.Score < -0.3:
		s.Label = "negative"
	default:
		s.Label = "neutral"
	}
	if s.Urgent > 0 {
		s.Label += "_urgent"
	}
	return s
}

func (k *Keywords) MatchProperty(text string, candidates []store.Property) *store.Property {
	lower := strings.ToLower(text)
	for i := range candidates {
		name := strings.ToLower(candidates[i].Name)
		address := strings.ToLower(candidates[i].Address)
		if name != "" && strings.Contains(lower, name) {
			return &candidates[i]
		}
		if address != "" && strings.Contains(lower, address) {
			return &candidates[i]
		}
	}
	return nil
}

// Greeting prefixes stripped from registration replies before the
// remainder is treated as the tenant's name.
var greetingPrefixes = []string{
	"my name is ", "i'm ", "i am ", "this is ", "hi i'm ", "hi, i'm ",
}

func (k *Keywords) ExtractName(reply, propertyName string) string {
	name := strings.TrimSpace(reply)

	propLower := strings.ToLower(propertyName)
	if propLower != "" && strings.Contains(strings.ToLower(reply), propLower) {
		part := strings.SplitN(strings.ToLower(reply), propLower, 2)[0]
		part = strings.TrimSpace(part)
		if part != "" {
			for _, prefix := range greetingPrefixes {
				if strings.HasPrefix(part, prefix) {
					part = part[len(prefix):]
					break
				}
			}
			part = strings.TrimSpace(strings.Trim(part, ",.!-"))
			if part == "" {
				return "Tenant"
			}
			return title(part)
		}
	}
	if name == "" {
		return "Tenant"
	}
	return name
}

// title capitalizes the first letter of each space-separated word.
func title(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
