package classify

import (
	"reflect"
	"testing"

	"github.com/mk-162/fixMate/internal/store"
)

func TestDetectEmergency(t *testing.T) {
	k := NewKeywords()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "no indicators",
			text: "The kitchen tap is dripping a little",
			want: nil,
		},
		{
			name: "single keyword",
			text: "I think there's a GAS LEAK in the kitchen",
			want: []string{"gas leak"},
		},
		{
			name: "multiple keywords in list order",
			text: "there is smoke and flooding from a burst pipe",
			want: []string{"smoke", "flooding", "burst pipe"},
		},
		{
			name: "substring of a longer word",
			text: "the firealarm battery beeps",
			want: []string{"fire"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := k.DetectEmergency(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DetectEmergency(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestAssessSentiment_Labels(t *testing.T) {
	k := NewKeywords()

	tests := []struct {
		name      string
		text      string
		wantLabel string
	}{
		{
			name:      "no keywords is neutral with zero score",
			text:      "the boiler makes a clicking noise",
			wantLabel: "neutral",
		},
		{
			name:      "positive words",
			text:      "thanks, that worked, you're brilliant",
			wantLabel: "positive",
		},
		{
			name:      "negative words",
			text:      "this is terrible, I'm frustrated and it's still not fixed... broken again",
			wantLabel: "negative",
		},
		{
			name:      "urgent suffix on neutral",
			text:      "please help asap",
			wantLabel: "neutral_urgent",
		},
		{
			name:      "urgent suffix on negative",
			text:      "urgent! still not working, this is useless and I'm angry",
			wantLabel: "negative_urgent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := k.AssessSentiment(tt.text)
			if got.Label != tt.wantLabel {
				t.Errorf("AssessSentiment(%q).Label = %q (score %.2f), want %q",
					tt.text, got.Label, got.Score, tt.wantLabel)
			}
		})
	}
}

func TestAssessSentiment_ScoreBounds(t *testing.T) {
	k := NewKeywords()

	// Only positive words: score must land in (0, 1).
	pos := k.AssessSentiment("thanks thank you great perfect amazing worked fixed brilliant helpful")
	if pos.Score <= 0 || pos.Score >= 1 {
		t.Errorf("all-positive score = %.3f, want in (0, 1)", pos.Score)
	}

	// Only negative words: score must land in (-1, 0).
	neg := k.AssessSentiment("frustrated angry annoyed terrible useless waste")
	if neg.Score >= 0 || neg.Score <= -1 {
		t.Errorf("all-negative score = %.3f, want in (-1, 0)", neg.Score)
	}

	// No matches at all: score stays exactly zero.
	none := k.AssessSentiment("the wardrobe door squeaks")
	if none.Score != 0 {
		t.Errorf("no-keyword score = %.3f, want 0", none.Score)
	}
}

func TestMatchProperty(t *testing.T) {
	k := NewKeywords()
	candidates := []store.Property{
		{Name: "Rose Cottage", Address: "12 Garden Lane"},
		{Name: "Oak House", Address: "3 Mill Road"},
	}

	tests := []struct {
		name string
		text string
		want string // matched property name, "" for nil
	}{
		{name: "name match case-insensitive", text: "I live at rose cottage", want: "Rose Cottage"},
		{name: "address match", text: "my flat is on 3 mill road", want: "Oak House"},
		{name: "no match", text: "somewhere else entirely", want: ""},
		{name: "empty text", text: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := k.MatchProperty(tt.text, candidates)
			if tt.want == "" {
				if got != nil {
					t.Errorf("MatchProperty(%q) = %v, want nil", tt.text, got)
				}
				return
			}
			if got == nil || got.Name != tt.want {
				t.Errorf("MatchProperty(%q) = %v, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestExtractName(t *testing.T) {
	k := NewKeywords()

	tests := []struct {
		name     string
		reply    string
		property string
		want     string
	}{
		{
			name:     "greeting prefix stripped",
			reply:    "my name is jane smith, Rose Cottage",
			property: "Rose Cottage",
			want:     "Jane Smith",
		},
		{
			name:     "bare name before property",
			reply:    "John, Oak House",
			property: "Oak House",
			want:     "John",
		},
		{
			name:     "reply that is only the property name falls back to the raw reply",
			reply:    "Rose Cottage",
			property: "Rose Cottage",
			want:     "Rose Cottage",
		},
		{
			name:     "no property mention keeps whole reply",
			reply:    "Alex Morgan",
			property: "Rose Cottage",
			want:     "Alex Morgan",
		},
		{
			name:     "empty reply",
			reply:    "   ",
			property: "Rose Cottage",
			want:     "Tenant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := k.ExtractName(tt.reply, tt.property)
			if got != tt.want {
				t.Errorf("ExtractName(%q, %q) = %q, want %q", tt.reply, tt.property, got, tt.want)
			}
		})
	}
}
