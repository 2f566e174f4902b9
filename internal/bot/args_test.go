package bot

import (
	"errors"
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"/add", []string{"/add"}},
		{"/add  Review   X ", []string{"/add", "Review", "X"}},
		{`/add "Graph theory" 1.5`, []string{"/add", "Graph theory", "1.5"}},
		{`/add 'it''s'`, []string{"/add", "its"}},
		{`/add a\ b`, []string{"/add", "a b"}},
		{`/add ""`, []string{"/add", ""}},
	}
	for _, tc := range cases {
		got := tokenize(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("tokenize(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseAddArgs(t *testing.T) {
	cases := []struct {
		args   []string
		topic  string
		growth float64
		err    bool
	}{
		{[]string{"Review", "X"}, "Review X", 2, false},
		{[]string{"Graph", "theory", "1.5"}, "Graph theory", 1.5, false},
		{[]string{"Trees", "5"}, "Trees", 5, false},
		{[]string{"Trees", "1"}, "Trees", 1, false},
		{[]string{"2"}, "2", 2, false},
		{[]string{"Trees", "0.5"}, "Trees 0.5", 2, false},
		{[]string{"Trees", "9"}, "Trees 9", 2, false},
		{[]string{"Psalm", "23"}, "Psalm 23", 2, false},
		{[]string{"Read", "chapter", "12"}, "Read chapter 12", 2, false},
		{[]string{"Trees", "NaN"}, "Trees NaN", 2, false},
		{[]string{"Trees", "Inf"}, "Trees Inf", 2, false},
	}
	for _, tc := range cases {
		topic, growth, err := ParseAddArgs(tc.args, 2)
		if tc.err {
			if err == nil {
				t.Fatalf("%q: expected error", tc.args)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tc.args, err)
		}
		if topic != tc.topic || growth != tc.growth {
			t.Fatalf("%q: got (%q, %g) want (%q, %g)", tc.args, topic, growth, tc.topic, tc.growth)
		}
	}
}

func TestParseAddArgsNoTopic(t *testing.T) {
	for _, args := range [][]string{nil, {""}, {" ", "  "}} {
		if _, _, err := ParseAddArgs(args, 2); !errors.Is(err, errNoTopic) {
			t.Fatalf("%q: got %v want errNoTopic", args, err)
		}
	}
}
