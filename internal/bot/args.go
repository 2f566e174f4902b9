package bot

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"topicbot/internal/config"
)

var errNoTopic = errors.New("missing topic")

// tokenize splits command text into tokens. Single or double quotes group
// words and a backslash escapes the next byte:
//
//	/add "Graph theory" 1.5
func tokenize(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var (
		out   []string
		buf   strings.Builder
		inQ   bool
		qChar byte
		esc   bool
		quote bool // current token was opened by a quote and may be empty
	)
	flush := func() {
		if buf.Len() > 0 || quote {
			out = append(out, buf.String())
			buf.Reset()
		}
		quote = false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if esc {
			buf.WriteByte(ch)
			esc = false
			continue
		}
		if ch == '\\' {
			esc = true
			continue
		}
		if inQ {
			if ch == qChar {
				inQ = false
				continue
			}
			buf.WriteByte(ch)
			continue
		}
		switch ch {
		case '"', '\'':
			inQ = true
			qChar = ch
			quote = true
		case ' ', '\t', '\n', '\r':
			flush()
		default:
			buf.WriteByte(ch)
		}
	}
	flush()
	return out
}

// ParseAddArgs reads "/add <topic...> [growth]". A trailing number in
// [1, MaxGrowth] is the growth factor when a topic precedes it. Any other
// trailing token, numbers out of range included, is part of the topic and
// def is used.
func ParseAddArgs(args []string, def float64) (topic string, growth float64, err error) {
	growth = def
	words := args
	if n := len(args); n > 1 {
		if g, ok := growthToken(args[n-1]); ok {
			growth = g
			words = args[:n-1]
		}
	}
	topic = strings.TrimSpace(strings.Join(words, " "))
	if topic == "" {
		return "", 0, errNoTopic
	}
	return topic, growth, nil
}

func growthToken(s string) (float64, bool) {
	g, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(g) || g < 1 || g > config.MaxGrowth {
		return 0, false
	}
	return g, true
}
