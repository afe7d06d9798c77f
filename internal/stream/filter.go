package stream

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// chunk is one unit flowing through the token queue: visible text and/or a
// thinking-state transition, in the order they occurred.
type chunk struct {
	text       string
	enterThink bool
	exitThink  bool
}

// thinkFilter strips <think>...</think> spans from a token stream. Markers
// are matched by literal substring split, so a marker glued to regular text
// in one token is handled, and a marker split across two tokens is handled by
// carrying a partial-marker suffix over to the next Feed.
type thinkFilter struct {
	thinking bool
	carry    string
}

// Feed consumes one raw token and returns the ordered chunks it produced.
func (f *thinkFilter) Feed(token string) []chunk {
	s := f.carry + token
	f.carry = ""

	var out []chunk
	for s != "" {
		if f.thinking {
			idx := strings.Index(s, thinkClose)
			if idx < 0 {
				// Everything is suppressed; hold back a suffix that could be
				// the start of the closing marker.
				f.carry = markerSuffix(s, thinkClose)
				return out
			}
			f.thinking = false
			out = append(out, chunk{exitThink: true})
			s = s[idx+len(thinkClose):]
			continue
		}

		idx := strings.Index(s, thinkOpen)
		if idx < 0 {
			keep := markerSuffix(s, thinkOpen)
			if text := s[:len(s)-len(keep)]; text != "" {
				out = append(out, chunk{text: text})
			}
			f.carry = keep
			return out
		}

		if text := s[:idx]; text != "" {
			out = append(out, chunk{text: text})
		}
		f.thinking = true
		out = append(out, chunk{enterThink: true})
		s = s[idx+len(thinkOpen):]
	}

	return out
}

// Flush releases any held-back text at end of stream. A partial marker that
// never completed is ordinary text.
func (f *thinkFilter) Flush() []chunk {
	if f.carry == "" || f.thinking {
		f.carry = ""
		return nil
	}
	text := f.carry
	f.carry = ""
	return []chunk{{text: text}}
}

// markerSuffix returns the longest proper suffix of s that is a prefix of
// marker.
func markerSuffix(s, marker string) string {
	max := len(marker) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasPrefix(marker, s[len(s)-n:]) {
			return s[len(s)-n:]
		}
	}
	return ""
}
