package stream

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// runFilter feeds the tokens through a fresh filter and returns the visible
// text plus the ordered thinking transitions.
func runFilter(tokens []string) (string, []string) {
	var f thinkFilter
	var visible strings.Builder
	var transitions []string
	apply := func(cks []chunk) {
		for _, ck := range cks {
			if ck.enterThink {
				transitions = append(transitions, "enter")
			}
			if ck.exitThink {
				transitions = append(transitions, "exit")
			}
			visible.WriteString(ck.text)
		}
	}
	for _, tok := range tokens {
		apply(f.Feed(tok))
	}
	apply(f.Flush())
	return visible.String(), transitions
}

// chunkings splits s into every possible two-boundary tokenization plus a
// few fixed-width ones, enough to cover markers landing on any seam.
func chunkings(s string) [][]string {
	var out [][]string
	for i := 0; i <= len(s); i++ {
		for j := i; j <= len(s); j++ {
			out = append(out, []string{s[:i], s[i:j], s[j:]})
		}
	}
	for _, width := range []int{1, 2, 3, 5} {
		var toks []string
		for i := 0; i < len(s); i += width {
			end := i + width
			if end > len(s) {
				end = len(s)
			}
			toks = append(toks, s[i:end])
		}
		out = append(out, toks)
	}
	return out
}

// stripThink is the reference: remove every <think>...</think> span.
func stripThink(s string) string {
	var b strings.Builder
	for {
		open := strings.Index(s, thinkOpen)
		if open < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:open])
		rest := s[open+len(thinkOpen):]
		end := strings.Index(rest, thinkClose)
		if end < 0 {
			return b.String()
		}
		s = rest[end+len(thinkClose):]
	}
}

var _ = Describe("think filter", func() {
	It("passes plain text through untouched", func() {
		visible, transitions := runFilter([]string{"hello ", "world"})
		Expect(visible).To(Equal("hello world"))
		Expect(transitions).To(BeEmpty())
	})

	It("suppresses a think span and reports the transitions", func() {
		visible, transitions := runFilter([]string{"<think>", "pondering", "</think>", "answer"})
		Expect(visible).To(Equal("answer"))
		Expect(transitions).To(Equal([]string{"enter", "exit"}))
	})

	It("splits a marker glued to regular text in one token", func() {
		visible, _ := runFilter([]string{"before<think>hidden</think>after"})
		Expect(visible).To(Equal("beforeafter"))
	})

	It("handles several spans in a single token", func() {
		visible, transitions := runFilter([]string{"a<think>x</think>b<think>y</think>c"})
		Expect(visible).To(Equal("abc"))
		Expect(transitions).To(Equal([]string{"enter", "exit", "enter", "exit"}))
	})

	It("suppresses an unterminated span to end of stream", func() {
		visible, transitions := runFilter([]string{"done<think>still going"})
		Expect(visible).To(Equal("done"))
		Expect(transitions).To(Equal([]string{"enter"}))
	})

	It("emits a partial marker that never completes as text", func() {
		visible, _ := runFilter([]string{"a<th", "ird option"})
		Expect(visible).To(Equal("a<third option"))
	})

	DescribeTable("visible output is independent of token chunking",
		func(input string) {
			want := stripThink(input)
			for _, toks := range chunkings(input) {
				visible, _ := runFilter(toks)
				Expect(visible).To(Equal(want), "chunking %q", toks)
			}
		},
		Entry("span in the middle", "ab<think>secret</think>cd"),
		Entry("span at the start", "<think>secret</think>visible"),
		Entry("span at the end", "visible<think>secret</think>"),
		Entry("adjacent spans", "a<think>x</think><think>y</think>b"),
		Entry("angle brackets that are not markers", "a < b and b > a"),
		Entry("no spans at all", "plain text only"),
	)
})
