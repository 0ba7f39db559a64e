package retrieval

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// Splitter cuts text into chunks of at most Size runes. Paragraphs are kept
// whole when they fit; longer ones are cut at sentence ends where possible,
// with Overlap runes carried into the next piece.
type Splitter struct {
	Size    int
	Overlap int
}

func NewSplitter(size, overlap int) Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return Splitter{Size: size, Overlap: overlap}
}

func (s Splitter) Split(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if t := strings.TrimSpace(cur.String()); t != "" {
			chunks = append(chunks, t)
		}
		cur.Reset()
		curLen = 0
	}
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		n := utf8.RuneCountInString(para)
		if n > s.Size {
			flush()
			chunks = append(chunks, s.splitLong(para)...)
			continue
		}
		sep := 0
		if curLen > 0 {
			sep = 2
		}
		if curLen+sep+n > s.Size {
			flush()
			sep = 0
		}
		if sep > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
		curLen += sep + n
	}
	flush()
	return chunks
}

var sentenceEnds = []string{"。", "！", "？", ". ", "! ", "? ", "\n", "；", "; "}

func (s Splitter) splitLong(para string) []string {
	runes := []rune(para)
	var out []string
	for start := 0; start < len(runes); {
		end := start + s.Size
		if end >= len(runes) {
			out = append(out, strings.TrimSpace(string(runes[start:])))
			break
		}
		window := string(runes[start:end])
		if cut := lastSentenceEnd(window); cut > s.Size/2 {
			end = start + cut
		}
		out = append(out, strings.TrimSpace(string(runes[start:end])))
		next := end - s.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// lastSentenceEnd returns the rune offset just past the last sentence
// terminator in s, or -1.
func lastSentenceEnd(s string) int {
	best := -1
	for _, sep := range sentenceEnds {
		if i := strings.LastIndex(s, sep); i >= 0 {
			pos := utf8.RuneCountInString(s[:i]) + utf8.RuneCountInString(sep)
			if pos > best {
				best = pos
			}
		}
	}
	return best
}
