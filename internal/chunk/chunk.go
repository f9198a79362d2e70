// Package chunk segments free-form text into sentence-aligned chunks for the
// extraction pipeline.
//
// Chunks are assembled by greedy accumulation of whole sentences up to a
// character budget, with a configurable number of trailing sentences repeated
// at the start of the next chunk so that relations spanning a sentence
// boundary are seen by at least one chunk in full. Offsets always index the
// normalized input string (see [Normalize]), so downstream consumers can
// recover the exact source span of any chunk.
package chunk

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TextChunk is one contiguous, sentence-aligned window of the normalized
// input. Index is assigned in document order and never reordered.
type TextChunk struct {
	// Index is the position of this chunk in document order.
	Index int

	// Text is the chunk content with trailing whitespace trimmed.
	Text string

	// StartOffset and EndOffset delimit the chunk's span in the normalized
	// input, inclusive/exclusive. The span may end in whitespace that Text
	// does not carry.
	StartOffset int
	EndOffset   int
}

// Options tunes the chunker.
type Options struct {
	// MaxChars is the greedy accumulation limit per chunk.
	MaxChars int

	// OverlapSentences is the number of trailing sentences repeated at the
	// start of the next chunk.
	OverlapSentences int

	// PreserveSentences forbids splitting inside a sentence: a single
	// sentence longer than MaxChars is emitted as a one-sentence chunk.
	// When false, oversize sentences are hard-split at MaxChars runes.
	PreserveSentences bool
}

// Normalize canonicalises line endings: CRLF and bare CR become \n.
// Every offset in the pipeline refers to the string returned here.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// Chunk segments text (which must already be normalized) into chunks.
// Empty or whitespace-only input yields no chunks.
func Chunk(text string, opts Options) []TextChunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if opts.MaxChars < 1 {
		opts.MaxChars = 1
	}
	if opts.OverlapSentences < 0 {
		opts.OverlapSentences = 0
	}

	sentences := splitSentences(text)
	if !opts.PreserveSentences {
		sentences = hardSplit(text, sentences, opts.MaxChars)
	}
	if len(sentences) == 0 {
		return nil
	}

	var chunks []TextChunk
	cursor := 0
	for cursor < len(sentences) {
		end := cursor + 1
		for end < len(sentences) {
			if chunkLen(text, sentences[cursor], sentences[end]) > opts.MaxChars {
				break
			}
			end++
		}

		start := sentences[cursor].start
		stop := sentences[end-1].end
		chunks = append(chunks, TextChunk{
			Index:       len(chunks),
			Text:        strings.TrimRight(text[start:stop], " \t\n"),
			StartOffset: start,
			EndOffset:   stop,
		})

		if end == len(sentences) {
			break
		}
		step := (end - cursor) - opts.OverlapSentences
		if step < 1 {
			step = 1
		}
		cursor += step
	}
	return chunks
}

// span delimits one sentence in the source text. Spans tile the input: each
// sentence carries its trailing whitespace, so span boundaries are seamless.
type span struct {
	start, end int
}

// chunkLen is the character count the chunk would have if it covered the
// sentences from first through last, after trailing-whitespace trim.
func chunkLen(text string, first, last span) int {
	return len(strings.TrimRight(text[first.start:last.end], " \t\n"))
}

// sentence terminators and the closers that may trail them.
const terminators = ".!?"
const closers = "\"')”’»"

// splitSentences finds sentence boundaries: a run of terminators (plus
// closing quotes/brackets) followed by whitespace or end of input, or a
// newline. Whitespace-only spans are merged into their neighbour so that no
// sentence is blank.
func splitSentences(text string) []span {
	var spans []span
	start := 0
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case strings.ContainsRune(terminators, r):
			j := i + size
			for j < len(text) {
				r2, s2 := utf8.DecodeRuneInString(text[j:])
				if !strings.ContainsRune(terminators, r2) && !strings.ContainsRune(closers, r2) {
					break
				}
				j += s2
			}
			if j >= len(text) || isSpaceAt(text, j) {
				j = absorbSpace(text, j)
				spans = append(spans, span{start, j})
				start = j
			}
			i = j
		case r == '\n':
			j := absorbSpace(text, i)
			spans = append(spans, span{start, j})
			start = j
			i = j
		default:
			i += size
		}
	}
	if start < len(text) {
		spans = append(spans, span{start, len(text)})
	}
	return mergeBlank(text, spans)
}

// absorbSpace extends i through any whitespace run.
func absorbSpace(text string, i int) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}

func isSpaceAt(text string, i int) bool {
	r, _ := utf8.DecodeRuneInString(text[i:])
	return unicode.IsSpace(r)
}

// mergeBlank folds whitespace-only spans into their neighbour so chunk
// assembly never counts a blank sentence. Tiling is preserved: merged spans
// stay contiguous.
func mergeBlank(text string, spans []span) []span {
	var out []span
	for _, s := range spans {
		if len(out) > 0 {
			prev := &out[len(out)-1]
			blank := strings.TrimSpace(text[s.start:s.end]) == ""
			prevBlank := strings.TrimSpace(text[prev.start:prev.end]) == ""
			if blank || prevBlank {
				prev.end = s.end
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// hardSplit cuts any sentence longer than maxChars into maxChars-rune pieces.
// Used only when Options.PreserveSentences is false.
func hardSplit(text string, spans []span, maxChars int) []span {
	var out []span
	for _, s := range spans {
		if len(strings.TrimRight(text[s.start:s.end], " \t\n")) <= maxChars {
			out = append(out, s)
			continue
		}
		pos := s.start
		count := 0
		pieceStart := s.start
		for pos < s.end {
			_, size := utf8.DecodeRuneInString(text[pos:])
			pos += size
			count++
			if count == maxChars {
				out = append(out, span{pieceStart, pos})
				pieceStart = pos
				count = 0
			}
		}
		if pieceStart < s.end {
			out = append(out, span{pieceStart, s.end})
		}
	}
	return out
}
