package tgtext

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"
)

// MessageLimit is Telegram's maximum text message length in characters.
const MessageLimit = 4096

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) string { return html.EscapeString(s) }

// Mention renders a tg://user link so Telegram notifies the user by id.
// Falls back to the escaped plain name when the id is unknown.
func Mention(userID int64, name string) string {
	if userID == 0 {
		return Esc(name)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, userID, Esc(name))
}

// TruncRunes returns s truncated to at most n runes.
// It appends an ellipsis "…" when truncated.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	cut := 0
	for i, r := range s {
		count++
		if count == n {
			cut = i + utf8.RuneLen(r)
			continue
		}
		if count > n {
			if cut <= 0 {
				cut = i
			}
			return s[:cut] + "…"
		}
	}
	return s
}

// ChunkLines splits text into chunks of at most limit characters, breaking
// only at line boundaries so a chunk never ends mid-line (and therefore never
// inside a voter's name). A single line longer than the limit is split at
// ", " separators so list items stay whole; only a lone item longer than the
// limit is hard-split on rune boundaries.
func ChunkLines(text string, limit int) []string {
	if limit <= 0 {
		limit = MessageLimit
	}
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var b strings.Builder
	bLen := 0

	flush := func() {
		if bLen > 0 {
			chunks = append(chunks, b.String())
			b.Reset()
			bLen = 0
		}
	}

	for _, line := range strings.Split(text, "\n") {
		ll := utf8.RuneCountInString(line)
		if ll > limit {
			flush()
			chunks = append(chunks, splitLongLine(line, limit)...)
			continue
		}
		// +1 for the joining newline
		add := ll
		if bLen > 0 {
			add++
		}
		if bLen+add > limit {
			flush()
			add = ll
		}
		if bLen > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		bLen += add
	}
	flush()
	return chunks
}

// splitLongLine breaks one oversized line at ", " separators, keeping each
// comma-separated item (a voter name, a mention) whole. A single item longer
// than the limit falls back to a rune-boundary split.
func splitLongLine(line string, limit int) []string {
	var out []string
	var b strings.Builder
	bLen := 0

	flush := func() {
		if bLen > 0 {
			out = append(out, b.String())
			b.Reset()
			bLen = 0
		}
	}

	for _, item := range strings.SplitAfter(line, ", ") {
		il := utf8.RuneCountInString(item)
		if il > limit {
			flush()
			for utf8.RuneCountInString(item) > limit {
				part := strings.TrimSuffix(TruncRunes(item, limit), "…")
				out = append(out, part)
				item = item[len(part):]
			}
			if item != "" {
				b.WriteString(item)
				bLen = utf8.RuneCountInString(item)
			}
			continue
		}
		if bLen+il > limit {
			flush()
		}
		b.WriteString(item)
		bLen += il
	}
	flush()
	return out
}
