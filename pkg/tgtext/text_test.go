package tgtext

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 4, "hell…"},
		{"привет", 3, "при…"},
		{"", 3, ""},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncRunes(tt.in, tt.n); got != tt.want {
			t.Errorf("TruncRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestChunkLinesShortText(t *testing.T) {
	t.Parallel()
	got := ChunkLines("one\ntwo", 100)
	if len(got) != 1 || got[0] != "one\ntwo" {
		t.Fatalf("unexpected chunks: %#v", got)
	}
}

func TestChunkLinesNeverSplitsLines(t *testing.T) {
	t.Parallel()
	names := []string{"Александр Иванов", "Pyotr", "Екатерина", "Someone With A Long Name"}
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, names[i%len(names)])
	}
	text := strings.Join(lines, "\n")

	chunks := ChunkLines(text, 120)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	var rejoined []string
	for _, c := range chunks {
		if utf8.RuneCountInString(c) > 120 {
			t.Fatalf("chunk exceeds limit: %d runes", utf8.RuneCountInString(c))
		}
		for _, ln := range strings.Split(c, "\n") {
			rejoined = append(rejoined, ln)
		}
	}
	if len(rejoined) != len(lines) {
		t.Fatalf("line count changed: got %d, want %d", len(rejoined), len(lines))
	}
	for i := range lines {
		if rejoined[i] != lines[i] {
			t.Fatalf("line %d corrupted: %q != %q", i, rejoined[i], lines[i])
		}
	}
}

func TestChunkLinesKeepsNameListItemsWhole(t *testing.T) {
	t.Parallel()
	names := make([]string, 400)
	for i := range names {
		names[i] = fmt.Sprintf("Константинов%03d", i)
	}
	line := "✅ Да (400): " + strings.Join(names, ", ")

	chunks := ChunkLines(line, MessageLimit)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if strings.Join(chunks, "") != line {
		t.Fatal("chunks do not reassemble the line")
	}
	for i, c := range chunks {
		if utf8.RuneCountInString(c) > MessageLimit {
			t.Fatalf("chunk %d exceeds limit: %d runes", i, utf8.RuneCountInString(c))
		}
	}
	for _, name := range names {
		found := 0
		for _, c := range chunks {
			found += strings.Count(c, name)
		}
		if found != 1 {
			t.Fatalf("name %q split across chunks (found %d times)", name, found)
		}
	}
}

func TestChunkLinesOversizedLine(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 50)
	chunks := ChunkLines(long, 20)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %#v", len(chunks), chunks)
	}
	if strings.Join(chunks, "") != long {
		t.Fatal("hard split lost content")
	}
}

func TestMention(t *testing.T) {
	t.Parallel()
	if got := Mention(0, "A <B>"); got != "A &lt;B&gt;" {
		t.Fatalf("plain fallback = %q", got)
	}
	got := Mention(42, "Петя")
	if !strings.Contains(got, `tg://user?id=42`) || !strings.Contains(got, "Петя") {
		t.Fatalf("mention = %q", got)
	}
}
