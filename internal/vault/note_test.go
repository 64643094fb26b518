package vault

import (
	"strings"
	"testing"
)

func TestParseNote_FrontmatterAndBody(t *testing.T) {
	text := "---\njob_id: abc-123\nstatus: pending\n---\n\n# Guard retention\n\nnotes here\n"
	n, err := ParseNote(text)
	if err != nil {
		t.Fatalf("ParseNote: %v", err)
	}
	if got := n.String("job_id"); got != "abc-123" {
		t.Errorf("job_id = %q, want %q", got, "abc-123")
	}
	if got := n.String("status"); got != "pending" {
		t.Errorf("status = %q, want %q", got, "pending")
	}
	if !strings.Contains(n.Body, "# Guard retention") {
		t.Errorf("body lost heading: %q", n.Body)
	}
}

func TestParseNote_NoFrontmatter(t *testing.T) {
	n, err := ParseNote("just a body\n")
	if err != nil {
		t.Fatalf("ParseNote: %v", err)
	}
	if len(n.Frontmatter) != 0 {
		t.Errorf("frontmatter = %v, want empty", n.Frontmatter)
	}
	if n.Body != "just a body\n" {
		t.Errorf("body = %q", n.Body)
	}
}

func TestParseNote_UnterminatedBlock(t *testing.T) {
	text := "---\njob_id: abc\nno closing delimiter"
	n, err := ParseNote(text)
	if err != nil {
		t.Fatalf("ParseNote: %v", err)
	}
	if n.Body != text {
		t.Errorf("unterminated block should stay body, got %q", n.Body)
	}
}

func TestNote_EncodeRoundTrip(t *testing.T) {
	n := Note{
		Frontmatter: map[string]any{"job_id": "j-1", "status": "complete"},
		Body:        "# Title\n\ncontent\n",
	}
	text, err := n.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := ParseNote(text)
	if err != nil {
		t.Fatalf("ParseNote after Encode: %v", err)
	}
	if back.String("job_id") != "j-1" || back.String("status") != "complete" {
		t.Errorf("frontmatter lost in round trip: %v", back.Frontmatter)
	}
	if back.Body != n.Body {
		t.Errorf("body = %q, want %q", back.Body, n.Body)
	}
}

func TestNote_SetThenEncode(t *testing.T) {
	n, err := ParseNote("---\nstatus: pending\n---\n\nbody\n")
	if err != nil {
		t.Fatalf("ParseNote: %v", err)
	}
	n.Set("status", "complete")
	text, err := n.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(text, "status: complete") {
		t.Errorf("status not rewritten: %q", text)
	}
}

func TestWriteNote_CreatesThenModifies(t *testing.T) {
	store := NewMemory()
	n := Note{Frontmatter: map[string]any{"k": "v"}, Body: "one\n"}

	if err := WriteNote(store, "a/b.md", n); err != nil {
		t.Fatalf("WriteNote create: %v", err)
	}
	n.Body = "two\n"
	if err := WriteNote(store, "a/b.md", n); err != nil {
		t.Fatalf("WriteNote modify: %v", err)
	}
	got, err := ReadNote(store, "a/b.md")
	if err != nil {
		t.Fatalf("ReadNote: %v", err)
	}
	if got.Body != "two\n" {
		t.Errorf("body = %q, want %q", got.Body, "two\n")
	}
}
