package vault

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

// Note is a markdown document split into a typed frontmatter map and a body.
// Callers parse once, mutate the map, and re-serialize, never regex over
// raw text.
type Note struct {
	Frontmatter map[string]any
	Body        string
}

// ParseNote splits text into frontmatter and body. Text without a leading
// "---" block is treated as all body with an empty frontmatter map.
func ParseNote(text string) (Note, error) {
	n := Note{Frontmatter: map[string]any{}}

	if !strings.HasPrefix(text, frontmatterDelimiter+"\n") && text != frontmatterDelimiter {
		n.Body = text
		return n, nil
	}

	rest := strings.TrimPrefix(text, frontmatterDelimiter+"\n")
	end := strings.Index(rest, "\n"+frontmatterDelimiter)
	if end < 0 {
		// Unterminated block: treat the whole text as body rather than guess.
		n.Body = text
		return n, nil
	}

	header := rest[:end]
	body := rest[end+len("\n"+frontmatterDelimiter):]
	body = strings.TrimPrefix(body, "\n")

	if err := yaml.Unmarshal([]byte(header), &n.Frontmatter); err != nil {
		return Note{}, fmt.Errorf("parsing frontmatter: %w", err)
	}
	if n.Frontmatter == nil {
		n.Frontmatter = map[string]any{}
	}
	n.Body = body
	return n, nil
}

// Encode serializes the note back to markdown text. Notes with an empty
// frontmatter map are emitted as bare body.
func (n Note) Encode() (string, error) {
	if len(n.Frontmatter) == 0 {
		return n.Body, nil
	}
	header, err := yaml.Marshal(n.Frontmatter)
	if err != nil {
		return "", fmt.Errorf("encoding frontmatter: %w", err)
	}
	var b strings.Builder
	b.WriteString(frontmatterDelimiter + "\n")
	b.Write(header)
	b.WriteString(frontmatterDelimiter + "\n")
	if n.Body != "" {
		b.WriteString("\n")
		b.WriteString(n.Body)
	}
	return b.String(), nil
}

// String returns the frontmatter value for key as a string, or "" when the
// key is missing or not scalar.
func (n Note) String(key string) string {
	v, ok := n.Frontmatter[key]
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	case int, int64, float64, bool:
		return fmt.Sprintf("%v", s)
	}
	return ""
}

// Set assigns a frontmatter key.
func (n Note) Set(key string, value any) {
	n.Frontmatter[key] = value
}

// ReadNote reads and parses the note at path.
func ReadNote(s Store, path string) (Note, error) {
	text, err := s.Read(path)
	if err != nil {
		return Note{}, err
	}
	return ParseNote(text)
}

// WriteNote encodes the note and modifies (or creates) the file at path.
func WriteNote(s Store, path string, n Note) error {
	text, err := n.Encode()
	if err != nil {
		return err
	}
	exists, err := s.Exists(path)
	if err != nil {
		return err
	}
	if exists {
		return s.Modify(path, text)
	}
	return s.Create(path, text)
}
