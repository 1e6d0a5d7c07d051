package titles

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// systemNoteRe strips injected system-note wrappers from user content
// before it is used as title context.
var systemNoteRe = regexp.MustCompile(`\[System Note:[\s\S]*?User message: `)

const (
	roleUser      = "User"
	roleAssistant = "Assistant"
)

// BuildPrompt renders the context messages into the title-generation
// prompt sent through the exchange endpoint.
func BuildPrompt(ctx []ContextMessage) string {
	var b strings.Builder
	b.WriteString("Suggest a short, fitting title (at most 5 words) for the ")
	b.WriteString("following conversation. Reply with the title only, no ")
	b.WriteString("explanation:\n\n")
	for i, m := range ctx {
		if i > 0 {
			b.WriteByte('\n')
		}
		role := roleAssistant
		if strings.EqualFold(m.Role, "user") {
			role = roleUser
		}
		content := systemNoteRe.ReplaceAllString(m.Content, "")
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(content)
	}
	return b.String()
}

// Sanitize normalizes a generated title: first line only, quotation and
// markdown artifacts trimmed, whitespace collapsed, truncated to maxRunes.
// It reports false for degenerate results (empty, or echoing the prompt's
// role markers) which must fall back to a derived title.
func Sanitize(raw string, maxRunes int) (string, bool) {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, "\"'`«»“”‘’")
	s = strings.TrimLeft(s, "# ")
	s = strings.Trim(s, "*_")
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "", false
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, strings.ToLower(roleUser)+":") ||
		strings.HasPrefix(lower, strings.ToLower(roleAssistant)+":") {
		return "", false
	}
	runes := []rune(s)
	if maxRunes > 0 && len(runes) > maxRunes {
		// The ellipsis counts toward the cap.
		s = strings.TrimSpace(string(runes[:maxRunes-1])) + "…"
	}
	return s, true
}

// FallbackTitle derives a title from the session's timestamp. Used when
// generation fails so the task still completes durably.
func FallbackTitle(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return fmt.Sprintf("Conversation from %s", t.Format("Jan 2, 15:04"))
}
