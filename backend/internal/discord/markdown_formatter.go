package discord

import (
	"fmt"
	"regexp"
	"strings"

	"spoke-graph/backend/internal/chat"
)

var (
	// Regex patterns compiled once at startup
	codeBlockPattern        = regexp.MustCompile("(?s)```.*?```")
	inlineCodePattern       = regexp.MustCompile("`([^`\n]+)`")
	headerPattern           = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+)$`)
	unorderedListPattern    = regexp.MustCompile(`(?m)^([ \t]*)[-*][ \t]+(.+)$`)
	multipleNewlinesPattern = regexp.MustCompile(`\n{3,}`)
)

// FormatMarkdown converts standard markdown to Discord markdown format
//
// Conversions performed:
//   - Headers (# Header) → Bold (**Header**)
//   - Lists (- item) → Discord list format (• item)
//   - Code blocks and inline code → Preserved exactly
//
// Example:
//
//	Input:  "## Conclusion\n- BRCA1 `genes/12345`"
//	Output: "**Conclusion**\n• BRCA1 `genes/12345`"
func FormatMarkdown(content string) string {
	return protectCodeBlocks(content, func(text string) string {
		text = headerPattern.ReplaceAllString(text, "**$1**")
		text = unorderedListPattern.ReplaceAllString(text, "$1• $2")
		text = cleanWhitespace(text)
		return multipleNewlinesPattern.ReplaceAllString(text, "\n\n")
	})
}

// protectCodeBlocks runs processor on everything outside code
func protectCodeBlocks(content string, processor func(string) string) string {
	var protected []string
	placeholder := func(match string) string {
		protected = append(protected, match)
		return fmt.Sprintf("\x00CODE%d\x00", len(protected)-1)
	}

	// Code blocks first (they can contain inline code)
	content = codeBlockPattern.ReplaceAllStringFunc(content, placeholder)
	content = inlineCodePattern.ReplaceAllStringFunc(content, placeholder)

	content = processor(content)

	for i := len(protected) - 1; i >= 0; i-- {
		content = strings.Replace(content, fmt.Sprintf("\x00CODE%d\x00", i), protected[i], 1)
	}
	return content
}

// cleanWhitespace removes trailing whitespace while preserving indentation
func cleanWhitespace(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

// FormatCodeBlock formats code for Discord code blocks with optional language
func FormatCodeBlock(code string, language string) string {
	return "```" + language + "\n" + code + "\n```"
}

// FormatBold formats text as bold in Discord
func FormatBold(text string) string {
	return "**" + text + "**"
}

// FormatAnswer renders a graph answer for a Discord channel
func FormatAnswer(answer *chat.Answer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d\n\n", FormatBold("Attempt Count:"), answer.Attempts)

	if answer.Query != "" {
		b.WriteString(FormatBold("Query Info:") + "\n")
		b.WriteString(FormatCodeBlock(answer.Query, "cypher"))
		b.WriteString("\n\n")
	}

	b.WriteString(FormatBold("LLM Interpretation:") + "\n")
	if answer.Found() {
		b.WriteString(FormatMarkdown(answer.Story))
	} else {
		fmt.Fprintf(&b, "No result found after %d tries.", answer.Attempts)
	}
	return b.String()
}
