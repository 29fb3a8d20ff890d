package notify

import (
	"fmt"
	"strings"
)

func (s *Sender) formatRoastBody(roast string, count, required int) string {
	var b strings.Builder

	writeHead(&b, "#ff5f57")

	b.WriteString("<div class=\"header\">\n")
	b.WriteString("<h2>🚨 GET BACK TO WORK 🚨</h2>\n")
	b.WriteString("</div>\n")

	b.WriteString("<div class=\"content\">\n")
	b.WriteString(fmt.Sprintf("<p>%s</p>\n", escapeHTML(roast)))
	b.WriteString("</div>\n")

	b.WriteString(fmt.Sprintf("<div class=\"stats\">Replies: %d/%d</div>\n", count, required))

	b.WriteString("</body>\n</html>")
	return b.String()
}

func (s *Sender) formatQuotaBody(count, required int) string {
	var b strings.Builder

	writeHead(&b, "#9ece6a")

	b.WriteString("<div class=\"header\">\n")
	b.WriteString("<h2>Quota met 🎉</h2>\n")
	b.WriteString("</div>\n")

	b.WriteString("<div class=\"content\">\n")
	b.WriteString(fmt.Sprintf("<p>You hit your daily reply quota: <strong>%d of %d</strong>. The timeline thanks you.</p>\n", count, required))
	b.WriteString("</div>\n")

	b.WriteString("</body>\n</html>")
	return b.String()
}

func (s *Sender) formatMilestoneBody(milestone, total int) string {
	var b strings.Builder

	writeHead(&b, "#9ece6a")

	b.WriteString("<div class=\"header\">\n")
	b.WriteString(fmt.Sprintf("<h2>%s</h2>\n", escapeHTML(CelebrationHeadline(milestone))))
	b.WriteString("</div>\n")

	b.WriteString("<div class=\"content\">\n")
	b.WriteString(fmt.Sprintf("<p>Milestone crossed: <strong>%d replies</strong> today. Running total: %d.</p>\n", milestone, total))
	b.WriteString("</div>\n")

	b.WriteString("</body>\n</html>")
	return b.String()
}

func writeHead(b *strings.Builder, accent string) {
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<style>\n")
	b.WriteString("body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #ececec; background: #1a1a1a; max-width: 600px; margin: 0 auto; padding: 20px; }\n")
	fmt.Fprintf(b, ".header { border-bottom: 2px solid %s; padding-bottom: 10px; margin-bottom: 20px; }\n", accent)
	fmt.Fprintf(b, ".header h2 { color: %s; }\n", accent)
	b.WriteString(".content { background: #2d2d2d; padding: 20px; border-radius: 8px; margin: 15px 0; }\n")
	b.WriteString(".stats { color: #8d8d8d; font-family: monospace; background: rgba(0,0,0,0.3); padding: 10px; border-radius: 8px; display: inline-block; }\n")
	b.WriteString("</style>\n</head>\n<body>\n")
}

// escapeHTML escapes HTML special characters for security.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}
