// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/jeranaias/vibecode/internal/files"
	"github.com/jeranaias/vibecode/internal/model"
	"github.com/jeranaias/vibecode/internal/storage"
)

// markdown renders message bodies. Raw HTML in messages is dropped.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports conversations to a standalone HTML page with embedded CSS.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

// Export converts a conversation to HTML format.
func (e *HTMLExporter) Export(conv *storage.StoredConversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}
	theme := e.options.Theme
	if theme != "light" {
		theme = "dark"
	}

	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "    <title>%s</title>\n", html.EscapeString(conv.Summary))
	sb.WriteString("    <meta name=\"generator\" content=\"vibecode\">\n")
	fmt.Fprintf(&sb, "    <meta name=\"date\" content=\"%s\">\n", conv.CreatedAt.Format(time.RFC3339))
	sb.WriteString(stylesheet)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n", theme)
	sb.WriteString("    <div class=\"container\">\n")

	if e.options.IncludeMetadata {
		sb.WriteString(e.renderHeader(conv))
	}

	sb.WriteString("        <main class=\"conversation\">\n")
	for i := range conv.Messages {
		sb.WriteString(e.renderMessage(&conv.Messages[i]))
	}
	sb.WriteString("        </main>\n")

	if e.options.IncludeFiles && len(conv.Files) > 0 {
		sb.WriteString(renderFiles(conv.Files))
	}

	sb.WriteString("        <footer class=\"footer\">\n")
	fmt.Fprintf(&sb, "            <p>Exported from <strong>vibecode</strong> on %s</p>\n",
		e.options.now().Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("        </footer>\n")
	sb.WriteString("    </div>\n")
	sb.WriteString(themeScript)
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// =============================================================================
// RENDERING
// =============================================================================

func (e *HTMLExporter) renderHeader(conv *storage.StoredConversation) string {
	var sb strings.Builder
	sb.WriteString("        <header class=\"header\">\n")
	fmt.Fprintf(&sb, "            <h1>%s</h1>\n", html.EscapeString(conv.Summary))
	sb.WriteString("            <div class=\"metadata\">\n")
	fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>Model:</strong> %s</span>\n", html.EscapeString(conv.Model))
	fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>Created:</strong> %s</span>\n", formatTimestamp(conv.CreatedAt))
	fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>Messages:</strong> %d</span>\n", len(conv.Messages))
	if n := conv.FallbackCount(); n > 0 {
		fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>Fallback replies:</strong> %d</span>\n", n)
	}
	sb.WriteString("                <button class=\"theme-toggle\" onclick=\"toggleTheme()\" title=\"Toggle theme\">[Theme]</button>\n")
	sb.WriteString("            </div>\n")
	sb.WriteString("        </header>\n")
	return sb.String()
}

func (e *HTMLExporter) renderMessage(msg *storage.StoredMessage) string {
	var sb strings.Builder

	classes := "message " + html.EscapeString(strings.ToLower(string(msg.Role))) + "-message"
	if msg.Fallback {
		classes += " fallback-message"
	}
	fmt.Fprintf(&sb, "            <div class=\"%s\">\n", classes)

	sb.WriteString("                <div class=\"message-header\">\n")
	fmt.Fprintf(&sb, "                    <span class=\"role-label\">%s</span>\n", html.EscapeString(roleLabel(msg.Role)))
	if msg.Fallback {
		fmt.Fprintf(&sb, "                    <span class=\"fallback-badge\">%s</span>\n", FallbackLabel)
	}
	if e.options.IncludeTimestamps {
		fmt.Fprintf(&sb, "                    <span class=\"timestamp\">%s</span>\n", formatShortTimestamp(msg.Timestamp))
	}
	sb.WriteString("                </div>\n")

	if msg.Fallback && msg.FallbackReason != "" {
		fmt.Fprintf(&sb, "                <div class=\"fallback-reason\">%s</div>\n", html.EscapeString(msg.FallbackReason))
	}

	sb.WriteString("                <div class=\"message-content\">\n")
	sb.WriteString(renderMarkdown(msg.Content))
	sb.WriteString("                </div>\n")

	if msg.Role == model.RoleAssistant && e.options.IncludeMetadata {
		if msg.ModelKey != "" || msg.DurationMs > 0 {
			sb.WriteString("                <div class=\"message-stats\">\n")
			if msg.ModelKey != "" {
				fmt.Fprintf(&sb, "                    <span class=\"stat\">Model: %s</span>\n", html.EscapeString(msg.ModelKey))
			}
			if msg.DurationMs > 0 {
				fmt.Fprintf(&sb, "                    <span class=\"stat\">Time: %s</span>\n", formatDuration(msg.DurationMs))
			}
			sb.WriteString("                </div>\n")
		}
	}

	sb.WriteString("            </div>\n")
	return sb.String()
}

// renderMarkdown converts message markdown to HTML. On a conversion error
// the escaped source is shown instead.
func renderMarkdown(content string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(content), &buf); err != nil {
		return "<pre>" + html.EscapeString(content) + "</pre>\n"
	}
	return buf.String()
}

func renderFiles(project []files.ProjectFile) string {
	var sb strings.Builder
	sb.WriteString("        <section class=\"project-files\">\n")
	sb.WriteString("            <h2>Project Files</h2>\n")
	for _, f := range project {
		lang := f.Language
		if lang == "" {
			lang = files.LanguageFor(f.Name)
		}
		sb.WriteString("            <details class=\"project-file\">\n")
		fmt.Fprintf(&sb, "                <summary>%s</summary>\n", html.EscapeString(f.Name))
		fmt.Fprintf(&sb, "                <pre><code class=\"language-%s\">%s</code></pre>\n",
			html.EscapeString(lang), html.EscapeString(f.Content))
		sb.WriteString("            </details>\n")
	}
	sb.WriteString("        </section>\n")
	return sb.String()
}

// =============================================================================
// EMBEDDED ASSETS
// =============================================================================

const stylesheet = `    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Arial, sans-serif;
            --font-mono: "JetBrains Mono", "Fira Code", Menlo, Consolas, monospace;
        }

        .dark-theme {
            --bg: #14161b;
            --panel: #1d2027;
            --raised: #2a2f3a;
            --text: #e4e6eb;
            --muted: #8b93a3;
            --border: #343a46;
            --accent: #8ab4f8;
            --user: #6fcf97;
            --warn: #f2c94c;
            --code-bg: #101216;
        }

        .light-theme {
            --bg: #f4f5f7;
            --panel: #ffffff;
            --raised: #eceef2;
            --text: #1f2328;
            --muted: #5f6673;
            --border: #d7dbe2;
            --accent: #1a66d2;
            --user: #1e7f4f;
            --warn: #9a6b00;
            --code-bg: #f6f8fa;
        }

        body {
            font-family: var(--font-sans);
            line-height: 1.6;
            color: var(--text);
            background: var(--bg);
            padding: 20px;
        }

        .container {
            max-width: 920px;
            margin: 0 auto;
            background: var(--panel);
            border: 1px solid var(--border);
            border-radius: 10px;
            overflow: hidden;
        }

        .header { padding: 28px 32px; background: var(--raised); border-bottom: 1px solid var(--border); }
        .header h1 { font-size: 26px; margin-bottom: 12px; }
        .metadata { display: flex; flex-wrap: wrap; gap: 14px; font-size: 14px; color: var(--muted); align-items: center; }
        .theme-toggle { margin-left: auto; background: var(--panel); color: var(--text); border: 1px solid var(--border); border-radius: 6px; padding: 4px 10px; cursor: pointer; }

        .conversation { padding: 24px 32px; }
        .message { margin-bottom: 20px; padding: 16px 20px; border-radius: 8px; border-left: 4px solid var(--border); background: var(--panel); }
        .user-message { border-left-color: var(--user); background: var(--raised); }
        .assistant-message { border-left-color: var(--accent); }
        .fallback-message { border-left-color: var(--warn); border-style: dashed; }
        .message-header { display: flex; gap: 10px; align-items: center; margin-bottom: 10px; font-size: 14px; }
        .role-label { font-weight: 700; }
        .timestamp { color: var(--muted); margin-left: auto; }
        .fallback-badge { color: var(--warn); border: 1px solid var(--warn); border-radius: 4px; padding: 0 6px; font-size: 12px; text-transform: uppercase; }
        .fallback-reason { color: var(--muted); font-size: 13px; font-style: italic; margin-bottom: 8px; }
        .message-content p { margin-bottom: 10px; }
        .message-content ul, .message-content ol { margin: 0 0 10px 24px; }
        .message-content code { font-family: var(--font-mono); font-size: 0.9em; background: var(--code-bg); padding: 1px 4px; border-radius: 4px; }
        .message-content pre, .project-file pre { background: var(--code-bg); border: 1px solid var(--border); border-radius: 6px; padding: 12px; overflow-x: auto; margin-bottom: 10px; }
        .message-content pre code, .project-file pre code { background: none; padding: 0; font-family: var(--font-mono); font-size: 13px; }
        .message-stats { display: flex; gap: 12px; margin-top: 8px; font-size: 12px; color: var(--muted); }

        .project-files { padding: 0 32px 24px; }
        .project-files h2 { font-size: 20px; margin-bottom: 12px; }
        .project-file { margin-bottom: 10px; }
        .project-file summary { cursor: pointer; font-family: var(--font-mono); margin-bottom: 6px; }

        .footer { padding: 16px 32px; border-top: 1px solid var(--border); font-size: 13px; color: var(--muted); text-align: center; }

        @media (max-width: 640px) {
            body { padding: 0; }
            .container { border-radius: 0; }
            .conversation, .project-files { padding: 16px; }
        }
    </style>
`

const themeScript = `    <script>
        function toggleTheme() {
            const body = document.body;
            const next = body.classList.contains('dark-theme') ? 'light' : 'dark';
            body.classList.remove('dark-theme', 'light-theme');
            body.classList.add(next + '-theme');
            localStorage.setItem('theme', next);
        }

        document.addEventListener('DOMContentLoaded', function() {
            const saved = localStorage.getItem('theme');
            if (saved === 'dark' || saved === 'light') {
                document.body.classList.remove('dark-theme', 'light-theme');
                document.body.classList.add(saved + '-theme');
            }
        });
    </script>
`
