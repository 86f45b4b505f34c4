// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package files

import (
	"strings"

	"github.com/google/uuid"

	"github.com/jeranaias/vibecode/internal/util"
)

// Scaffold is a minimal three-file starter used when a build reply contains
// no code at all.
type Scaffold struct {
	HTML string
	CSS  string
	JS   string
}

// NewScaffold builds the starter for prompt. The page title and heading are
// the first 60 characters of prompt, HTML-escaped, or "Prototype".
func NewScaffold(prompt string) Scaffold {
	title := util.FirstRunes(prompt, 60)
	if title == "" {
		title = "Prototype"
	}
	title = util.EscapeHTMLText(title)

	return Scaffold{
		HTML: strings.ReplaceAll(scaffoldHTML, "{{title}}", title),
		CSS:  scaffoldCSS,
		JS:   scaffoldJS,
	}
}

// Markdown renders the scaffold as three fenced blocks, ready to append to a
// reply so the files parser picks them up.
func (s Scaffold) Markdown() string {
	return "\n\n```html\n" + s.HTML + "\n```\n```css\n" + s.CSS + "\n```\n```javascript\n" + s.JS + "\n```\n"
}

// Files returns the scaffold as project files.
func (s Scaffold) Files() []ProjectFile {
	return []ProjectFile{
		{ID: uuid.New().String(), Name: "index.html", Content: s.HTML, Language: LangHTML},
		{ID: uuid.New().String(), Name: "style.css", Content: s.CSS, Language: LangCSS},
		{ID: uuid.New().String(), Name: "script.js", Content: s.JS, Language: LangJavaScript},
	}
}

// EnsureCode returns reply unchanged when it already contains a fenced block.
// Otherwise it appends the scaffold for prompt and reports true.
func EnsureCode(reply, prompt string) (string, bool) {
	if CountBlocks(reply) > 0 {
		return reply, false
	}
	return reply + NewScaffold(prompt).Markdown(), true
}

const scaffoldHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{title}}</title>
  <link rel="stylesheet" href="style.css">
</head>
<body>
  <main class="wrap">
    <header class="hero">
      <p class="eyebrow">Generated starter</p>
      <h1>{{title}}</h1>
      <p class="lead">Edit this scaffold to match your task.</p>
      <div class="actions">
        <button id="primary-btn">Run Action</button>
        <button class="ghost" id="secondary-btn">Secondary</button>
      </div>
    </header>
    <section id="output" class="card">Output will appear here.</section>
  </main>
  <script src="script.js"></script>
</body>
</html>`

const scaffoldCSS = `:root { color-scheme: dark; font-family: 'Inter', system-ui, sans-serif; }
* { box-sizing: border-box; }
body { margin: 0; min-height: 100vh; display: grid; place-items: center; background: #0f0f14; color: #f8fafc; padding: 24px; }
.wrap { width: min(960px, 100%); background: #161622; border: 1px solid #262638; border-radius: 18px; padding: 28px; box-shadow: 0 20px 60px rgba(0,0,0,0.35); }
.hero { display: grid; gap: 10px; }
.eyebrow { text-transform: uppercase; letter-spacing: 0.08em; font-size: 11px; color: #a5b4fc; }
.lead { color: #cbd5e1; }
.actions { display: flex; gap: 12px; flex-wrap: wrap; margin-top: 8px; }
button { border: none; border-radius: 12px; padding: 12px 16px; font-weight: 600; cursor: pointer; transition: transform .15s ease, box-shadow .2s ease; }
button#primary-btn { background: linear-gradient(135deg, #ff4fa3, #8b5cf6); color: #fff; }
button.ghost { background: transparent; color: #e5e7eb; border: 1px solid #3b3b55; }
button:hover { transform: translateY(-1px); box-shadow: 0 10px 25px rgba(255,79,163,0.25); }
.card { margin-top: 18px; padding: 16px; border: 1px dashed #30304a; border-radius: 14px; min-height: 100px; background: #0f0f1a; }`

const scaffoldJS = `document.addEventListener('DOMContentLoaded', () => {
  const out = document.getElementById('output');
  document.getElementById('primary-btn')?.addEventListener('click', () => {
    out.innerHTML = '<strong>Primary action:</strong> replace with your logic.';
  });
  document.getElementById('secondary-btn')?.addEventListener('click', () => {
    out.innerHTML = '<em>Secondary action clicked.</em>';
  });
});`
