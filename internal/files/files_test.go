// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package files

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(project []ProjectFile) []string {
	out := make([]string, len(project))
	for i, f := range project {
		out[i] = f.Name
	}
	return out
}

// =============================================================================
// BLOCK EXTRACTION TESTS
// =============================================================================

func TestExtractBlocks(t *testing.T) {
	reply := "intro\n```js\nconsole.log(1)\n```\ntext\n```src/App.tsx\nexport {}\n```\n```\nplain\n```"
	blocks := ExtractBlocks(reply)
	require.Len(t, blocks, 3)

	assert.Equal(t, "javascript", blocks[0].Language)
	assert.Equal(t, "console.log(1)", blocks[0].Code)
	assert.Equal(t, strings.Index(reply, "```js"), blocks[0].Start)
	assert.Equal(t, "```", reply[blocks[0].End-3:blocks[0].End])

	assert.Equal(t, "typescript", blocks[1].Language)
	assert.Equal(t, "src/App.tsx", blocks[1].Header)

	assert.Equal(t, "text", blocks[2].Language)
}

func TestExtractBlocks_Aliases(t *testing.T) {
	tests := map[string]string{
		"py": "python", "md": "markdown", "yml": "yaml", "sh": "bash",
		"HTML": "html", "jsx": "javascript", "go": "go",
	}
	for header, want := range tests {
		blocks := ExtractBlocks("```" + header + "\nx\n```")
		require.Len(t, blocks, 1, header)
		assert.Equal(t, want, blocks[0].Language, header)
	}
}

// =============================================================================
// FILENAME TESTS
// =============================================================================

func TestCleanFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"index.html", "index.html"},
		{"`app.js`", "app.js"},
		{`"styles/main.css"`, "styles/main.css"},
		{"file: app.js", "app.js"},
		{"filename=app.js", "app.js"},
		{"Path: src/app.ts", "src/app.ts"},
		{"./src/app.ts", "src/app.ts"},
		{"app.js:", "app.js"},
		{"app.js),", "app.js"},
		{"https://cdn.example.com/x.js", ""},
		{"no-extension", ""},
		{".hidden", ""},
		{"-dash.js", ""},
		{"a b.js", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanFilename(tt.in), "CleanFilename(%q)", tt.in)
	}
}

func TestPickFilename_LastValidCandidate(t *testing.T) {
	assert.Equal(t, "script.js", PickFilename("First `index.html`, then update `script.js`:"))
	assert.Equal(t, "", PickFilename("no names here"))
}

func TestLanguageFor(t *testing.T) {
	assert.Equal(t, "html", LanguageFor("index.HTM"))
	assert.Equal(t, "typescript", LanguageFor("a.tsx"))
	assert.Equal(t, "text", LanguageFor("main.go"))
	assert.Equal(t, "text", LanguageFor("Makefile"))
	assert.Equal(t, "", Extension(".bashrc"))
	assert.Equal(t, "gz", Extension("a.tar.gz"))
}

func TestNamer(t *testing.T) {
	n := NewNamer()
	assert.Equal(t, "app.js", n.Unique("app.js"))
	assert.Equal(t, "App-2.js", n.Unique("App.js"))
	assert.Equal(t, "app-3.js", n.Unique("app.js"))
	assert.Equal(t, "Makefile", n.Unique("Makefile"))
	assert.Equal(t, "Makefile-2.txt", n.Unique("Makefile"))
}

// =============================================================================
// PARSE TESTS
// =============================================================================

func TestParse_LanguageDefaults(t *testing.T) {
	reply := "```html\n<h1>hi</h1>\n```\n```css\nh1{}\n```\n```javascript\nalert(1)\n```"
	project := Parse(reply)
	require.Len(t, project, 3)
	assert.Equal(t, []string{"index.html", "style.css", "script.js"}, names(project))
	assert.Equal(t, "<h1>hi</h1>", project[0].Content)
	assert.Equal(t, "html", project[0].Language)
	assert.NotEmpty(t, project[0].ID)
	assert.NotEqual(t, project[0].ID, project[1].ID)
}

func TestParse_DuplicateNamesSuffixed(t *testing.T) {
	reply := "```app.js\nconst a = 1;\n```\n```app.js\nconst b = 2;\n```"
	assert.Equal(t, []string{"app.js", "app-2.js"}, names(Parse(reply)))
}

func TestParse_NoBlocks(t *testing.T) {
	assert.Empty(t, Parse("Just some prose without any code."))
}

func TestParse_HeaderFilenameOverridesLanguage(t *testing.T) {
	reply := "```javascript components/widget.ts\nexport const x = 1;\n```"
	project := Parse(reply)
	require.Len(t, project, 1)
	assert.Equal(t, "components/widget.ts", project[0].Name)
	assert.Equal(t, "typescript", project[0].Language)
}

func TestParse_UnknownExtensionKeepsHeaderLanguage(t *testing.T) {
	project := Parse("```go main.go\npackage main\n```")
	require.Len(t, project, 1)
	assert.Equal(t, "main.go", project[0].Name)
	assert.Equal(t, "go", project[0].Language)
}

func TestParse_FirstLineFilename(t *testing.T) {
	reply := "```css\n/* theme.css */\nbody{}\n```\n```python\n# app.py\nprint(1)\n```"
	assert.Equal(t, []string{"theme.css", "app.py"}, names(Parse(reply)))
}

func TestParse_FirstLineAnnotatedComment(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		wantName string
		wantLang string
	}{
		{"line comment with note", "```javascript\n// app.js - main entry point\nx()\n```", "app.js", LangJavaScript},
		{"block comment with path", "```css\n/* styles/main.css: layout */\nbody{}\n```", "styles/main.css", LangCSS},
		{"html comment", "```html\n<!-- File: about.html -->\n<p>x</p>\n```", "about.html", LangHTML},
		{"hash comment, last name wins", "```python\n# copy of old.py, now main.py\nprint(1)\n```", "main.py", LangPython},
		{"comment without a name", "```javascript\n// wire up the button\ngo()\n```", "script.js", LangJavaScript},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			project := Parse(tt.reply)
			require.Len(t, project, 1)
			assert.Equal(t, tt.wantName, project[0].Name)
			assert.Equal(t, tt.wantLang, project[0].Language)
		})
	}
}

func TestParse_FirstLineCodeIsNotAFilename(t *testing.T) {
	reply := "```javascript\ndocument.getElementById(\"x\").addEventListener(\"click\", go);\n```"
	assert.Equal(t, []string{"script.js"}, names(Parse(reply)))
}

func TestParse_PrecedingText(t *testing.T) {
	reply := "Create `server.py` with:\n```python\nprint('hi')\n```\n\nAnd the page:\n```html\n<p>x</p>\n```"
	project := Parse(reply)
	require.Len(t, project, 2)
	assert.Equal(t, "server.py", project[0].Name)
	// The mention of server.py belongs to the first block only.
	assert.Equal(t, "index.html", project[1].Name)
}

func TestParse_PrecedingTextWindow(t *testing.T) {
	far := "See `far.js`." + strings.Repeat(" filler", 60) + "\n"
	project := Parse(far + "```javascript\nrun()\n```")
	require.Len(t, project, 1)
	assert.Equal(t, "script.js", project[0].Name, "mentions beyond the lookbehind window are ignored")
}

func TestParse_PositionalFallback(t *testing.T) {
	reply := "```yaml\nkey: v\n```\n```rust\nfn main(){}\n```"
	assert.Equal(t, []string{"file1.txt", "file2.txt"}, names(Parse(reply)))
}

func TestParse_TextBlocksGetNotes(t *testing.T) {
	reply := "```\nfirst\n```\n```\nsecond\n```"
	assert.Equal(t, []string{"notes.txt", "notes-2.txt"}, names(Parse(reply)))
}

func TestParse_URLNotAFilename(t *testing.T) {
	reply := "Load it from https://cdn.example.com/lib.js first.\n```javascript\nrun()\n```"
	project := Parse(reply)
	require.Len(t, project, 1)
	// The URL itself is rejected but its path tail still looks like a name.
	assert.NotContains(t, project[0].Name, "://")
}

func TestFind(t *testing.T) {
	project := Parse("```html\n<p/>\n```")
	f, ok := Find(project, "index.html")
	require.True(t, ok)
	assert.Equal(t, "<p/>", f.Content)
	_, ok = Find(project, "missing.css")
	assert.False(t, ok)
}

func TestRender_RoundTrip(t *testing.T) {
	project := []ProjectFile{
		{Name: "index.html", Content: "<h1>Hi</h1>", Language: LangHTML},
		{Name: "css/site.css", Content: "h1 { color: red; }"},
	}
	parsed := Parse(Render(project))
	require.Len(t, parsed, 2)
	assert.Equal(t, []string{"index.html", "css/site.css"}, names(parsed))
	assert.Equal(t, "h1 { color: red; }", parsed[1].Content)
	assert.Equal(t, LangCSS, parsed[1].Language)
}
