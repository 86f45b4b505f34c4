// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package files

import (
	"regexp"
	"strings"
)

var (
	htmlTagRe  = regexp.MustCompile(`(?i)<html[\s>]`)
	headTagRe  = regexp.MustCompile(`(?i)<head[\s>]`)
	bodyTagRe  = regexp.MustCompile(`(?i)<body[\s>]`)
	htmlOpenRe = regexp.MustCompile(`(?i)<html[^>]*>`)
	headEndRe  = regexp.MustCompile(`(?i)</head>`)
	bodyEndRe  = regexp.MustCompile(`(?i)</body>`)
)

// navigationGuard stops links and forms in generated pages from navigating
// away from the preview.
const navigationGuard = `
<script>
(() => {
  document.addEventListener('click', (e) => {
    const link = e.target.closest('a[href]');
    if (!link) return;
    const href = link.getAttribute('href') || '';
    if (href.startsWith('#') || href.startsWith('javascript:')) return;
    e.preventDefault();
  }, true);
  document.addEventListener('submit', (e) => e.preventDefault(), true);
  const noop = () => {};
  try { window.open = noop; } catch (err) {}
})();
</script>`

// PreviewHTML combines the first .html file with the first .css and .js files
// into one self-contained page. Stylesheet and script references to those
// files are inlined; when the page does not reference them they are injected
// before </head> and </body>. It reports false when there is no HTML file.
func PreviewHTML(project []ProjectFile) (string, bool) {
	htmlFile, ok := firstWithSuffix(project, ".html")
	if !ok || htmlFile.Content == "" {
		return "", false
	}
	page := htmlFile.Content

	if !htmlTagRe.MatchString(page) {
		page = "<!DOCTYPE html><html><head></head><body>" + page + "</body></html>"
	}
	if !headTagRe.MatchString(page) {
		page = replaceFirst(htmlOpenRe, page, func(m string) string { return m + "<head></head>" })
	}
	if !bodyTagRe.MatchString(page) {
		page = replaceFirst(headEndRe, page, func(string) string { return "</head><body></body>" })
	}

	if css, ok := firstWithSuffix(project, ".css"); ok {
		style := "<style>" + css.Content + "</style>"
		if strings.Contains(page, css.Name) {
			linkRe := regexp.MustCompile(`(?i)<link[^>]*href=["']` + regexp.QuoteMeta(css.Name) + `["'][^>]*>`)
			page = replaceFirst(linkRe, page, func(string) string { return style })
		} else {
			page = replaceFirst(headEndRe, page, func(string) string { return style + "</head>" })
		}
	}

	page = replaceFirst(headEndRe, page, func(string) string { return navigationGuard + "</head>" })

	if js, ok := firstWithSuffix(project, ".js"); ok {
		script := "<script>" + js.Content + "</script>"
		if strings.Contains(page, js.Name) {
			srcRe := regexp.MustCompile(`(?i)<script[^>]*src=["']` + regexp.QuoteMeta(js.Name) + `["'][^>]*></script>`)
			page = replaceFirst(srcRe, page, func(string) string { return script })
		} else {
			page = replaceFirst(bodyEndRe, page, func(string) string { return script + "</body>" })
		}
	}

	return page, true
}

func firstWithSuffix(project []ProjectFile, suffix string) (ProjectFile, bool) {
	for _, f := range project {
		if strings.HasSuffix(f.Name, suffix) {
			return f, true
		}
	}
	return ProjectFile{}, false
}

// replaceFirst replaces the first match of re in s with repl(match). The
// replacement is literal; generated code often contains "$".
func replaceFirst(re *regexp.Regexp, s string, repl func(string) string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + repl(s[loc[0]:loc[1]]) + s[loc[1]:]
}
