package markup

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"mailorder/internal/util"
)

var reHTMLTag = regexp.MustCompile(`(?i)<(html|body|p|br|div|table)[\s>/]`)

func LooksLikeHTML(s string) bool {
	return reHTMLTag.MatchString(s)
}

// HTMLToText renders an HTML body as plain text: one line per block element
// and per table row, with row cells joined by a single space.
func HTMLToText(input string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(input))
	if err != nil {
		return input
	}

	doc.Find("script,style,head").Remove()
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := []string{}
		row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			if text := util.NormalizeSpaces(cell.Text()); text != "" {
				cells = append(cells, text)
			}
		})
		row.SetText(strings.Join(cells, " ") + "\n")
	})
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p,div,li,h1,h2,h3,h4,h5,h6").AfterHtml("\n")

	lines := strings.Split(doc.Text(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = util.NormalizeSpaces(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
