package driver

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// boundsRegex matches the agent's bounds attribute format: [x1,y1][x2,y2]
var boundsRegex = regexp.MustCompile(`\[(\d+),(\d+)\]\[(\d+),(\d+)\]`)

// findTextBounds scans a UI hierarchy dump for a node whose text or
// content-desc attribute equals text, and returns its bounding region.
func findTextBounds(src, text string) (Rect, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return Rect{}, false, err
	}

	var bounds Rect
	found := false
	doc.Find("*").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if sel.AttrOr("text", "") != text && sel.AttrOr("content-desc", "") != text {
			return true
		}
		bounds = parseBounds(sel.AttrOr("bounds", ""))
		found = true
		return false
	})

	return bounds, found, nil
}

func parseBounds(raw string) Rect {
	matches := boundsRegex.FindStringSubmatch(raw)
	if len(matches) < 5 {
		return Rect{}
	}
	x1, _ := strconv.Atoi(matches[1])
	y1, _ := strconv.Atoi(matches[2])
	x2, _ := strconv.Atoi(matches[3])
	y2, _ := strconv.Atoi(matches[4])
	return Rect{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}
