package detect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dgallion1/docrecon/internal/geom"
	"golang.org/x/net/html"
)

// hocrBlock is one ocr_par region recovered from hOCR output.
type hocrBlock struct {
	BBox       geom.BBox
	Text       string
	Confidence float64 // mean word confidence in [0,1]
}

// parseHOCR extracts paragraph-level blocks from hOCR markup.
func parseHOCR(data []byte) ([]hocrBlock, error) {
	doc, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parse hocr: %w", err)
	}

	var blocks []hocrBlock
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, "ocr_par") {
			if b, ok := parsePar(n); ok {
				blocks = append(blocks, b)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return blocks, nil
}

func parsePar(n *html.Node) (hocrBlock, bool) {
	var b hocrBlock
	box := parseBBoxTitle(attr(n, "title"))
	if box == nil {
		return b, false
	}
	b.BBox = *box

	var words []string
	var confSum float64
	var confN int
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, "ocrx_word") {
			words = append(words, nodeText(n))
			if c, ok := parseWconfTitle(attr(n, "title")); ok {
				confSum += c
				confN++
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	b.Text = strings.TrimSpace(strings.Join(words, " "))
	if b.Text == "" {
		return b, false
	}
	b.Confidence = 1.0
	if confN > 0 {
		b.Confidence = confSum / float64(confN) / 100.0
	}
	return b, true
}

// parseTitleProps breaks an hOCR title attribute into its components.
// Example input: "bbox 100 200 300 400; x_wconf 95"
func parseTitleProps(title string) map[string][]string {
	result := make(map[string][]string)
	for _, part := range strings.Split(title, ";") {
		items := strings.Fields(strings.TrimSpace(part))
		if len(items) > 0 {
			result[items[0]] = items[1:]
		}
	}
	return result
}

func parseBBoxTitle(title string) *geom.BBox {
	props := parseTitleProps(title)
	bbox, ok := props["bbox"]
	if !ok || len(bbox) < 4 {
		return nil
	}
	x0, _ := strconv.ParseFloat(bbox[0], 64)
	y0, _ := strconv.ParseFloat(bbox[1], 64)
	x1, _ := strconv.ParseFloat(bbox[2], 64)
	y1, _ := strconv.ParseFloat(bbox[3], 64)
	box := geom.New(x0, y0, x1, y1)
	return &box
}

func parseWconfTitle(title string) (float64, bool) {
	props := parseTitleProps(title)
	if w, ok := props["x_wconf"]; ok && len(w) > 0 {
		if c, err := strconv.ParseFloat(w[0], 64); err == nil {
			return c, true
		}
	}
	return 0, false
}

func hasClass(n *html.Node, class string) bool {
	return strings.Contains(attr(n, "class"), class)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
