package web

import (
	"net/url"
	"sort"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

const maxLinks = 50

// PageSummary is a readable rendering of a cached page.
type PageSummary struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Text        string   `json:"text"`
	Links       []string `json:"links"`
}

// looksLikeHTML is a cheap sniff; cached pages carry no content type.
func looksLikeHTML(s string) bool {
	head := strings.ToLower(strings.TrimSpace(s))
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.HasPrefix(head, "<!doctype html") || strings.Contains(head, "<html") ||
		strings.Contains(head, "<head") || strings.Contains(head, "<body")
}

// Render extracts title, description, markdown text and absolute links from
// page. Content that does not look like HTML is returned as the text.
func Render(page, pageURL string) (*PageSummary, error) {
	if !looksLikeHTML(page) {
		return &PageSummary{URL: pageURL, Text: page}, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, err
	}

	// Remove non-visible elements
	doc.Find("script, style, noscript, iframe, object, embed, img, video, picture, svg, canvas, audio, source, track, map, area, form, label, input, button, select, textarea").Remove()

	ps := &PageSummary{
		URL:         pageURL,
		Title:       strings.TrimSpace(doc.Find("head > title").First().Text()),
		Description: strings.TrimSpace(doc.Find("meta[name=description]").AttrOr("content", "")),
		Links:       collectLinks(doc, pageURL),
	}

	doc.Find("a").Remove()
	doc.Find("header, footer, aside").Remove()

	htmlStr, err := doc.Html()
	if err != nil {
		return nil, err
	}
	md, err := htmltomarkdown.ConvertString(htmlStr)
	if err != nil {
		ps.Text = strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	} else {
		ps.Text = md
	}
	return ps, nil
}

// collectLinks resolves anchors against pageURL, drops fragments and
// non-navigable schemes, dedupes and sorts, keeping at most maxLinks.
func collectLinks(doc *goquery.Document, pageURL string) []string {
	base, _ := url.Parse(pageURL)
	set := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if !u.IsAbs() && base != nil {
			u = base.ResolveReference(u)
		}
		switch u.Scheme {
		case "http", "https":
		default:
			return
		}
		u.Fragment = ""
		set[u.String()] = struct{}{}
	})
	links := make([]string, 0, len(set))
	for l := range set {
		links = append(links, l)
	}
	sort.Strings(links)
	if len(links) > maxLinks {
		links = links[:maxLinks]
	}
	return links
}
