package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	// maxBody caps how much of a response is read (5MB)
	maxBody = 5 * 1024 * 1024
	// maxText caps the extracted text (10KB)
	maxText = 10 * 1024
)

// Page is the readable part of an HTML document
type Page struct {
	URL        string
	Title      string
	Paragraphs []string
}

// Fetch retrieves URL content and extracts readable text
func Fetch(ctx context.Context, rawURL string) (*Page, error) {
	// Validate URL
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" {
		u, err = url.Parse("https://" + strings.TrimSpace(rawURL))
		if err != nil {
			return nil, fmt.Errorf("invalid URL: %w", err)
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	// Fetch with timeout
	client := &http.Client{Timeout: 30 * time.Second}
	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "notes/1.0 (web clipper)")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	page, err := Parse(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}
	page.URL = u.String()

	if len(page.Paragraphs) == 0 {
		return nil, fmt.Errorf("no text content found")
	}
	return page, nil
}

// IsURL checks if a string looks like a URL
func IsURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "www.")
}

// Parse reads an HTML document and returns its title and text paragraphs
func Parse(r io.Reader) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	page := &Page{}
	var current strings.Builder
	size := 0

	// Tags to skip (non-content)
	skipTags := map[string]bool{
		"script": true, "style": true, "nav": true,
		"header": true, "footer": true, "aside": true,
		"noscript": true, "iframe": true,
	}

	flush := func() {
		// Collapse whitespace inside the paragraph
		text := strings.Join(strings.Fields(current.String()), " ")
		current.Reset()
		if text == "" || size >= maxText {
			return
		}
		if size+len(text) > maxText {
			text = truncateUTF8(text, maxText-size) + "..."
		}
		size += len(text)
		page.Paragraphs = append(page.Paragraphs, text)
	}

	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "title" && page.Title == "" && n.FirstChild != nil {
				page.Title = strings.Join(strings.Fields(n.FirstChild.Data), " ")
				return
			}
			if skipTags[n.Data] {
				return
			}
		}

		if n.Type == html.TextNode {
			current.WriteString(n.Data)
			current.WriteString(" ")
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}

		// Block elements end a paragraph
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "br", "blockquote", "pre":
				flush()
			}
		}
	}

	extract(doc)
	flush()

	return page, nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
