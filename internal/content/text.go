package content

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// DecodeText converts body to UTF-8 using the charset from contentType (or
// sniffed from the body) and, for HTML, reduces it to the text a reader sees:
// title, description and keyword meta tags, image alt text and body text.
func DecodeText(contentType string, body []byte) (string, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", fmt.Errorf("charset reader: %w", err)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decode charset: %w", err)
	}

	text := string(decoded)
	if isHTML(contentType, decoded) {
		doc, err := html.Parse(strings.NewReader(text))
		if err != nil {
			return "", fmt.Errorf("parse html: %w", err)
		}
		text = visibleText(doc)
	}
	return strings.ToValidUTF8(text, "�"), nil
}

// DetectLanguage returns the ISO 639-1 code of text, or "" when unknown.
func DetectLanguage(text string) string {
	return whatlanggo.Detect(text).Lang.Iso6391()
}

func isHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "html") {
		return true
	}
	head := bytes.ToLower(bytes.TrimSpace(body[:min(len(body), 512)]))
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}

func visibleText(doc *html.Node) string {
	var parts []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}

	var f func(*html.Node)
	f = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			add(n.Data)
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			case "meta":
				var name, property, content string
				for _, attr := range n.Attr {
					switch attr.Key {
					case "name":
						name = strings.ToLower(attr.Val)
					case "property":
						property = strings.ToLower(attr.Val)
					case "content":
						content = attr.Val
					}
				}
				switch {
				case name == "description", name == "keywords", property == "og:title", property == "og:description":
					add(content)
				}
			case "img":
				for _, attr := range n.Attr {
					if attr.Key == "alt" || attr.Key == "title" {
						add(attr.Val)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(doc)
	return strings.Join(parts, " ")
}
