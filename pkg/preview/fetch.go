package preview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Metadata is what the scraper extracts from a page.
type Metadata struct {
	Title       string
	Description string
	Image       string
	ImageWidth  int
	ImageHeight int
	ImageAlt    string
}

// Fetcher is the opaque "fetch metadata for URL" capability the enrichment
// worker consumes. Image bytes are fetched separately so the worker can
// re-home them in blob storage.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Metadata, error)
	Download(ctx context.Context, url string) (data []byte, contentType string, err error)
}

const maxImageBytes = 10 << 20

// HTTPFetcher scrapes OpenGraph tags straight off the page HTML.
type HTTPFetcher struct {
	Client *http.Client
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: 15 * time.Second}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	meta, err := ParseOGTags(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	if meta.Title == "" {
		meta.Title = url
	}
	return meta, nil
}

func (f *HTTPFetcher) Download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// ParseOGTags walks the document and collects og: meta properties, with
// the <title> element as a fallback title.
func ParseOGTags(r io.Reader) (*Metadata, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	meta := &Metadata{}
	var title string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if n.FirstChild != nil && title == "" {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				var property, content string
				for _, attr := range n.Attr {
					switch attr.Key {
					case "property", "name":
						property = attr.Val
					case "content":
						content = attr.Val
					}
				}
				switch property {
				case "og:title":
					meta.Title = content
				case "og:description":
					meta.Description = content
				case "og:image":
					meta.Image = content
				case "og:image:width":
					meta.ImageWidth, _ = strconv.Atoi(content)
				case "og:image:height":
					meta.ImageHeight, _ = strconv.Atoi(content)
				case "og:image:alt":
					meta.ImageAlt = content
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if meta.Title == "" {
		meta.Title = title
	}
	return meta, nil
}
