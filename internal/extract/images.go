package extract

import (
	"encoding/hex"
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/nao1215/owlpair/internal/crawler"
)

// ImageAttrs are the <img> attributes checked for an image URL, in priority
// order. Lazy-loading libraries keep the real URL in the data-* variants
// and put an inline placeholder in src, so unusable values are skipped.
var ImageAttrs = []string{"src", "data-src", "data-original", "data-lazy-src"}

// extPattern accepts short alphanumeric file extensions.
var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)

// FindImages returns the absolute URLs of the images below n, resolved
// against pageURL, in document order. Images that map to the same cache
// file are listed once.
func FindImages(n *html.Node, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	var urls []string
	seen := make(map[string]bool)
	walkElements(n, func(e *html.Node) bool {
		if e.DataAtom != atom.Img {
			return true
		}
		for _, name := range ImageAttrs {
			ref := strings.TrimSpace(attr(e, name))
			if ref == "" {
				continue
			}
			abs := crawler.ResolveURL(base, ref)
			if abs == "" || !isHTTPURL(abs) {
				continue
			}
			if key := CacheFileName(abs); !seen[key] {
				seen[key] = true
				urls = append(urls, abs)
			}
			break
		}
		return true
	})
	return urls
}

// CacheFileName derives the cache file name of an image URL: the hex of the
// first 16 bytes of the SHA3-256 digest of the URL followed by the URL
// path's extension.
func CacheFileName(imageURL string) string {
	sum := sha3.Sum256([]byte(imageURL))
	return hex.EncodeToString(sum[:16]) + imageExt(imageURL)
}

// imageExt returns the lower-cased extension of the URL path, or "" when
// it does not look like a file extension.
func imageExt(imageURL string) string {
	p := imageURL
	if u, err := url.Parse(imageURL); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if !extPattern.MatchString(ext) {
		return ""
	}
	return ext
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Host != "" && (u.Scheme == "http" || u.Scheme == "https")
}
