package affiliate

import (
	"net/url"
	"regexp"
	"strings"
)

var urlRe = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// LinkPattern is the domain allow-list plus path heuristics one store
// uses to tell product links apart from coupon/category/collection
// pages. Short-link domains accept any path.
type LinkPattern struct {
	Domains      []string
	ShortDomains []string
	ProductPaths []*regexp.Regexp
	RejectPaths  []string
}

func (p LinkPattern) Match(rawURL string) bool {
	u, err := url.Parse(strings.TrimRight(rawURL, ".,"))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")

	for _, d := range p.ShortDomains {
		if host == d && u.Path != "" && u.Path != "/" {
			return true
		}
	}

	var hostOK bool
	for _, d := range p.Domains {
		if host == d {
			hostOK = true
			break
		}
	}
	if !hostOK {
		return false
	}

	path := strings.ToLower(u.Path)
	for _, rej := range p.RejectPaths {
		if strings.Contains(path, rej) {
			return false
		}
	}
	for _, re := range p.ProductPaths {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// FirstProductLink scans text for urls and returns the first one any
// registered store claims, with the store key. Only the first match
// counts; a message with several links contributes at most one.
func FirstProductLink(text string, r *Registry) (rawURL, store string, ok bool) {
	for _, raw := range urlRe.FindAllString(text, -1) {
		raw = strings.TrimRight(raw, ".,")
		if key, found := r.DetectStore(raw); found {
			return raw, key, true
		}
	}
	return "", "", false
}
