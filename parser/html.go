// Package parser holds the HTML query helpers used to navigate library sites
// and the result-count parser for search result pages.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ValueMatcher tests an attribute value. A nil matcher only requires the
// attribute to be present.
type ValueMatcher func(string) bool

// Equals matches an attribute value exactly.
func Equals(want string) ValueMatcher {
	return func(v string) bool { return v == want }
}

// EqualsFold matches an attribute value ignoring case.
func EqualsFold(want string) ValueMatcher {
	return func(v string) bool { return strings.EqualFold(v, want) }
}

// Matches reports whether the value contains a match of re.
func Matches(re *regexp.Regexp) ValueMatcher {
	return re.MatchString
}

// Attrs maps attribute names to value matchers.
type Attrs map[string]ValueMatcher

// Query selects elements by tag name and attribute filter. An empty tag
// matches any element.
type Query struct {
	Tag   string
	Attrs Attrs
}

func (q Query) selector() string {
	if q.Tag == "" {
		return "*"
	}
	return q.Tag
}

func (q Query) matches(s *goquery.Selection) bool {
	for name, match := range q.Attrs {
		value, ok := s.Attr(name)
		if !ok {
			return false
		}
		if match != nil && !match(value) {
			return false
		}
	}
	return true
}

// ParseDocument parses an HTML page.
func ParseDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// FindFirst returns the first element under root, in document order, that
// matches q. When child is given only candidates with a matching descendant
// qualify, and nil is returned if none does.
func FindFirst(root *goquery.Selection, q Query, child *Query) *goquery.Selection {
	var found *goquery.Selection
	root.Find(q.selector()).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !q.matches(s) {
			return true
		}
		if child != nil && !hasDescendant(s, *child) {
			return true
		}
		found = s
		return false
	})
	return found
}

// FindFirstInHTML parses body and runs FindFirst on the whole document.
func FindFirstInHTML(body []byte, q Query, child *Query) (*goquery.Selection, error) {
	doc, err := ParseDocument(body)
	if err != nil {
		return nil, err
	}
	return FindFirst(doc.Selection, q, child), nil
}

func hasDescendant(s *goquery.Selection, q Query) bool {
	matched := false
	s.Find(q.selector()).EachWithBreak(func(_ int, d *goquery.Selection) bool {
		matched = q.matches(d)
		return !matched
	})
	return matched
}

var postForm = Query{Tag: "form", Attrs: Attrs{"method": EqualsFold("post")}}

// FormPostTarget returns the action of the first POST form containing child.
// The action is resolved against pageURL when it is non-nil and returned
// verbatim otherwise, so a missing action yields the page URL or "".
// ok is false when no qualifying form exists.
func FormPostTarget(root *goquery.Selection, child *Query, pageURL *url.URL) (target string, ok bool) {
	form := FindFirst(root, postForm, child)
	if form == nil {
		return "", false
	}
	// A form without an action posts back to the page itself.
	action, _ := form.Attr("action")
	if pageURL == nil {
		return action, true
	}
	return ResolveHref(pageURL, action)
}

// ResolveHref joins href onto base following standard reference resolution.
func ResolveHref(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	if base == nil {
		return ref.String(), true
	}
	return base.ResolveReference(ref).String(), true
}
