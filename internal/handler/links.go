package handler

import (
	"fmt"
	"net/http"
	"strings"
)

// Links builds the absolute URLs embedded in responses ("self", "next",
// "avatar_url", profile course lists). With a configured public URL every
// link uses it; otherwise links are derived from the request's host.
type Links struct {
	base string
}

func NewLinks(publicURL string) Links {
	return Links{base: strings.TrimRight(publicURL, "/")}
}

func (l Links) root(r *http.Request) string {
	if l.base != "" {
		return l.base
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (l Links) Course(r *http.Request, id int64) string {
	return fmt.Sprintf("%s/courses/%d", l.root(r), id)
}

func (l Links) CoursePage(r *http.Request, offset, limit int) string {
	return fmt.Sprintf("%s/courses?offset=%d&limit=%d", l.root(r), offset, limit)
}

func (l Links) Avatar(r *http.Request, userID int64) string {
	return fmt.Sprintf("%s/users/%d/avatar", l.root(r), userID)
}
