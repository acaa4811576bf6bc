package httpapi

import (
	"github.com/treiswell/fintrack/internal/service/book"
	"github.com/treiswell/fintrack/internal/service/rule"
)

// Repository abstracts read-side operations needed by the API. The rule and
// book read interfaces overlap on rule lookups; both stores satisfy the union.
type Repository interface {
	rule.Repo
	book.Repo
}

// Writer abstracts write-side operations needed by the API.
type Writer interface {
	rule.Writer
	book.Writer
}
