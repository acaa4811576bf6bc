package ledger

import "regexp"

var reCategoryCode = regexp.MustCompile(`^[a-z0-9_]{2,40}$`)

// IsCategoryCode reports whether s is shaped like a category code
// (lowercase slug, 2-40 chars). Membership per kind is checked against the
// dictionary package by the services.
func IsCategoryCode(s string) bool { return reCategoryCode.MatchString(s) }
