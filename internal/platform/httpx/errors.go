package httpx

import (
	"errors"
	"net/http"
)

// Rule maps an error matched with errors.Is to a problem status.
type Rule struct {
	Target error
	Status int
	Title  string
}

// Generic sentinels for handlers without a domain error of their own.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrValidation = errors.New("validation failed")
)

var baseRules = []Rule{
	{Target: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Target: ErrValidation, Status: http.StatusBadRequest, Title: "Validation Failed"},
}

// RespondError writes the problem matching err. Handler rules are tried
// before the generic ones; unmatched errors become a 500 without detail.
func RespondError(w http.ResponseWriter, err error, rules ...Rule) {
	for _, set := range [][]Rule{rules, baseRules} {
		for _, rule := range set {
			if errors.Is(err, rule.Target) {
				Problem(w, rule.Status, rule.Title, err.Error())
				return
			}
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

// StatusFor reports the status RespondError would write for err.
func StatusFor(err error, rules ...Rule) int {
	for _, set := range [][]Rule{rules, baseRules} {
		for _, rule := range set {
			if errors.Is(err, rule.Target) {
				return rule.Status
			}
		}
	}
	return http.StatusInternalServerError
}
