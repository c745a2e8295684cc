// Package template implements the closed-vocabulary, single-pass
// placeholder substitution used to specialize a ProbeSpec for one
// (team, box) target (spec.md §4.2, §9).
package template

import (
	"log"
	"strings"
	"sync"
)

// Values are the recognized substitutions for one target.
type Values struct {
	TeamName string
	BoxName  string
	IP       string
	Username string
	Password string

	// HasCredentials is false when no credential lookup succeeded for
	// this (team, box). Resolve short-circuits on {{ username }} /
	// {{ password }} in that case (spec.md §4.2).
	HasCredentials bool
}

// ErrNoCredentials is returned by Resolve when the input references
// {{ username }} or {{ password }} but Values.HasCredentials is false.
var ErrNoCredentials = noCredentialsError{}

type noCredentialsError struct{}

func (noCredentialsError) Error() string { return "no creds" }

var warnedOnce sync.Map // key: check+"\x00"+placeholder

// Resolve substitutes every recognized placeholder in s exactly once
// (no recursive re-substitution). Unknown "{{ ... }}" placeholders are
// left literal; the first time a given (checkName, placeholder) pair is
// seen it is logged once.
func Resolve(checkName, s string, v Values) (string, error) {
	needsCreds := strings.Contains(s, "{{ username }}") || strings.Contains(s, "{{ password }}")
	if needsCreds && !v.HasCredentials {
		return "", ErrNoCredentials
	}

	replacer := strings.NewReplacer(
		"{{ team_name }}", v.TeamName,
		"{{ box_name }}", v.BoxName,
		"{{ ip }}", v.IP,
		"{{ username }}", v.Username,
		"{{ password }}", v.Password,
	)
	out := replacer.Replace(s)
	warnUnknownPlaceholders(checkName, out)
	return out, nil
}

func warnUnknownPlaceholders(checkName, s string) {
	for {
		start := strings.Index(s, "{{")
		if start == -1 {
			return
		}
		end := strings.Index(s[start:], "}}")
		if end == -1 {
			return
		}
		placeholder := s[start : start+end+2]
		s = s[start+end+2:]

		key := checkName + "\x00" + placeholder
		if _, seen := warnedOnce.LoadOrStore(key, struct{}{}); !seen {
			log.Printf("template: unknown placeholder %q in check %q left literal", placeholder, checkName)
		}
	}
}
