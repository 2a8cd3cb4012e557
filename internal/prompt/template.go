// Package prompt renders the small {{variable}} templates used to build LLM
// requests.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

var variablePattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Template pairs a system and a user message template.
type Template struct {
	System string
	User   string
}

// Variables lists the distinct variables used by either message.
func (t Template) Variables() []string {
	return ExtractVariables(t.System + " " + t.User)
}

// Render fills both messages from vars. A variable missing from vars is an
// error; extra entries are ignored.
func (t Template) Render(vars map[string]string) (system, user string, err error) {
	if system, err = Render(t.System, vars); err != nil {
		return "", "", fmt.Errorf("system template: %w", err)
	}
	if user, err = Render(t.User, vars); err != nil {
		return "", "", fmt.Errorf("user template: %w", err)
	}
	return system, user, nil
}

// Render replaces {{variable}} placeholders in the template with values from vars.
// Substituted values are not rescanned, so user text containing braces is kept verbatim.
func Render(template string, vars map[string]string) (string, error) {
	missing := findMissingVars(template, vars)
	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}

	result := variablePattern.ReplaceAllStringFunc(template, func(match string) string {
		key := match[2 : len(match)-2] // strip {{ and }}
		if val, ok := vars[key]; ok {
			return val
		}
		return match
	})

	return result, nil
}

// ExtractVariables returns a list of variable names found in the template.
func ExtractVariables(template string) []string {
	matches := variablePattern.FindAllStringSubmatch(template, -1)
	seen := make(map[string]bool)
	var vars []string
	for _, m := range matches {
		if len(m) > 1 && !seen[m[1]] {
			vars = append(vars, m[1])
			seen[m[1]] = true
		}
	}
	return vars
}

func findMissingVars(template string, vars map[string]string) []string {
	required := ExtractVariables(template)
	var missing []string
	for _, v := range required {
		if _, ok := vars[v]; !ok {
			missing = append(missing, v)
		}
	}
	return missing
}
