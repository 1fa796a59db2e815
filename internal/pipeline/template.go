package pipeline

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/georgeannie/mlops-framework/internal/flagstore"
)

var placeholder = regexp.MustCompile(`\$\{\{[^}]*\}\}|\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// #region placeholders
// Placeholders returns the distinct ${name} placeholders in tmpl, sorted.
// Platform expressions written as ${{ ... }} are not placeholders.
func Placeholders(tmpl string) []string {
	seen := map[string]bool{}
	for _, m := range placeholder.FindAllStringSubmatch(tmpl, -1) {
		if m[1] != "" {
			seen[m[1]] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// #endregion placeholders

// #region render
// Render substitutes ${name} placeholders with args and leaves ${{ ... }}
// expressions untouched. Every placeholder must have a value and every
// value must be used by a placeholder.
func Render(tmpl string, args Args) (string, error) {
	if err := CheckTemplate(tmpl, args); err != nil {
		return "", err
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		if strings.HasPrefix(m, "${{") {
			return m
		}
		return args[m[2:len(m)-1]].String()
	}), nil
}

// CheckTemplate validates the placeholder set of tmpl against args without
// rendering.
func CheckTemplate(tmpl string, args Args) error {
	used := map[string]bool{}
	var missing, unused []string
	for _, name := range Placeholders(tmpl) {
		used[name] = true
		if _, ok := args[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range args {
		if !used[name] {
			unused = append(unused, name)
		}
	}
	sort.Strings(unused)
	switch {
	case len(missing) > 0:
		return fmt.Errorf("%w: unbound placeholders %s", ErrInvalidDefinition, strings.Join(missing, ", "))
	case len(unused) > 0:
		return fmt.Errorf("%w: parameters not used by template %s", ErrInvalidDefinition, strings.Join(unused, ", "))
	}
	return nil
}

// RenderFile renders the template at src into dst.
func RenderFile(src, dst string, args Args) error {
	raw, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read template: %w", err)
	}
	out, err := Render(string(raw), args)
	if err != nil {
		return fmt.Errorf("render %s: %w", src, err)
	}
	if err := flagstore.WriteFileAtomic(dst, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write rendered pipeline: %w", err)
	}
	return nil
}

// #endregion render
