package expr

import (
	"fmt"
	"strings"
)

// operatorWords are reserved as binary operators by the underlying
// expression language, so they cannot be registered as callable
// identifiers. Workflow documents still use the call form
// startsWith(a, b); compile rewrites each call into the operator form
// (a) startsWith (b) before the source reaches the compiler.
var operatorWords = []string{"contains", "startsWith", "endsWith"}

// rewriteOperatorCalls rewrites every operator-word call in src into infix
// form, recursing into arguments so nested calls work. Text inside string
// literals is left untouched.
func rewriteOperatorCalls(src string) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(src) {
		c := src[i]
		if c == '\'' || c == '"' {
			end, err := skipStringLit(src, i)
			if err != nil {
				return "", err
			}
			out.WriteString(src[i:end])
			i = end
			continue
		}

		name := operatorWordAt(src, i)
		if name == "" {
			out.WriteByte(c)
			i++
			continue
		}

		j := i + len(name)
		for j < len(src) && (src[j] == ' ' || src[j] == '\t') {
			j++
		}
		if j >= len(src) || src[j] != '(' {
			// Already infix, or a plain identifier position. Copy as is.
			out.WriteString(src[i : i+len(name)])
			i += len(name)
			continue
		}

		closing, err := matchingParen(src, j)
		if err != nil {
			return "", err
		}
		args, err := splitTopLevelArgs(src[j+1 : closing])
		if err != nil {
			return "", err
		}
		if len(args) != 2 {
			return "", fmt.Errorf("%s expects 2 arguments, got %d", name, len(args))
		}
		left, err := rewriteOperatorCalls(strings.TrimSpace(args[0]))
		if err != nil {
			return "", err
		}
		right, err := rewriteOperatorCalls(strings.TrimSpace(args[1]))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&out, "((%s) %s (%s))", left, name, right)
		i = closing + 1
	}
	return out.String(), nil
}

// operatorWordAt reports which operator word starts at position i, or ""
// when none does. Both sides must be identifier boundaries and the word
// must not be a field selector (preceded by '.').
func operatorWordAt(src string, i int) string {
	if i > 0 {
		prev := src[i-1]
		if isIdentByte(prev) || prev == '.' {
			return ""
		}
	}
	for _, name := range operatorWords {
		if !strings.HasPrefix(src[i:], name) {
			continue
		}
		end := i + len(name)
		if end < len(src) && isIdentByte(src[end]) {
			continue
		}
		return name
	}
	return ""
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// skipStringLit returns the index just past the string literal starting at
// i. Backslash escapes are honored.
func skipStringLit(src string, i int) (int, error) {
	quote := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case quote:
			return j + 1, nil
		}
	}
	return 0, fmt.Errorf("unterminated string literal in %q", src)
}

// matchingParen returns the index of the ')' balancing the '(' at open.
func matchingParen(src string, open int) (int, error) {
	depth := 0
	for i := open; i < len(src); i++ {
		switch src[i] {
		case '\'', '"':
			end, err := skipStringLit(src, i)
			if err != nil {
				return 0, err
			}
			i = end - 1
		case '(', '[':
			depth++
		case ')', ']':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced parentheses in %q", src)
}

// splitTopLevelArgs splits an argument list at commas outside any nested
// parentheses, brackets or string literals.
func splitTopLevelArgs(src string) ([]string, error) {
	var args []string
	depth, start := 0, 0
	for i := 0; i < len(src); i++ {
		switch src[i] {
		case '\'', '"':
			end, err := skipStringLit(src, i)
			if err != nil {
				return nil, err
			}
			i = end - 1
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, src[start:i])
				start = i + 1
			}
		}
	}
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	return append(args, src[start:]), nil
}
