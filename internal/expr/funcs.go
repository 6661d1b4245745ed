package expr

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// addBuiltins installs the expression function set into the identifier
// namespace. Status functions close over the evaluation site, mirroring the
// reference platform: success() in a step condition reflects the job so
// far, not the whole run.
func addBuiltins(m map[string]any, env Env, baseDir string) {
	m["success"] = func() bool { return env.Succeeded }
	m["failure"] = func() bool { return env.Failed }
	m["cancelled"] = func() bool { return env.Cancelled }
	m["always"] = func() bool { return true }

	m["toJSON"] = func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	m["fromJSON"] = func(s string) (any, error) {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, err
		}
		return v, nil
	}

	// contains, startsWith and endsWith are operator words in the
	// expression language; compile rewrites their call form to infix, so
	// they need no entry here.
	m["format"] = formatFunc
	m["join"] = func(parts []any, sep string) string {
		strs := make([]string, len(parts))
		for i, p := range parts {
			strs[i] = Stringify(p)
		}
		return strings.Join(strs, sep)
	}

	m["hashFiles"] = func(patterns ...string) (string, error) {
		return hashFiles(baseDir, patterns)
	}
}

// formatFunc implements format('{0} {1}', a, b) placeholder substitution.
func formatFunc(layout string, args ...any) string {
	out := layout
	for i, arg := range args {
		placeholder := fmt.Sprintf("{%d}", i)
		out = strings.ReplaceAll(out, placeholder, Stringify(arg))
	}
	return out
}

// hashFiles returns a hex sha256 over the contents of every file matching
// the glob patterns, in sorted path order. No matches yields "", matching
// the reference platform.
func hashFiles(baseDir string, patterns []string) (string, error) {
	if baseDir == "" {
		return "", nil
	}

	var paths []string
	fsys := os.DirFS(baseDir)
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return "", fmt.Errorf("hashFiles pattern %q: %w", pattern, err)
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return "", nil
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		f, err := fsys.Open(p)
		if err != nil {
			return "", fmt.Errorf("hashFiles open %q: %w", p, err)
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("hashFiles read %q: %w", p, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
