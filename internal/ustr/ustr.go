// Package ustr provides the small path-string helpers the external
// namespace collaborator (fsiface) uses to resolve "." and ".." segments
// relative to a process's cwd. Adapted from biscuit/src/ustr/ustr.go,
// trimmed to the dot/dotdot/join operations fsiface.Namei actually needs —
// the original's byte-slice Ustr type existed to avoid allocating Go
// strings on every path lookup, a concern that does not apply to this
// port's in-memory, allocation-cheap namespace.
package ustr

import "strings"

// Ustr is a path, represented as its '/'-separated components.
type Ustr []string

// Parse splits p into components, dropping empty segments so that "a//b"
// and "a/b" parse identically.
func Parse(p string) Ustr {
	var out Ustr
	for _, c := range strings.Split(p, "/") {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Isdot reports whether us names the current directory.
func (us Ustr) Isdot() bool {
	return len(us) == 1 && us[0] == "."
}

// Isdotdot reports whether us names the parent directory.
func (us Ustr) Isdotdot() bool {
	return len(us) == 1 && us[0] == ".."
}

// Eq reports whether us and s have identical components.
func (us Ustr) Eq(s Ustr) bool {
	if len(us) != len(s) {
		return false
	}
	for i := range us {
		if us[i] != s[i] {
			return false
		}
	}
	return true
}

// String joins us back into a canonical absolute path.
func (us Ustr) String() string {
	return "/" + strings.Join(us, "/")
}

// Clean resolves "." and ".." components against a starting point of "/",
// the canonicalization fsiface.Namei applies to every lookup.
func Clean(p string) string {
	var stack Ustr
	for _, c := range Parse(p) {
		switch {
		case c == ".":
			// no-op
		case c == "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, c)
		}
	}
	return stack.String()
}

// Join resolves p against cwd if p is not already absolute.
func Join(cwd, p string) string {
	if strings.HasPrefix(p, "/") {
		return Clean(p)
	}
	return Clean(cwd + "/" + p)
}
