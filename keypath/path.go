// Package keypath implements the addressing model shared by every storage:
// an ordered list of string segments whose first segment names a bucket.
package keypath

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidPath is matched by every *InvalidPathError.
var ErrInvalidPath = errors.New("invalid key path")

// InvalidPathError is returned when a caller supplies a path that breaks a
// precondition: empty, containing an empty segment, or shorter than a
// backend requires.
type InvalidPathError struct {
	Path   Path
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid key path %q: %s", e.Path.String(), e.Reason)
}

func (e *InvalidPathError) Is(target error) bool { return target == ErrInvalidPath }

// Path addresses a location: Path[0] is the bucket, the rest walk into it.
type Path []string

// New builds a Path from segments.
func New(segments ...string) Path {
	return Path(append([]string(nil), segments...))
}

// Parse reads the textual form produced by String. Leading and trailing
// slashes are ignored; each segment is path-unescaped.
func Parse(s string) (Path, error) {
	s = strings.Trim(s, "/")
	if s == "" {
		return nil, &InvalidPathError{Reason: "empty"}
	}
	parts := strings.Split(s, "/")
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		seg, err := url.PathUnescape(part)
		if err != nil {
			return nil, &InvalidPathError{Path: Path{s}, Reason: err.Error()}
		}
		p = append(p, seg)
	}
	return p, p.Validate()
}

// MustParse is Parse for literals; it panics on error.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Validate checks that p is non-empty and has no empty segments.
func (p Path) Validate() error {
	return p.ValidateMin(1)
}

// ValidateMin is Validate with a backend-imposed minimum length.
func (p Path) ValidateMin(n int) error {
	if len(p) == 0 {
		return &InvalidPathError{Path: p, Reason: "empty"}
	}
	if len(p) < n {
		return &InvalidPathError{Path: p, Reason: fmt.Sprintf("need at least %d segments", n)}
	}
	for i, seg := range p {
		if seg == "" {
			return &InvalidPathError{Path: p, Reason: fmt.Sprintf("segment %d is empty", i)}
		}
	}
	return nil
}

// Bucket returns the first segment, or "" for an empty path.
func (p Path) Bucket() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// Rest returns the segments below the bucket.
func (p Path) Rest() Path {
	if len(p) < 2 {
		return nil
	}
	return p[1:]
}

// Parent drops the last segment.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1]
}

// Child returns a new Path extended by segments; p is not modified.
func (p Path) Child(segments ...string) Path {
	out := make(Path, 0, len(p)+len(segments))
	out = append(out, p...)
	return append(out, segments...)
}

// HasPrefix reports whether prefix addresses p or one of its ancestors.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (p Path) Equal(o Path) bool {
	return len(p) == len(o) && p.HasPrefix(o)
}

// String joins the path-escaped segments with "/". The result is unique per
// Path, so backends use it as a flat key.
func (p Path) String() string {
	escaped := make([]string, len(p))
	for i, seg := range p {
		escaped[i] = url.PathEscape(seg)
	}
	return strings.Join(escaped, "/")
}
