package api

import (
	"strings"

	. "github.com/warpfork/go-errcat"
)

/*
	Coordinate names a package: a namespace and a name.

	The string form is "namespace:name".  Neither half may be empty,
	and neither may contain a colon.
*/
type Coordinate struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

func ParseCoordinate(s string) (Coordinate, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Coordinate{}, Errorf(ErrInvalidVersionSpec, "coordinate %q must be in the form 'namespace:name'", s)
	}
	return Coordinate{parts[0], parts[1]}, nil
}

func (c Coordinate) String() string {
	return c.Namespace + ":" + c.Name
}

// Dotted returns "namespace.name", the form used for report suite names.
func (c Coordinate) Dotted() string {
	return c.Namespace + "." + c.Name
}

// Sanitized returns the coordinate with every character that is
// awkward in a filename replaced by an underscore.
func (c Coordinate) Sanitized() string {
	return SanitizeName(c.String())
}

func SanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
