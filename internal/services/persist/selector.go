package persist

import "strings"

// Selector decides which payload elements a write pass persists.
type Selector interface {
    Selected(path string) bool
    // Under reports whether anything at or below path is selected.
    Under(path string) bool
}

type all struct{}

func (all) Selected(string) bool { return true }
func (all) Under(string) bool    { return true }

// All selects every element.
var All Selector = all{}

// Paths selects exactly the given element paths.
type Paths map[string]struct{}

func NewPaths(paths ...string) Paths {
    p := make(Paths, len(paths))
    for _, path := range paths {
        p[path] = struct{}{}
    }
    return p
}

func (p Paths) Selected(path string) bool {
    _, ok := p[path]
    return ok
}

func (p Paths) Under(path string) bool {
    for sel := range p {
        if sel == path || isChild(sel, path) {
            return true
        }
    }
    return false
}

func isChild(path, prefix string) bool {
    if !strings.HasPrefix(path, prefix) || len(path) == len(prefix) {
        return false
    }
    c := path[len(prefix)]
    return c == '.' || c == '['
}
