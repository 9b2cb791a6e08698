package feed

import (
	"fmt"
	"strings"
)

// DefaultIDPrefix marks identifiers synthesized from a row's name.
const DefaultIDPrefix = "GEN-"

var idColumns = []string{"Equipo_ID", "ID", "Id", "Codigo", "Code"}

// Resolver assigns stable identifiers to equipment rows within one pass.
// Use a fresh Resolver per sync.
type Resolver struct {
	prefix string
	names  map[string]string
}

func NewResolver(prefix string) *Resolver {
	if prefix == "" {
		prefix = DefaultIDPrefix
	}
	return &Resolver{
		prefix: prefix,
		names:  make(map[string]string),
	}
}

// SyntheticID derives a deterministic id from name and category.
func SyntheticID(prefix, name, category string) string {
	upper := strings.ToUpper(name + category)
	var b strings.Builder
	b.WriteString(prefix)
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Resolve returns the id for the row at position pos. duplicate is true when
// an earlier row with the same id and name was already seen; the caller
// should drop the row.
func (r *Resolver) Resolve(rawID, name, category string, pos int) (id string, duplicate bool) {
	id = strings.TrimSpace(rawID)
	if id == "" {
		id = SyntheticID(r.prefix, name, category)
	}

	seenName, taken := r.names[id]
	if !taken {
		r.names[id] = name
		return id, false
	}
	if seenName == name {
		return id, true
	}

	candidate := fmt.Sprintf("%s-R%d", id, pos)
	for n := 2; ; n++ {
		if _, clash := r.names[candidate]; !clash {
			break
		}
		candidate = fmt.Sprintf("%s-R%d-%d", id, pos, n)
	}
	r.names[candidate] = name
	return candidate, false
}
