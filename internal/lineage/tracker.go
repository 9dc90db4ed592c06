package lineage

import (
	"slices"
	"strings"
)

// knownNames is the ordered set of lowercase CTE and temp-table names
// registered so far in one extraction.
type knownNames struct {
	names []string
	index map[string]struct{}
}

func newKnownNames() *knownNames {
	return &knownNames{index: make(map[string]struct{})}
}

func (k *knownNames) register(name string) {
	lower := strings.ToLower(name)
	if _, ok := k.index[lower]; ok {
		return
	}
	k.index[lower] = struct{}{}
	k.names = append(k.names, lower)
}

// mark returns the current scope depth for a later restore.
func (k *knownNames) mark() int {
	return len(k.names)
}

// restore forgets every name registered since mark.
func (k *knownNames) restore(mark int) {
	for _, name := range k.names[mark:] {
		delete(k.index, name)
	}
	k.names = k.names[:mark]
}

func (k *knownNames) contains(lower string) bool {
	_, ok := k.index[lower]
	return ok
}

// track records an edge from sub to ref when ref names a known query.
func (k *knownNames) track(sub *SubQuery, ref TableRef) {
	lower := strings.ToLower(ref.Name)
	if k.contains(lower) {
		addDependency(sub, lower)
	}
}

func addDependency(sub *SubQuery, id string) {
	if !slices.Contains(sub.DependsOn, id) {
		sub.DependsOn = append(sub.DependsOn, id)
	}
}
