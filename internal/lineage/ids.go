package lineage

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// IDScheme selects how derived-table ids are generated.
type IDScheme string

const (
	// IDSequential numbers derived tables sub_1, sub_2, ... in discovery order.
	IDSequential IDScheme = "sequential"
	// IDRandom uses sub_ followed by 8 hex digits of a random UUID.
	IDRandom IDScheme = "random"
)

const subQueryIDPrefix = "sub_"

// ParseIDScheme validates a scheme name. An empty name selects IDSequential.
func ParseIDScheme(s string) (IDScheme, error) {
	switch IDScheme(s) {
	case "", IDSequential:
		return IDSequential, nil
	case IDRandom:
		return IDRandom, nil
	}
	return "", fmt.Errorf("unknown id scheme %q (want %s or %s)", s, IDSequential, IDRandom)
}

// idGenerator hands out derived-table ids for one extraction.
type idGenerator interface {
	next() string
}

type sequentialIDs struct {
	n int
}

func (g *sequentialIDs) next() string {
	g.n++
	return subQueryIDPrefix + strconv.Itoa(g.n)
}

type randomIDs struct {
	seen map[string]struct{}
}

func (g *randomIDs) next() string {
	for {
		id := subQueryIDPrefix + uuid.NewString()[:8]
		if _, dup := g.seen[id]; !dup {
			g.seen[id] = struct{}{}
			return id
		}
	}
}

func newIDGenerator(scheme IDScheme) idGenerator {
	if scheme == IDRandom {
		return &randomIDs{seen: make(map[string]struct{})}
	}
	return &sequentialIDs{}
}
