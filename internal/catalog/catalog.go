// Package catalog is the static registry of lists the game draws from.
package catalog

import (
	"fmt"
	"sort"

	"github.com/okian/fishy/internal/domain/scoring"
)

// SourceKind tags how a list's items are fetched.
type SourceKind string

// Source kinds.
const (
	SourceAPI  SourceKind = "api"
	SourceRepo SourceKind = "repo"
)

// API response mappers.
const (
	MapperAREDL      = "aredl"      // [{name, position, legacy}], names slugified
	MapperPositioned = "positioned" // [{name, position, id}]
	MapperPemonlist  = "pemonlist"  // {data: [{name, placement, level_id}]}
)

// Source describes where a list lives. Endpoint and Mapper apply to SourceAPI,
// Repo to SourceRepo.
type Source struct {
	Kind     SourceKind
	Endpoint string
	Mapper   string
	Repo     string
}

// List is one list definition.
type List struct {
	ID       string
	Name     string
	FullName string
	// Cutoff bounds the drawable ranks; 0 means every cached item is eligible.
	Cutoff  int
	Formula string
	Score   scoring.Func
	Source  Source
}

// Eligible returns how many of n cached items can be drawn.
func (l List) Eligible(n int) int {
	if l.Cutoff > 0 && l.Cutoff < n {
		return l.Cutoff
	}
	return n
}

func (l List) validate() error {
	if l.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidList)
	}
	if l.Cutoff < 0 {
		return fmt.Errorf("%w: %s: negative cutoff", ErrInvalidList, l.ID)
	}
	if l.Score == nil {
		return fmt.Errorf("%w: %s: no score formula", ErrInvalidList, l.ID)
	}
	switch l.Source.Kind {
	case SourceAPI:
		if l.Source.Endpoint == "" {
			return fmt.Errorf("%w: %s: api source without endpoint", ErrInvalidList, l.ID)
		}
		switch l.Source.Mapper {
		case MapperAREDL, MapperPositioned, MapperPemonlist:
		default:
			return fmt.Errorf("%w: %s: unknown mapper %q", ErrInvalidList, l.ID, l.Source.Mapper)
		}
	case SourceRepo:
		if l.Source.Repo == "" {
			return fmt.Errorf("%w: %s: repo source without url", ErrInvalidList, l.ID)
		}
	default:
		return fmt.Errorf("%w: %s: unknown source kind %q", ErrInvalidList, l.ID, l.Source.Kind)
	}
	return nil
}

// Catalog is an immutable, ordered set of lists.
type Catalog struct {
	lists []List
	byID  map[string]List
}

// New validates lists and builds a Catalog preserving their order.
func New(lists ...List) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]List, len(lists))}
	for _, l := range lists {
		if err := l.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[l.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidList, l.ID)
		}
		c.byID[l.ID] = l
		c.lists = append(c.lists, l)
	}
	return c, nil
}

// Get returns the list with id.
func (c *Catalog) Get(id string) (List, error) {
	l, ok := c.byID[id]
	if !ok {
		return List{}, fmt.Errorf("%w: %q", ErrUnknownList, id)
	}
	return l, nil
}

// Has reports whether id is a known list.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// All returns the lists in catalogue order.
func (c *Catalog) All() []List {
	out := make([]List, len(c.lists))
	copy(out, c.lists)
	return out
}

// IDs returns the list ids sorted.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func mustFormula(name string) scoring.Func {
	f, err := scoring.Lookup(name)
	if err != nil {
		panic(err)
	}
	return f
}

// Builtin returns the default list definitions.
func Builtin() []List {
	return []List{
		{
			ID: "aredl", Name: "AREDL", FullName: "All Rated Extreme Demons List",
			Formula: scoring.FormulaAREDL, Score: mustFormula(scoring.FormulaAREDL),
			Source: Source{Kind: SourceAPI, Endpoint: "https://api.aredl.net/v2/api/aredl/levels", Mapper: MapperAREDL},
		},
		{
			ID: "hdl", Name: "HDL", FullName: "Hard Demon List", Cutoff: 150,
			Formula: scoring.FormulaHDL, Score: mustFormula(scoring.FormulaHDL),
			Source: Source{Kind: SourceRepo, Repo: "https://github.com/Robaleg9/HardDemonList.git"},
		},
		{
			ID: "idl", Name: "IDL", FullName: "Insane Demon List", Cutoff: 150,
			Formula: scoring.FormulaIDL, Score: mustFormula(scoring.FormulaIDL),
			Source: Source{Kind: SourceAPI, Endpoint: "https://insanedemonlist.com/api/levels", Mapper: MapperPositioned},
		},
		{
			ID: "cl", Name: "CL", FullName: "Challenge List", Cutoff: 100,
			Formula: scoring.FormulaCL, Score: mustFormula(scoring.FormulaCL),
			Source: Source{Kind: SourceAPI, Endpoint: "https://challengelist.gd/api/v1/demons/?limit=100", Mapper: MapperPositioned},
		},
		{
			ID: "udl", Name: "UDL", FullName: "Unrated Demon List", Cutoff: 150,
			Formula: scoring.FormulaUDL, Score: mustFormula(scoring.FormulaUDL),
			Source: Source{Kind: SourceRepo, Repo: "https://github.com/Unrated-Demon-List/unrated-demon-list.git"},
		},
		{
			ID: "2pl", Name: "2PL", FullName: "2 Player List", Cutoff: 75,
			Formula: scoring.Formula2PL, Score: mustFormula(scoring.Formula2PL),
			Source: Source{Kind: SourceRepo, Repo: "https://github.com/2plist/2plist.git"},
		},
		{
			ID: "tsl", Name: "TSL", FullName: "The Shitty List", Cutoff: 150,
			Formula: scoring.FormulaTSL, Score: mustFormula(scoring.FormulaTSL),
			Source: Source{Kind: SourceRepo, Repo: "https://github.com/TheShittyList/TheShittyListPlus.git"},
		},
		{
			ID: "pl", Name: "PL", FullName: "Pemonlist", Cutoff: 150,
			Formula: scoring.FormulaPemonlist, Score: mustFormula(scoring.FormulaPemonlist),
			Source: Source{Kind: SourceAPI, Endpoint: "https://pemonlist.com/api/list?limit=150", Mapper: MapperPemonlist},
		},
	}
}

// Default returns the built-in catalogue.
func Default() *Catalog {
	c, err := New(Builtin()...)
	if err != nil {
		panic(err)
	}
	return c
}
