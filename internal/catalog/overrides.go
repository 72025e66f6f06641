package catalog

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/okian/fishy/internal/domain/scoring"
)

// overrideFile is the TOML layout accepted by LoadOverrides:
//
//	[[list]]
//	id = "hdl"
//	cutoff = 100
//
//	[[list]]
//	id = "mirror"
//	name = "MIR"
//	full_name = "Mirrored List"
//	formula = "hdl"
//	source = "repo"
//	repo = "https://example.com/mirror.git"
type overrideFile struct {
	Lists []override `toml:"list"`
}

type override struct {
	ID       string `toml:"id"`
	Name     string `toml:"name"`
	FullName string `toml:"full_name"`
	Cutoff   *int   `toml:"cutoff"`
	Formula  string `toml:"formula"`
	Source   string `toml:"source"`
	Endpoint string `toml:"endpoint"`
	Mapper   string `toml:"mapper"`
	Repo     string `toml:"repo"`
	Disabled bool   `toml:"disabled"`
}

// LoadOverrides applies the TOML file at path on top of base and returns a new Catalog.
// Entries matching an existing id patch the fields they set; disabled entries are
// removed; unknown ids are appended and must be complete definitions.
func LoadOverrides(path string, base *Catalog) (*Catalog, error) {
	var f overrideFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidList, path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: %s: unknown keys %s", ErrInvalidList, path, strings.Join(keys, ", "))
	}
	return applyOverrides(base, f.Lists)
}

func applyOverrides(base *Catalog, overrides []override) (*Catalog, error) {
	lists := base.All()
	index := make(map[string]int, len(lists))
	for i, l := range lists {
		index[l.ID] = i
	}
	removed := make(map[string]bool)

	for _, o := range overrides {
		if o.ID == "" {
			return nil, fmt.Errorf("%w: override without id", ErrInvalidList)
		}
		if o.Disabled {
			removed[o.ID] = true
			continue
		}
		i, exists := index[o.ID]
		var l List
		if exists {
			l = lists[i]
		} else {
			l = List{ID: o.ID}
		}
		if err := patch(&l, o); err != nil {
			return nil, err
		}
		if exists {
			lists[i] = l
		} else {
			index[o.ID] = len(lists)
			lists = append(lists, l)
		}
	}

	kept := lists[:0]
	for _, l := range lists {
		if !removed[l.ID] {
			kept = append(kept, l)
		}
	}
	return New(kept...)
}

func patch(l *List, o override) error {
	if o.Name != "" {
		l.Name = o.Name
	}
	if o.FullName != "" {
		l.FullName = o.FullName
	}
	if o.Cutoff != nil {
		l.Cutoff = *o.Cutoff
	}
	if o.Formula != "" {
		f, err := scoring.Lookup(o.Formula)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidList, o.ID, err)
		}
		l.Formula, l.Score = o.Formula, f
	}
	if o.Source != "" {
		l.Source = Source{Kind: SourceKind(o.Source)}
	}
	if o.Endpoint != "" {
		l.Source.Endpoint = o.Endpoint
	}
	if o.Mapper != "" {
		l.Source.Mapper = o.Mapper
	}
	if o.Repo != "" {
		l.Source.Repo = o.Repo
	}
	if l.Name == "" {
		l.Name = strings.ToUpper(l.ID)
	}
	if l.FullName == "" {
		l.FullName = l.Name
	}
	return nil
}
