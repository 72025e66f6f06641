package sources

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/okian/fishy/internal/catalog"
	"github.com/okian/fishy/internal/domain/model"
)

// mapper turns a response body into ranked items.
type mapper func(body []byte) ([]model.RankedItem, error)

func mapperFor(name string) (mapper, error) {
	switch name {
	case catalog.MapperAREDL:
		return mapAREDL, nil
	case catalog.MapperPositioned:
		return mapPositioned, nil
	case catalog.MapperPemonlist:
		return mapPemonlist, nil
	default:
		return nil, fmt.Errorf("unknown mapper %q", name)
	}
}

// flexID accepts identifiers published either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

type aredlLevel struct {
	Name     string `json:"name"`
	Position int    `json:"position"`
	Legacy   bool   `json:"legacy"`
}

func mapAREDL(body []byte) ([]model.RankedItem, error) {
	var levels []aredlLevel
	if err := json.Unmarshal(body, &levels); err != nil {
		return nil, err
	}
	out := make([]model.RankedItem, 0, len(levels))
	for _, l := range levels {
		if l.Legacy {
			continue
		}
		out = append(out, model.RankedItem{Name: l.Name, Rank: l.Position, Filename: Slugify(l.Name)})
	}
	return out, nil
}

type positionedLevel struct {
	Name     string `json:"name"`
	Position int    `json:"position"`
	ID       flexID `json:"id"`
}

func mapPositioned(body []byte) ([]model.RankedItem, error) {
	var levels []positionedLevel
	if err := json.Unmarshal(body, &levels); err != nil {
		return nil, err
	}
	out := make([]model.RankedItem, 0, len(levels))
	for _, l := range levels {
		out = append(out, model.RankedItem{Name: l.Name, Rank: l.Position, Filename: string(l.ID)})
	}
	return out, nil
}

type pemonlistResponse struct {
	Data []struct {
		Name      string `json:"name"`
		Placement int    `json:"placement"`
		LevelID   flexID `json:"level_id"`
	} `json:"data"`
}

func mapPemonlist(body []byte) ([]model.RankedItem, error) {
	var resp pemonlistResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make([]model.RankedItem, 0, len(resp.Data))
	for _, l := range resp.Data {
		out = append(out, model.RankedItem{Name: l.Name, Rank: l.Placement, Filename: string(l.LevelID)})
	}
	return out, nil
}

var (
	slugSeparators = regexp.MustCompile(`[\s()]+`)
	slugInvalid    = regexp.MustCompile(`[^a-z0-9_]`)
	slugRepeats    = regexp.MustCompile(`_+`)
)

// Slugify derives a filename from a display name:
// "Tidal Wave (Old)" -> "tidal_wave_old".
func Slugify(name string) string {
	s := strings.ToLower(name)
	s = slugSeparators.ReplaceAllString(s, "_")
	s = slugInvalid.ReplaceAllString(s, "")
	s = slugRepeats.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
