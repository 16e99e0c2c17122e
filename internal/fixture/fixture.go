// Package fixture reads and writes a complete dataset as a single YAML
// document, with zone geometry inlined as GeoJSON.
package fixture

import (
	"bytes"
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/agristat/internal/geometry"
	"github.com/sells-group/agristat/internal/model"
)

type document struct {
	Zones      []zoneDoc         `yaml:"zones"`
	Sectors    []model.Sector    `yaml:"sectors"`
	SubSectors []model.SubSector `yaml:"sub_sectors"`
	Facts      []model.Fact      `yaml:"facts"`
}

type zoneDoc struct {
	ID       int64       `yaml:"id"`
	Name     string      `yaml:"name"`
	Level    model.Level `yaml:"level"`
	Code     string      `yaml:"code"`
	ParentID *int64      `yaml:"parent_id,omitempty"`
	Geometry any         `yaml:"geometry,omitempty"`
}

// Parse decodes a YAML dataset. Unknown keys are rejected so typos in
// hand-edited fixtures surface instead of silently dropping data.
func Parse(data []byte) (*model.Dataset, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "fixture: decode yaml")
	}

	ds := &model.Dataset{
		Zones:      make([]model.Zone, 0, len(doc.Zones)),
		Sectors:    doc.Sectors,
		SubSectors: doc.SubSectors,
		Facts:      doc.Facts,
	}
	for _, z := range doc.Zones {
		wkb, err := geometryFromYAML(z.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "fixture: zone %s", z.Code)
		}
		ds.Zones = append(ds.Zones, model.Zone{
			ID:       z.ID,
			Name:     z.Name,
			Level:    z.Level,
			Code:     z.Code,
			ParentID: z.ParentID,
			Geometry: wkb,
		})
	}
	return ds, nil
}

// Load reads and parses the fixture at path.
func Load(path string) (*model.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "fixture: read file")
	}
	return Parse(data)
}

// Marshal encodes ds as a YAML fixture.
func Marshal(ds *model.Dataset) ([]byte, error) {
	doc := document{
		Zones:      make([]zoneDoc, 0, len(ds.Zones)),
		Sectors:    ds.Sectors,
		SubSectors: ds.SubSectors,
		Facts:      ds.Facts,
	}
	for _, z := range ds.Zones {
		g, err := geometryToYAML(z.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "fixture: zone %s", z.Code)
		}
		doc.Zones = append(doc.Zones, zoneDoc{
			ID:       z.ID,
			Name:     z.Name,
			Level:    z.Level,
			Code:     z.Code,
			ParentID: z.ParentID,
			Geometry: g,
		})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, eris.Wrap(err, "fixture: encode yaml")
	}
	if err := enc.Close(); err != nil {
		return nil, eris.Wrap(err, "fixture: encode yaml")
	}
	return buf.Bytes(), nil
}

// Write encodes ds to path.
func Write(path string, ds *model.Dataset) error {
	data, err := Marshal(ds)
	if err != nil {
		return err
	}
	return eris.Wrap(os.WriteFile(path, data, 0o644), "fixture: write file")
}

// Loader implements snapshot.Loader over a fixture file. The file is re-read
// on every Load.
type Loader struct {
	Path string
}

// Load implements snapshot.Loader.
func (l Loader) Load(ctx context.Context) (*model.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Load(l.Path)
}

// geometryFromYAML re-encodes the decoded YAML mapping as JSON so the GeoJSON
// parser can read it.
func geometryFromYAML(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "fixture: geometry is not a GeoJSON object")
	}
	return geometry.FromGeoJSON(raw)
}

func geometryToYAML(wkb []byte) (any, error) {
	if len(wkb) == 0 {
		return nil, nil
	}
	raw, err := geometry.ToGeoJSON(wkb)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, eris.Wrap(err, "fixture: decode GeoJSON")
	}
	return v, nil
}
