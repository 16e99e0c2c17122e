// Package geometry converts zone geometry between the WKB stored with each
// zone and the GeoJSON served to map clients and written in fixtures.
package geometry

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// SRID is the spatial reference of every stored zone geometry.
const SRID = 4326

// Decode parses ISO WKB as returned by ST_AsBinary, falling back to PostGIS
// EWKB. Empty input yields nil, nil.
func Decode(data []byte) (geom.T, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := wkb.Unmarshal(data)
	if err == nil {
		return g, nil
	}
	g, eerr := ewkb.Unmarshal(data)
	if eerr != nil {
		return nil, eris.Wrap(err, "geometry: decode WKB")
	}
	return g, nil
}

// Encode marshals g as little-endian ISO WKB. A nil geometry encodes to nil.
func Encode(g geom.T) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	data, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: encode WKB")
	}
	return data, nil
}

// EncodeEWKB marshals g as EWKB tagged with SRID 4326.
func EncodeEWKB(g geom.T) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(withSRID(g), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: encode EWKB")
	}
	return data, nil
}

// FromGeoJSON parses a GeoJSON geometry object into WKB. JSON null or empty
// input yields nil.
func FromGeoJSON(data []byte) ([]byte, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var g geom.T
	if err := geojson.Unmarshal(data, &g); err != nil {
		return nil, eris.Wrap(err, "geometry: parse GeoJSON")
	}
	return Encode(g)
}

// ToGeoJSON renders WKB as a GeoJSON geometry object, or JSON null when the
// zone has no geometry.
func ToGeoJSON(data []byte) (json.RawMessage, error) {
	g, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return json.RawMessage("null"), nil
	}
	out, err := geojson.Marshal(g)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: encode GeoJSON")
	}
	return out, nil
}

func withSRID(g geom.T) geom.T {
	switch g := g.(type) {
	case *geom.Point:
		return g.SetSRID(SRID)
	case *geom.LineString:
		return g.SetSRID(SRID)
	case *geom.Polygon:
		return g.SetSRID(SRID)
	case *geom.MultiPoint:
		return g.SetSRID(SRID)
	case *geom.MultiLineString:
		return g.SetSRID(SRID)
	case *geom.MultiPolygon:
		return g.SetSRID(SRID)
	case *geom.GeometryCollection:
		return g.SetSRID(SRID)
	default:
		return g
	}
}
