package geometry

import (
	"strconv"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/agristat/internal/model"
)

// Feature wraps a zone as a GeoJSON feature. Zone fields become properties
// and extra is merged over them. Undecodable geometry is logged and the
// feature is emitted with a null geometry.
func Feature(z model.Zone, extra map[string]any) *geojson.Feature {
	props := map[string]any{
		"id":        z.ID,
		"name":      z.Name,
		"level":     z.Level,
		"code":      z.Code,
		"parent_id": z.ParentID,
	}
	for k, v := range extra {
		props[k] = v
	}

	f := &geojson.Feature{
		ID:         strconv.FormatInt(z.ID, 10),
		Properties: props,
	}
	g, err := Decode(z.Geometry)
	if err != nil {
		zap.L().Debug("geometry: dropping undecodable zone geometry",
			zap.String("code", z.Code), zap.Error(err))
		return f
	}
	f.Geometry = g
	return f
}

// Collection builds a FeatureCollection from zones. props, when non-nil,
// supplies per-zone extra properties. The collection bbox covers every
// decoded geometry.
func Collection(zones []model.Zone, props func(model.Zone) map[string]any) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(zones))}
	var bounds *geom.Bounds
	for _, z := range zones {
		var extra map[string]any
		if props != nil {
			extra = props(z)
		}
		f := Feature(z, extra)
		if f.Geometry != nil {
			if bounds == nil {
				bounds = geom.NewBounds(f.Geometry.Layout())
			}
			bounds.Extend(f.Geometry)
		}
		fc.Features = append(fc.Features, f)
	}
	fc.BBox = bounds
	return fc
}
