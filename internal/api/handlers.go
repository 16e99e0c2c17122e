package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/agristat/internal/aggregate"
	"github.com/sells-group/agristat/internal/cache"
	"github.com/sells-group/agristat/internal/factstore"
	"github.com/sells-group/agristat/internal/geometry"
	"github.com/sells-group/agristat/internal/model"
	"github.com/sells-group/agristat/internal/snapshot"
)

const maxFactsBody = 8 << 20

// zones serves GET /api/gis/zones?level=&parent_id=.
func (s *Server) zones(r *http.Request, snap *snapshot.Snapshot) (any, error) {
	level, err := levelParam(r, model.LevelRegion)
	if err != nil {
		return nil, err
	}
	parent, err := parentParam(r)
	if err != nil {
		return nil, err
	}
	return geometry.Collection(snap.Tree.ByLevel(level, parent), nil), nil
}

// filters serves GET /api/filters?parent_id=: sub-sectors with data, keyed
// by category.
func (s *Server) filters(r *http.Request, snap *snapshot.Snapshot) (any, error) {
	parent, err := parentParam(r)
	if err != nil {
		return nil, err
	}
	groups, err := aggregate.New(snap).AvailableSubSectors(parent)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]aggregate.SubSectorOption, len(groups))
	for _, g := range groups {
		out[g.Category] = g.SubSectors
	}
	return out, nil
}

type mapDataResponse struct {
	GeoJSON *geojson.FeatureCollection `json:"geojson"`
	Stats   aggregate.Total            `json:"stats"`
	Sector  *aggregate.SubSectorOption `json:"sector"`
}

// mapData serves GET /api/map/data?sector_id=&level=&parent_id=.
func (s *Server) mapData(r *http.Request, snap *snapshot.Snapshot) (any, error) {
	subSectorID, err := int64Param(r, "sector_id")
	if err != nil {
		return nil, err
	}
	level, err := levelParam(r, model.LevelRegion)
	if err != nil {
		return nil, err
	}
	parent, err := parentParam(r)
	if err != nil {
		return nil, err
	}
	years, err := yearsParam(r, s.opts.EvolutionFrom, s.opts.EvolutionTo)
	if err != nil {
		return nil, err
	}

	layer, err := aggregate.New(snap).MapLayer(level, parent, subSectorID, years)
	if err != nil {
		return nil, err
	}
	values := make(map[int64]aggregate.ZoneValue, len(layer.Zones))
	zones := make([]model.Zone, 0, len(layer.Zones))
	for _, zv := range layer.Zones {
		values[zv.Zone.ID] = zv
		zones = append(zones, zv.Zone)
	}
	fc := geometry.Collection(zones, func(z model.Zone) map[string]any {
		zv := values[z.ID]
		return map[string]any{"value": zv.Value, "unit": zv.Unit}
	})
	return mapDataResponse{
		GeoJSON: fc,
		Stats:   aggregate.Total{Total: layer.Total, Unit: layer.Unit},
		Sector:  layer.SubSector,
	}, nil
}

type zoneStatRow struct {
	SubSectorID int64   `json:"sub_sector_id"`
	Sector      string  `json:"sector"`
	Category    string  `json:"category"`
	Volume      float64 `json:"volume"`
	Unit        string  `json:"unit"`
}

// zoneStats serves GET /api/zone/stats?zone_id=.
func (s *Server) zoneStats(r *http.Request, snap *snapshot.Snapshot) (any, error) {
	zoneID, err := int64Param(r, "zone_id")
	if err != nil {
		return nil, err
	}
	rows, err := aggregate.New(snap).Breakdown(zoneID)
	if err != nil {
		return nil, err
	}
	out := make([]zoneStatRow, 0, len(rows))
	for _, sv := range rows {
		out = append(out, zoneStatRow{
			SubSectorID: sv.SubSectorID,
			Sector:      sv.Name,
			Category:    sv.Category,
			Volume:      sv.Volume,
			Unit:        sv.Unit,
		})
	}
	return out, nil
}

type productRow struct {
	Name   string  `json:"name"`
	Volume float64 `json:"volume"`
	Unit   string  `json:"unit"`
}

type globalStatsResponse struct {
	TopProducts    []productRow `json:"top_products"`
	TotalProducers int64        `json:"total_producers"`
}

// globalStats serves GET /api/stats/global?zone_id=.
func (s *Server) globalStats(r *http.Request, snap *snapshot.Snapshot) (any, error) {
	zoneID, err := int64Param(r, "zone_id")
	if err != nil {
		return nil, err
	}
	sum, err := aggregate.New(snap).Summary(zoneID, s.opts.TopProducts)
	if err != nil {
		return nil, err
	}
	out := globalStatsResponse{
		TopProducts:    make([]productRow, 0, len(sum.TopProducts)),
		TotalProducers: sum.TotalProducers,
	}
	for _, p := range sum.TopProducts {
		out.TopProducts = append(out.TopProducts, productRow{Name: p.Name, Volume: p.Volume, Unit: p.Unit})
	}
	return out, nil
}

type evolutionResponse struct {
	Data       []map[string]any  `json:"data"`
	Sectors    []string          `json:"sectors"`
	Categories map[string]string `json:"categories"`
}

// evolution serves GET /api/stats/evolution?zone_id=[&from=&to=]. Each data
// point is {"year": y, "<sector>": volume, ...} for charting.
func (s *Server) evolution(r *http.Request, snap *snapshot.Snapshot) (any, error) {
	zoneID, err := int64Param(r, "zone_id")
	if err != nil {
		return nil, err
	}
	years, err := yearsParam(r, s.opts.EvolutionFrom, s.opts.EvolutionTo)
	if err != nil {
		return nil, err
	}
	if years == nil {
		years = factstore.Between(s.opts.EvolutionFrom, s.opts.EvolutionTo)
	}

	ev, err := aggregate.New(snap).Evolution(zoneID, *years)
	if err != nil {
		return nil, err
	}
	out := evolutionResponse{
		Data:       make([]map[string]any, 0, len(ev.Series)),
		Sectors:    ev.Sectors,
		Categories: ev.Categories,
	}
	if out.Sectors == nil {
		out.Sectors = []string{}
	}
	if out.Categories == nil {
		out.Categories = map[string]string{}
	}
	for _, p := range ev.Series {
		point := make(map[string]any, len(p.Volumes)+1)
		for name, v := range p.Volumes {
			point[name] = v
		}
		point["year"] = p.Year
		out.Data = append(out.Data, point)
	}
	return out, nil
}

// comparison serves GET /api/stats/comparison?zone_id=.
func (s *Server) comparison(r *http.Request, snap *snapshot.Snapshot) (any, error) {
	zoneID, err := int64Param(r, "zone_id")
	if err != nil {
		return nil, err
	}
	rows, err := aggregate.New(snap).Compare(zoneID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []aggregate.Comparison{}
	}
	return rows, nil
}

// search serves GET /api/search?q=.
func (s *Server) search(r *http.Request, snap *snapshot.Snapshot) (any, error) {
	hits := snap.Search.Search(r.URL.Query().Get("q"))
	if hits == nil {
		hits = []model.Zone{}
	}
	return hits, nil
}

type snapshotResponse struct {
	snapshot.Info
	Cache cache.Stats `json:"cache"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snaps.Current()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{Info: snap.Info(), Cache: s.cache.Stats()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if _, err := s.snaps.Current(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Reload publishes a fresh snapshot and drops the cached responses of the
// one it replaces. On failure the previous snapshot keeps serving.
func (s *Server) Reload(ctx context.Context) (*snapshot.Snapshot, error) {
	prev, _ := s.snaps.Current()

	ctx, cancel := context.WithTimeout(ctx, s.opts.ReloadTimeout)
	defer cancel()
	snap, err := s.snaps.Reload(ctx)
	if err != nil {
		return nil, err
	}
	if prev != nil && prev.ID != snap.ID {
		s.cache.InvalidatePrefix(ctx, prev.ID+"/")
	}
	return snap, nil
}

// handleReload serves POST /api/admin/reload.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Reload(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.Info())
}

type upsertResponse struct {
	Upserted    int    `json:"upserted"`
	FactVersion uint64 `json:"fact_version"`
}

// handleUpsertFacts serves POST /api/facts with a JSON array of facts. The
// facts are persisted first, so a failed write leaves memory untouched.
// Without a FactWriter (file driver) the next reload would drop them, so the
// request is refused.
func (s *Server) handleUpsertFacts(w http.ResponseWriter, r *http.Request) {
	if s.writer == nil {
		writeError(w, r, errReadOnly)
		return
	}

	var facts []model.Fact
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFactsBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&facts); err != nil {
		writeError(w, r, eris.Wrapf(model.ErrInvalidFilter, "decode facts: %v", err))
		return
	}
	if len(facts) == 0 {
		writeError(w, r, eris.Wrap(model.ErrInvalidFilter, "no facts given"))
		return
	}
	for i, f := range facts {
		if err := f.Validate(); err != nil {
			writeError(w, r, eris.Wrapf(err, "fact %d", i))
			return
		}
	}

	snap, err := s.snaps.Current()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.writer.UpsertFacts(r.Context(), facts); err != nil {
		writeError(w, r, eris.Wrap(err, "api: persist facts"))
		return
	}
	n, err := s.snaps.UpsertFacts(facts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.cache.InvalidatePrefix(r.Context(), snap.ID+"/")

	zap.L().Info("facts upserted", zap.Int("count", n), zap.String("snapshot", snap.ID))
	writeJSON(w, http.StatusOK, upsertResponse{Upserted: n, FactVersion: snap.Facts.Version()})
}
