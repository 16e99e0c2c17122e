package model

// Sector groups sub-sectors (Agriculture, Élevage, Pêche).
type Sector struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// SubSector is a produced good (Cacao, Maïs, Bovins) belonging to one Sector.
type SubSector struct {
	ID       int64  `json:"id" yaml:"id"`
	SectorID int64  `json:"sector_id" yaml:"sector_id"`
	Name     string `json:"name" yaml:"name"`
	Color    string `json:"color,omitempty" yaml:"color"`
}

// Dataset is a full load of the persisted tables, the input of a snapshot build.
type Dataset struct {
	Zones      []Zone
	Sectors    []Sector
	SubSectors []SubSector
	Facts      []Fact
}
