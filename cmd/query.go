package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/agristat/internal/aggregate"
	"github.com/sells-group/agristat/internal/factstore"
	"github.com/sells-group/agristat/internal/model"
	"github.com/sells-group/agristat/internal/snapshot"
)

var (
	queryZone      int64
	queryFrom      int
	queryTo        int
	querySector    int64
	queryTop       int
	queryLevel     string
	queryParent    int64
	queryParentSet bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run one aggregation against a freshly loaded snapshot",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		queryParentSet = cmd.Flags().Changed("parent")
		return cfg.Validate("query")
	},
}

// queryYears returns the --from/--to window, nil when neither is set. A lone
// bound takes the other from the configured evolution window.
func queryYears() *factstore.YearRange {
	if queryFrom == 0 && queryTo == 0 {
		return nil
	}
	yr := factstore.YearRange{From: cfg.Stats.EvolutionFrom, To: cfg.Stats.EvolutionTo}
	if queryFrom != 0 {
		yr.From = queryFrom
	}
	if queryTo != 0 {
		yr.To = queryTo
	}
	return &yr
}

func queryParentID() *int64 {
	if !queryParentSet {
		return nil
	}
	id := queryParent
	return &id
}

// runQuery loads a snapshot and prints what fn computes from it.
func runQuery(cmd *cobra.Command, fn func(e *aggregate.Engine, snap *snapshot.Snapshot) (any, error)) error {
	snap, err := loadSnapshot(cmd.Context())
	if err != nil {
		return err
	}
	v, err := fn(aggregate.New(snap), snap)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), v)
}

var queryRollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Total volume of one sub-sector over a zone's subtree",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, func(e *aggregate.Engine, _ *snapshot.Snapshot) (any, error) {
			return e.Rollup(queryZone, querySector, queryYears())
		})
	},
}

var queryTopCmd = &cobra.Command{
	Use:   "top",
	Short: "Sub-sectors of a zone's subtree ranked by volume",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, func(e *aggregate.Engine, _ *snapshot.Snapshot) (any, error) {
			return e.TopSectors(queryZone, queryYears(), queryTop)
		})
	},
}

var queryEvolutionCmd = &cobra.Command{
	Use:   "evolution",
	Short: "Yearly volume per sub-sector over a zone's subtree",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, func(e *aggregate.Engine, _ *snapshot.Snapshot) (any, error) {
			years := queryYears()
			if years == nil {
				years = factstore.Between(cfg.Stats.EvolutionFrom, cfg.Stats.EvolutionTo)
			}
			return e.Evolution(queryZone, *years)
		})
	},
}

var queryCompareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Direct children of a zone measured on its dominant sub-sector",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, func(e *aggregate.Engine, _ *snapshot.Snapshot) (any, error) {
			return e.Compare(queryZone)
		})
	},
}

var querySummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Top products and producer count of a zone's subtree",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, func(e *aggregate.Engine, _ *snapshot.Snapshot) (any, error) {
			n := queryTop
			if n <= 0 {
				n = cfg.Stats.TopProducts
			}
			return e.Summary(queryZone, n)
		})
	},
}

var queryBreakdownCmd = &cobra.Command{
	Use:   "breakdown",
	Short: "Every sub-sector of a zone's subtree with its volume",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, func(e *aggregate.Engine, _ *snapshot.Snapshot) (any, error) {
			return e.Breakdown(queryZone)
		})
	},
}

var queryFiltersCmd = &cobra.Command{
	Use:   "filters",
	Short: "Sub-sectors with data, grouped by category",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, func(e *aggregate.Engine, _ *snapshot.Snapshot) (any, error) {
			return e.AvailableSubSectors(queryParentID())
		})
	},
}

var queryMapCmd = &cobra.Command{
	Use:   "map",
	Short: "One sub-sector rolled up for every zone of a level",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := model.ParseLevel(queryLevel)
		if err != nil {
			return err
		}
		return runQuery(cmd, func(e *aggregate.Engine, _ *snapshot.Snapshot) (any, error) {
			return e.MapLayer(level, queryParentID(), querySector, queryYears())
		})
	},
}

var querySearchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Find zones by name, ignoring case and accents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, func(_ *aggregate.Engine, snap *snapshot.Snapshot) (any, error) {
			hits := snap.Search.Search(args[0])
			if hits == nil {
				hits = []model.Zone{}
			}
			return hits, nil
		})
	},
}

func requireZone(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&queryZone, "zone", 0, "zone id (required)")
	_ = cmd.MarkFlagRequired("zone")
}

func init() {
	queryCmd.PersistentFlags().IntVar(&queryFrom, "from", 0, "first year of the window")
	queryCmd.PersistentFlags().IntVar(&queryTo, "to", 0, "last year of the window")

	for _, c := range []*cobra.Command{queryRollupCmd, queryTopCmd, queryEvolutionCmd, queryCompareCmd, querySummaryCmd, queryBreakdownCmd} {
		requireZone(c)
	}
	queryRollupCmd.Flags().Int64Var(&querySector, "sector", 0, "sub-sector id (required)")
	_ = queryRollupCmd.MarkFlagRequired("sector")
	queryTopCmd.Flags().IntVar(&queryTop, "n", 0, "number of sub-sectors, 0 for all")
	querySummaryCmd.Flags().IntVar(&queryTop, "n", 0, "number of top products (default from config)")

	queryMapCmd.Flags().Int64Var(&querySector, "sector", 0, "sub-sector id (required)")
	_ = queryMapCmd.MarkFlagRequired("sector")
	queryMapCmd.Flags().StringVar(&queryLevel, "level", string(model.LevelRegion), "zone level")
	for _, c := range []*cobra.Command{queryMapCmd, queryFiltersCmd} {
		c.Flags().Int64Var(&queryParent, "parent", 0, "restrict to the subtree or children of this zone")
	}

	queryCmd.AddCommand(queryRollupCmd, queryTopCmd, queryEvolutionCmd, queryCompareCmd,
		querySummaryCmd, queryBreakdownCmd, queryFiltersCmd, queryMapCmd, querySearchCmd)
	rootCmd.AddCommand(queryCmd)
}
