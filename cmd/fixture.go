package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/agristat/internal/fixture"
	"github.com/sells-group/agristat/internal/store"
)

var fixtureCmd = &cobra.Command{
	Use:   "fixture",
	Short: "Move whole datasets between YAML fixtures and the database",
}

var fixtureSeedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Migrate the database and load a fixture into it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Store.Driver == "file" {
			return errFileDriver
		}
		ds, err := fixture.Load(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}
		if err := st.Seed(ctx, ds); err != nil {
			return eris.Wrap(err, "seed")
		}
		zap.L().Info("fixture seeded",
			zap.String("file", args[0]),
			zap.Int("zones", len(ds.Zones)),
			zap.Int("facts", len(ds.Facts)),
		)
		return nil
	},
}

var fixtureExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the database contents to a fixture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Store.Driver == "file" {
			return errFileDriver
		}
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ds, err := store.LoadDataset(ctx, st)
		if err != nil {
			return err
		}
		if err := fixture.Write(args[0], ds); err != nil {
			return err
		}
		zap.L().Info("fixture exported", zap.String("file", args[0]), zap.Int("zones", len(ds.Zones)))
		return nil
	},
}

func init() {
	fixtureCmd.AddCommand(fixtureSeedCmd, fixtureExportCmd)
	rootCmd.AddCommand(fixtureCmd)
}
