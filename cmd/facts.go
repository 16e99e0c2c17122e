package main

import (
	"bytes"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/agristat/internal/model"
)

var errFileDriver = eris.New("the file driver has no database to write to")

var factsDryRun bool

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Manage production facts",
}

var factsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Upsert production facts from a YAML or JSON list",
	Long:  "Reads a list of facts and upserts them by (sub_sector_id, zone_code, year). A running server picks them up on its next reload.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		facts, err := readFacts(args[0])
		if err != nil {
			return err
		}
		log := zap.L().With(zap.String("file", args[0]), zap.Int("facts", len(facts)))

		if factsDryRun {
			log.Info("dry run, nothing written")
			return nil
		}
		if cfg.Store.Driver == "file" {
			return errFileDriver
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.UpsertFacts(ctx, facts)
		if err != nil {
			return eris.Wrap(err, "import facts")
		}
		log.Info("facts imported", zap.Int64("upserted", n))
		return nil
	},
}

// readFacts decodes a list of facts. JSON input is valid YAML, so one
// decoder serves both.
func readFacts(path string) ([]model.Fact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	var facts []model.Fact
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&facts); err != nil {
		return nil, eris.Wrapf(err, "parse %s", path)
	}
	if len(facts) == 0 {
		return nil, eris.Errorf("%s holds no facts", path)
	}
	for i, f := range facts {
		if err := f.Validate(); err != nil {
			return nil, eris.Wrapf(err, "%s: fact %d", path, i)
		}
	}
	return facts, nil
}

func init() {
	factsImportCmd.Flags().BoolVar(&factsDryRun, "dry-run", false, "validate the file without writing")
	factsCmd.AddCommand(factsImportCmd)
	rootCmd.AddCommand(factsCmd)
}
