package main

import (
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/shirosync/shirosync-server/internal/di/providers"
	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
	"github.com/shirosync/shirosync-server/internal/mapping"
	"github.com/shirosync/shirosync-server/internal/sources/dataset"
)

func newImportCmd(opts *globalOptions) *cobra.Command {
	var (
		file      string
		datasetID string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import the offline mapping dataset",
		Long:  `Fetch the configured dataset (or --file) and upsert its cross-references into the mapping store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(opts, func(i do.Injector) error {
				configured := do.MustInvoke[*providers.DatasetFetcher](i)
				importer := do.MustInvoke[*mapping.Importer](i)

				var fetcher mapping.DatasetFetcher = configured.DatasetFetcher
				if file != "" {
					fetcher = dataset.FileFetcher{Path: file}
				}
				if fetcher == nil {
					return domainerrors.Validation("no dataset configured, pass --file or set DATASET_URL")
				}
				if datasetID == "" {
					datasetID = configured.ID
				}

				stats, err := importer.ImportFrom(cmd.Context(), mapping.Run{DatasetID: datasetID}, fetcher)
				if err != nil {
					return err
				}
				return printJSON(cmd, stats)
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Read the dataset from a local file")
	cmd.Flags().StringVar(&datasetID, "dataset", "", "Dataset id for the import status (default DATASET_ID)")
	return cmd
}
