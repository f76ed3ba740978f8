package main

import (
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/shirosync/shirosync-server/internal/di/providers"
	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
	"github.com/shirosync/shirosync-server/internal/matcher"
)

func newMatchCmd(opts *globalOptions) *cobra.Command {
	var (
		d           matcher.Descriptor
		primaryID   int
		secondaryID int
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Resolve a title to a secondary id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if primaryID > 0 {
				d.PrimaryID = &primaryID
			}
			if secondaryID > 0 {
				d.SecondaryID = &secondaryID
			}

			return withEngine(opts, func(i do.Injector) error {
				m := do.MustInvoke[*providers.ListMatcher](i)
				match, err := m.Resolve(cmd.Context(), d)
				if err != nil {
					return err
				}
				if match == nil {
					return domainerrors.NotFoundf("no match for %q", d.Title)
				}
				return printJSON(cmd, match)
			})
		},
	}

	cmd.Flags().StringVar(&d.Title, "title", "", "Title to resolve")
	cmd.Flags().StringSliceVar(&d.AltTitles, "alt", nil, "Alternative titles (repeatable)")
	cmd.Flags().IntVar(&d.Year, "year", 0, "Release year")
	cmd.Flags().StringVar(&d.MediaType, "type", "", "Media type (TV, MOVIE, OVA...)")
	cmd.Flags().IntVar(&d.Episodes, "episodes", 0, "Episode count")
	cmd.Flags().IntVar(&primaryID, "primary", 0, "Known primary id")
	cmd.Flags().IntVar(&secondaryID, "secondary", 0, "Known secondary id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}
