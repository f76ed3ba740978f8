package main

import (
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/shirosync/shirosync-server/internal/domain"
	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
	"github.com/shirosync/shirosync-server/internal/syncer"
)

func newSyncCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run list and library syncs",
	}
	cmd.AddCommand(newSyncListCmd(opts), newSyncLibraryCmd(opts))
	return cmd
}

func newSyncListCmd(opts *globalOptions) *cobra.Command {
	var (
		userID   string
		statuses []string
		force    bool
		enrich   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Pull a user's list into local records",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := make([]domain.ListStatus, 0, len(statuses))
			for _, raw := range statuses {
				st, ok := domain.ParseListStatus(raw)
				if !ok {
					return domainerrors.Validationf("unknown list status %q", raw)
				}
				parsed = append(parsed, st)
			}

			return withEngine(opts, func(i do.Injector) error {
				orch := do.MustInvoke[*syncer.Orchestrator](i)
				res, err := orch.SyncList(cmd.Context(), syncer.ListRequest{
					UserID:   userID,
					Statuses: parsed,
					Force:    force,
					Enrich:   enrich,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only these list statuses (repeatable)")
	cmd.Flags().BoolVar(&force, "force", false, "Ignore the freshness window")
	cmd.Flags().BoolVar(&enrich, "enrich", false, "Resolve missing secondary ids")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newSyncLibraryCmd(opts *globalOptions) *cobra.Command {
	var (
		userID string
		force  bool
		push   bool
	)

	cmd := &cobra.Command{
		Use:   "library",
		Short: "Reconcile a user's media library with local records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(opts, func(i do.Injector) error {
				orch := do.MustInvoke[*syncer.Orchestrator](i)
				res, err := orch.SyncLibrary(cmd.Context(), syncer.LibraryRequest{
					UserID: userID,
					Force:  force,
					Push:   push,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id")
	cmd.Flags().BoolVar(&force, "force", false, "Ignore the freshness window")
	cmd.Flags().BoolVar(&push, "push", false, "Push advancing statuses back to the list service")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
