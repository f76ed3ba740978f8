package main

import (
	"strconv"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/shirosync/shirosync-server/internal/di/providers"
	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
)

func newMappingCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Inspect and curate cross-reference mappings",
	}
	cmd.AddCommand(
		newMappingGetCmd(opts),
		newMappingConfirmCmd(opts),
		newMappingCreateCmd(opts),
	)
	return cmd
}

func parsePrimaryID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, domainerrors.InvalidFormatf("primary id must be a positive integer, got %q", raw)
	}
	return id, nil
}

func newMappingGetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <primary-id>",
		Short: "Show the mapping for a primary id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePrimaryID(args[0])
			if err != nil {
				return err
			}
			return withEngine(opts, func(i do.Injector) error {
				st := do.MustInvoke[*providers.StoreHandle](i)
				entry, err := st.FindByPrimary(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd, entry)
			})
		},
	}
}

func newMappingConfirmCmd(opts *globalOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "confirm <primary-id>",
		Short: "Mark a mapping as verified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePrimaryID(args[0])
			if err != nil {
				return err
			}
			return withEngine(opts, func(i do.Injector) error {
				st := do.MustInvoke[*providers.StoreHandle](i)
				entry, err := st.Confirm(cmd.Context(), id, userID)
				if err != nil {
					return err
				}
				return printJSON(cmd, entry)
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User confirming the mapping")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newMappingCreateCmd(opts *globalOptions) *cobra.Command {
	var (
		primaryID   int
		secondaryID int
		title       string
		userID      string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create or replace a manual mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			if primaryID <= 0 || secondaryID <= 0 {
				return domainerrors.Validation("--primary and --secondary must be positive")
			}
			return withEngine(opts, func(i do.Injector) error {
				st := do.MustInvoke[*providers.StoreHandle](i)
				entry, err := st.CreateManual(cmd.Context(), primaryID, secondaryID, title, userID)
				if err != nil {
					return err
				}
				return printJSON(cmd, entry)
			})
		},
	}

	cmd.Flags().IntVar(&primaryID, "primary", 0, "Primary id")
	cmd.Flags().IntVar(&secondaryID, "secondary", 0, "Secondary id")
	cmd.Flags().StringVar(&title, "title", "", "Title")
	cmd.Flags().StringVar(&userID, "user", "", "User creating the mapping")
	_ = cmd.MarkFlagRequired("primary")
	_ = cmd.MarkFlagRequired("secondary")
	return cmd
}
