package main

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func newModelsCmd(root *rootOptions) *cobra.Command {
	var validate bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "Show model availability for the configured keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = e.logger.Sync() }()

			var report any
			if validate {
				report, err = e.sessions.ValidateModels(cmd.Context(), nil)
			} else {
				report, err = e.sessions.Models(cmd.Context(), nil)
			}
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}

	cmd.Flags().BoolVar(&validate, "validate", false, "Probe every gemini model with a one-word request first")
	return cmd
}

func newKeysCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Check which configured provider keys are accepted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = e.logger.Sync() }()

			statuses, err := e.sessions.CheckKeys(cmd.Context(), nil)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(statuses, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}
