package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nx-ipc/sm"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the configured system version and the sm dialect it implies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := a.cfg.Version()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (sm speaks %s)\n", v, sm.ProtocolFor(v))
			return err
		},
	}
}
