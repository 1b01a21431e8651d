package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/criyle/go-jail/config"
)

func newRunCmd() *cobra.Command {
	var flags jailFlags
	cmd := &cobra.Command{
		Use:   "run [flags] -- prog [args...]",
		Short: "unshare the current process and exec the program in place",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := flags.buildConfig(cmd, config.ModeExecve, args)
			if err != nil {
				return err
			}
			rt, err := setupRuntime(conf)
			if err != nil {
				return err
			}
			// stdio passes straight through; only returns on failure
			if _, err := rt.RunChild(-1, 0, 1, 2); err != nil {
				return err
			}
			return errors.New("launching new process failed")
		},
	}
	flags.register(cmd)
	return cmd
}
