// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// kuru is the terminal client for the Kurukshetram news portal: sign in,
// pick a language/state/district, browse category news and engage with
// articles, all against the same upstream API the web frontend uses.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/kurukshetram/internal/config"
)

var (
	cfgPath string
	cli     *app

	rootCmd = &cobra.Command{
		Use:   "kuru",
		Short: "Terminal client for the Kurukshetram news portal",
		Long: `kuru reads the Kurukshetram news portal from the terminal.

It keeps your language/state/district selection and sign-in across runs
in ~/.kurukshetram, and talks to the upstream through the same API the
web frontend uses.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := cfgPath
			if path == "" {
				var err error
				path, err = config.DefaultPath()
				if err != nil {
					return err
				}
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			cli, err = newApp(cfg)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cli != nil {
				cli.Close()
			}
		},
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already printed the error.
		os.Exit(1)
	}
}

func init() {
	log.SetFlags(0)
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "",
		"config file (default ~/.kurukshetram/kurukshetram.yaml)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(newsCmd)
	rootCmd.AddCommand(readCmd)
}
