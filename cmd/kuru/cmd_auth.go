// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/kurukshetram/internal/auth"
)

var (
	loginEmail    string
	loginPassword string

	loginCmd = &cobra.Command{
		Use:   "login",
		Short: "Sign in to the news portal",
		RunE:  runLogin,
	}

	logoutCmd = &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli.creds.Clear()
			fmt.Println("Signed out.")
			return nil
		},
	}

	whoamiCmd = &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := auth.FetchProfile(cmd.Context(), cli.session, cli.creds)
			if errors.Is(err, auth.ErrNotAuthenticated) {
				fmt.Println("Not signed in. Run: kuru login")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s <%s>\n", p.DisplayName, p.Email)
			return nil
		},
	}
)

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "email or phone number")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "password (prompted when omitted)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	email, password := strings.TrimSpace(loginEmail), loginPassword

	if password == "" || email == "" {
		if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
			return errors.New("login needs --email and --password when stdin is not a terminal")
		}
		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Email or phone").
				Value(&email).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("required")
					}
					return nil
				}),
		))
		if err := form.Run(); err != nil {
			return err
		}
	}

	profile, err := auth.Login(cmd.Context(), cli.session, cli.creds, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Printf("Signed in as %s.\n", profile.DisplayName)
	return nil
}
