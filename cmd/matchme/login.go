package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"matchme-client/internal/backend"
	"matchme-client/internal/realtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	loginEmail    string
	loginPassword string
	loginToken    string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session token",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	RunE:  runLogout,
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "store an existing token instead of signing in")
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	token := loginToken
	if token == "" {
		if loginEmail == "" || loginPassword == "" {
			return errors.New("either --token or both --email and --password are required")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		token, err = backend.NewClient(cfg.APIURL, "").Login(ctx, loginEmail, loginPassword)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
	}

	s, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = s.Close() }()

	if err := s.SaveToken(token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	if email, err := realtime.EmailFromToken(token); err == nil {
		color.Green("✅ Signed in as %s", email)
	} else {
		color.Yellow("⚠️  Token stored, but it carries no readable subject: %v", err)
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = s.Close() }()

	if err := s.ClearToken(); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	color.Green("✅ Signed out")
	return nil
}
