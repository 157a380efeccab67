package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/toosmart/filestore-go/internal/filestore"
	"github.com/toosmart/filestore-go/internal/tokenfile"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in with the configured API key and save the credential",
		Args:  cobra.NoArgs,
		RunE:  runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved credential",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the saved credential's server, bucket and expiry",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	s, err := newCLISession(logger)
	if err != nil {
		return err
	}

	logger.Info("login started", "base_url", s.client.BaseURL())

	cred, err := s.login(cmd.Context())
	if err != nil {
		return err
	}

	s.persist()

	logger.Info("login successful", "base_url", s.client.BaseURL())

	msg := "Logged in to " + s.client.BaseURL()
	if claims, ok := filestore.InspectCredential(cred); ok && !claims.ExpiresAt.IsZero() {
		msg += ", credential expires " + formatExpiry(claims.ExpiresAt, time.Now())
	}

	statusf("%s.\n", msg)

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	logger := buildLogger()
	path := credentialPath()

	logger.Info("logout", "path", path)

	if err := tokenfile.Remove(path); err != nil {
		return err
	}

	statusf("Logged out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	BaseURL   string     `json:"base_url"`
	Bucket    string     `json:"bucket,omitempty"`
	Subject   string     `json:"subject,omitempty"`
	IssuedAt  *time.Time `json:"issued_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	SavedAt   time.Time  `json:"saved_at"`
	Valid     bool       `json:"valid"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	saved, err := tokenfile.Load(credentialPath())
	if err != nil {
		return err
	}

	if saved == nil {
		return filestore.ErrNotAuthenticated
	}

	out := whoamiOutput{
		BaseURL: saved.BaseURL,
		Bucket:  saved.Bucket,
		SavedAt: saved.SavedAt,
		Valid:   saved.Token.Valid(),
	}

	if claims, ok := filestore.InspectCredential(saved.Token.AccessToken); ok {
		out.Subject = claims.Subject

		if !claims.IssuedAt.IsZero() {
			out.IssuedAt = &claims.IssuedAt
		}

		if !claims.ExpiresAt.IsZero() {
			out.ExpiresAt = &claims.ExpiresAt
		}
	}

	w := cmd.OutOrStdout()

	if flagJSON {
		return printJSON(w, out)
	}

	now := time.Now()

	fmt.Fprintf(w, "Server:  %s\n", out.BaseURL)

	if out.Bucket != "" {
		fmt.Fprintf(w, "Bucket:  %s\n", out.Bucket)
	}

	if out.Subject != "" {
		fmt.Fprintf(w, "Subject: %s\n", out.Subject)
	}

	expiry := saved.Token.Expiry
	if out.ExpiresAt != nil {
		expiry = *out.ExpiresAt
	}

	fmt.Fprintf(w, "Expires: %s\n", formatExpiry(expiry, now))
	fmt.Fprintf(w, "Saved:   %s\n", formatTime(out.SavedAt))

	return nil
}
