package main

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/greendrive/impactboard/pkg/auth"
)

type whoami struct {
	UserID    string     `json:"id"`
	UserName  string     `json:"name"`
	Email     string     `json:"email,omitempty"`
	Role      string     `json:"role,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Expired   bool       `json:"expired"`
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the identity carried by the credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := auth.DecodeIdentity(a.cfg.Token)
			if err != nil {
				return err
			}

			out := whoami{
				UserID:   id.UserID,
				UserName: id.UserName,
				Email:    id.Email,
				Role:     id.Role,
				Expired:  auth.IsExpired(a.cfg.Token, time.Now()),
			}
			if !id.ExpiresAt.IsZero() {
				exp := id.ExpiresAt.UTC()
				out.ExpiresAt = &exp
			}

			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.stdout, string(data))
			return err
		},
	}
}
