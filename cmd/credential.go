package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/formgate/internal/config"
	"github.com/xkilldash9x/formgate/internal/credential"
)

var (
	// openCredentialStore and promptPassword are swapped in tests.
	openCredentialStore = credential.Open
	promptPassword      = func(cmd *cobra.Command, prompt string) (string, error) {
		return credential.PromptPassword(os.Stdin, cmd.ErrOrStderr(), prompt)
	}
)

func newCredentialCmd(state *cliState) *cobra.Command {
	credCmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage the password stored in the OS keyring for the configured account",
	}

	account := func() (config.AuthConfig, error) {
		a := state.cfg.Auth()
		if a.LoginURL == "" || a.Username == "" {
			return a, errors.New("both --url and --username (or auth.login_url and auth.username) are required")
		}
		return a, nil
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Prompt for a password and store it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := account()
			if err != nil {
				return err
			}
			password, err := promptPassword(cmd, fmt.Sprintf("Password for %s: ", a.Username))
			if err != nil {
				return err
			}
			if password == "" {
				return errors.New("refusing to store an empty password")
			}
			store, err := openCredentialStore(state.cfg.Credential())
			if err != nil {
				return err
			}
			if err := store.Set(a.Username, a.LoginURL, password); err != nil {
				return err
			}
			key, _ := credential.Key(a.Username, a.LoginURL)
			fmt.Fprintf(cmd.OutOrStdout(), "Stored credential for %s\n", key)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := account()
			if err != nil {
				return err
			}
			store, err := openCredentialStore(state.cfg.Credential())
			if err != nil {
				return err
			}
			if err := store.Delete(a.Username, a.LoginURL); err != nil {
				return err
			}
			key, _ := credential.Key(a.Username, a.LoginURL)
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted credential for %s\n", key)
			return nil
		},
	}

	credCmd.AddCommand(setCmd, deleteCmd)
	return credCmd
}
