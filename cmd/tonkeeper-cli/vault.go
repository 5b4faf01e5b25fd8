package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonkeeper/tonkeeper-core/internal/vault"
)

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Maintain the encrypted mnemonic vault",
}

var vaultStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show how many keys each vault format holds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		for _, ver := range []vault.Version{vault.V2, vault.V3, vault.V4} {
			ids, err := a.Vault.KeyIDs(ver)
			if err != nil {
				return err
			}
			mark := ""
			if ver == a.Vault.Current() {
				mark = " (current)"
			}
			fmt.Printf("%s%s: %d keys\n", ver, mark, len(ids))
		}
		need, err := a.Vault.NeedsMigration()
		if err != nil {
			return err
		}
		if need {
			fmt.Println("Older entries found; run 'vault migrate'.")
		}
		return nil
	},
}

var vaultMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Re-encrypt every older entry in the current format",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		need, err := a.Vault.NeedsMigration()
		if err != nil {
			return err
		}
		if !need {
			fmt.Println("Vault is up to date.")
			return nil
		}
		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}
		defer vault.ZeroPassword(password)
		if err := a.Vault.MigrateChain(cmd.Context(), password); err != nil {
			return err
		}
		fmt.Printf("Vault migrated to %s.\n", a.Vault.Current())
		return nil
	},
}

var vaultPasswdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change the vault password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		old, err := readPassword("Current password: ")
		if err != nil {
			return err
		}
		defer vault.ZeroPassword(old)
		if err := a.Vault.Verify(old); err != nil {
			return err
		}

		fmt.Fprintln(cmd.ErrOrStderr(), "New password.")
		password, err := readNewPassword()
		if err != nil {
			return err
		}
		defer vault.ZeroPassword(password)
		if err := a.Vault.ChangePassword(cmd.Context(), old, password); err != nil {
			return err
		}
		fmt.Println("Password changed.")
		return nil
	},
}

func init() {
	vaultCmd.AddCommand(vaultStatusCmd, vaultMigrateCmd, vaultPasswdCmd)
}
