package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/config"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/store"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/ui"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/vault"
)

// tokenCmd groups the Hugging Face credential management subcommands.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the Hugging Face access token",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set <token>",
	Short: "Seal and store a Hugging Face access token",
	Long: `Seals the given token with a key derived from this machine's
username and hostname and stores the ciphertext in the local database.
The token is never written to disk in plaintext and will not decrypt on
a different machine.

Examples:
  imagegrepd token set hf_xxxxxxxxxxxxxxxxxxxx`,
	Args: cobra.ExactArgs(1),
	RunE: runTokenSetCmd,
}

var tokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored Hugging Face access token",
	RunE:  runTokenClearCmd,
}

var tokenStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a token is configured",
	RunE:  runTokenStatusCmd,
}

func init() {
	tokenCmd.AddCommand(tokenSetCmd, tokenClearCmd, tokenStatusCmd)
}

func openTokenStore() (store.Repository, *vault.Vault, error) {
	cfg := config.Get()
	repo, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	v, err := vault.New()
	if err != nil {
		repo.Close()
		return nil, nil, fmt.Errorf("failed to initialize credential vault: %w", err)
	}
	return repo, v, nil
}

func runTokenSetCmd(cmd *cobra.Command, args []string) error {
	repo, v, err := openTokenStore()
	if err != nil {
		return err
	}
	defer repo.Close()

	sealed, err := v.Encrypt(args[0])
	if err != nil {
		return fmt.Errorf("failed to seal token: %w", err)
	}
	if err := repo.SetSetting(settingHFToken, sealed); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	fmt.Println(ui.Success.Render("Token stored."))
	return nil
}

func runTokenClearCmd(cmd *cobra.Command, args []string) error {
	repo, _, err := openTokenStore()
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.SetSetting(settingHFToken, ""); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}

	fmt.Println(ui.Success.Render("Token cleared."))
	return nil
}

func runTokenStatusCmd(cmd *cobra.Command, args []string) error {
	repo, _, err := openTokenStore()
	if err != nil {
		return err
	}
	defer repo.Close()

	sealed, ok, err := repo.GetSetting(settingHFToken)
	if err != nil {
		return fmt.Errorf("failed to read token status: %w", err)
	}

	if ok && sealed != "" {
		fmt.Println(ui.Success.Render("A token is configured."))
	} else {
		fmt.Println(ui.Dim.Render("No token configured."))
	}
	return nil
}
