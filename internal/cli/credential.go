package cli

import (
	"github.com/kalaiselvan-arumugam/imagegrep/internal/apperror"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/config"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/embed"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/store"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/vault"
)

// initOnnxRuntime initializes the ONNX Runtime environment once per
// process, before any command touches an OnnxFactory session. Safe to call
// from every command that embeds or loads models.
func initOnnxRuntime(cfg *config.Config) error {
	return embed.InitRuntime(cfg.Models.OnnxRuntime)
}

const settingHFToken = "hf_token"

// vaultCredentialSource resolves the sealed Hugging Face token stored in
// the repository's settings table, satisfying weights.CredentialSource.
// Used by both the serve and models commands so the fetcher and the token
// management commands agree on where the credential lives.
type vaultCredentialSource struct {
	repo  store.Repository
	vault *vault.Vault
}

func newVaultCredentialSource(repo store.Repository, v *vault.Vault) *vaultCredentialSource {
	return &vaultCredentialSource{repo: repo, vault: v}
}

func (c *vaultCredentialSource) Token() (string, error) {
	sealed, ok, err := c.repo.GetSetting(settingHFToken)
	if err != nil {
		return "", err
	}
	if !ok || sealed == "" {
		return "", apperror.New(apperror.KindMissingRemote, "no Hugging Face token configured")
	}
	return c.vault.Decrypt(sealed)
}
