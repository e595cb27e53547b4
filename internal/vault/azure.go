package vault

import (
	"context"
	"errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	gserrors "github.com/systmms/gitshift/internal/errors"
	"github.com/systmms/gitshift/internal/logging"
)

// azureVault keeps secrets in an Azure Key Vault. Requires the vault URL;
// credentials come from DefaultAzureCredential (env vars, managed
// identity, az CLI).
type azureVault struct {
	client azureSecretsClient
	prefix string
	logger *logging.Logger
}

// azureSecretsClient is the subset of azsecrets.Client this backend
// touches, for test fakes.
type azureSecretsClient interface {
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	DeleteSecret(ctx context.Context, name string, options *azsecrets.DeleteSecretOptions) (azsecrets.DeleteSecretResponse, error)
}

func newAzureVault(options map[string]string, logger *logging.Logger) (*azureVault, error) {
	vaultURL := options["vault_url"]
	if vaultURL == "" {
		return nil, gserrors.ConfigError{
			Field:      "vault.options.vault_url",
			Message:    "vault_url is required for the azure backend",
			Suggestion: "Set it to your Key Vault URL, e.g. https://myvault.vault.azure.net/",
		}
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, gserrors.UserError{
			Message:    "Failed to build Azure credentials",
			Details:    err.Error(),
			Suggestion: "Run 'az login' or set the AZURE_* environment variables",
			Err:        err,
		}
	}

	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, gserrors.UserError{
			Message:    "Failed to create Key Vault client",
			Details:    err.Error(),
			Suggestion: "Check the vault_url value",
			Err:        err,
		}
	}

	prefix := options["prefix"]
	if prefix == "" {
		prefix = "gitshift"
	}

	return &azureVault{client: client, prefix: prefix, logger: logger}, nil
}

// secretName: Key Vault names allow only alphanumerics and dashes.
func (v *azureVault) secretName(key string) string {
	return v.prefix + "-" + sanitizeKey(key)
}

func (v *azureVault) Put(ctx context.Context, key string, secret []byte) error {
	value := string(secret)
	_, err := v.client.SetSecret(ctx, v.secretName(key), azsecrets.SetSecretParameters{
		Value: &value,
	}, nil)
	if err != nil {
		return gserrors.VaultError{Op: "put", Key: key, Err: err}
	}
	return nil
}

func (v *azureVault) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := v.client.GetSecret(ctx, v.secretName(key), "", nil)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, gserrors.NotFoundError{Kind: "secret", Name: key}
		}
		return nil, gserrors.VaultError{Op: "get", Key: key, Err: err}
	}
	if resp.Value == nil {
		return nil, gserrors.NotFoundError{Kind: "secret", Name: key}
	}
	return []byte(*resp.Value), nil
}

func (v *azureVault) Delete(ctx context.Context, key string) error {
	_, err := v.client.DeleteSecret(ctx, v.secretName(key), nil)
	if err != nil {
		if isAzureNotFound(err) {
			return gserrors.NotFoundError{Kind: "secret", Name: key}
		}
		return gserrors.VaultError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func isAzureNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
