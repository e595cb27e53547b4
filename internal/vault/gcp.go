package vault

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	gserrors "github.com/systmms/gitshift/internal/errors"
	"github.com/systmms/gitshift/internal/logging"
)

// gcpVault keeps secrets in Google Cloud Secret Manager. Each account
// maps to one secret; Put adds a new version and reads always access
// "latest".
type gcpVault struct {
	client    *secretmanager.Client
	projectID string
	prefix    string
	logger    *logging.Logger
}

func newGCPVault(options map[string]string, logger *logging.Logger) (*gcpVault, error) {
	projectID := options["project_id"]
	if projectID == "" {
		return nil, gserrors.ConfigError{
			Field:      "vault.options.project_id",
			Message:    "project_id is required for the gcp backend",
			Suggestion: "Set it to the Google Cloud project that hosts the secrets",
		}
	}

	var clientOptions []option.ClientOption
	if keyPath := options["credentials_file"]; keyPath != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(keyPath))
	}

	client, err := secretmanager.NewClient(context.Background(), clientOptions...)
	if err != nil {
		return nil, gserrors.UserError{
			Message:    "Failed to create Secret Manager client",
			Details:    err.Error(),
			Suggestion: "Run 'gcloud auth application-default login' or set GOOGLE_APPLICATION_CREDENTIALS",
			Err:        err,
		}
	}

	prefix := options["prefix"]
	if prefix == "" {
		prefix = "gitshift"
	}

	return &gcpVault{
		client:    client,
		projectID: projectID,
		prefix:    prefix,
		logger:    logger,
	}, nil
}

func (v *gcpVault) secretID(key string) string {
	return v.prefix + "-" + sanitizeKey(key)
}

func (v *gcpVault) secretPath(key string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", v.projectID, v.secretID(key))
}

func (v *gcpVault) Put(ctx context.Context, key string, secret []byte) error {
	payload := &secretmanagerpb.SecretPayload{Data: secret}

	_, err := v.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  v.secretPath(key),
		Payload: payload,
	})
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return gserrors.VaultError{Op: "put", Key: key, Err: err}
	}

	v.logger.Debug("secret %s absent, creating", v.secretID(key))
	_, err = v.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   "projects/" + v.projectID,
		SecretId: v.secretID(key),
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
		},
	})
	if err != nil {
		return gserrors.VaultError{Op: "put", Key: key, Err: err}
	}

	_, err = v.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  v.secretPath(key),
		Payload: payload,
	})
	if err != nil {
		return gserrors.VaultError{Op: "put", Key: key, Err: err}
	}
	return nil
}

func (v *gcpVault) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := v.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: v.secretPath(key) + "/versions/latest",
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, gserrors.NotFoundError{Kind: "secret", Name: key}
		}
		return nil, gserrors.VaultError{Op: "get", Key: key, Err: err}
	}
	return resp.GetPayload().GetData(), nil
}

func (v *gcpVault) Delete(ctx context.Context, key string) error {
	err := v.client.DeleteSecret(ctx, &secretmanagerpb.DeleteSecretRequest{
		Name: v.secretPath(key),
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return gserrors.NotFoundError{Kind: "secret", Name: key}
		}
		return gserrors.VaultError{Op: "delete", Key: key, Err: err}
	}
	return nil
}
