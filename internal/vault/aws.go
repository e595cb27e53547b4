package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	gserrors "github.com/systmms/gitshift/internal/errors"
	"github.com/systmms/gitshift/internal/logging"
)

// awsVault keeps secrets in AWS Secrets Manager, for hosts with no OS
// keychain (CI runners, servers). Authentication goes through the SDK's
// default chain; only the region and an optional name prefix are
// configurable here.
type awsVault struct {
	client awsSecretsClient
	prefix string
	logger *logging.Logger
}

// awsSecretsClient is the slice of the Secrets Manager API this backend
// uses, extracted so tests can fake the SDK.
type awsSecretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
}

func newAWSVault(options map[string]string, logger *logging.Logger) (*awsVault, error) {
	var cfgOpts []func(*awsconfig.LoadOptions) error
	if region := options["region"]; region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(region))
	}
	if profile := options["profile"]; profile != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), cfgOpts...)
	if err != nil {
		return nil, gserrors.UserError{
			Message:    "Failed to load AWS configuration",
			Details:    err.Error(),
			Suggestion: "Configure credentials with 'aws configure' or set AWS_PROFILE",
			Err:        err,
		}
	}

	prefix := options["prefix"]
	if prefix == "" {
		prefix = "gitshift"
	}

	return &awsVault{
		client: secretsmanager.NewFromConfig(cfg),
		prefix: prefix,
		logger: logger,
	}, nil
}

func (v *awsVault) secretName(key string) string {
	return fmt.Sprintf("%s/%s", v.prefix, sanitizeKey(key))
}

func (v *awsVault) Put(ctx context.Context, key string, secret []byte) error {
	name := v.secretName(key)

	_, err := v.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(string(secret)),
	})
	if err == nil {
		return nil
	}
	if !isAWSNotFound(err) {
		return gserrors.VaultError{Op: "put", Key: key, Err: err}
	}

	v.logger.Debug("secret %s absent, creating", name)
	_, err = v.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(string(secret)),
	})
	if err != nil {
		return gserrors.VaultError{Op: "put", Key: key, Err: err}
	}
	return nil
}

func (v *awsVault) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := v.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(v.secretName(key)),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return nil, gserrors.NotFoundError{Kind: "secret", Name: key}
		}
		return nil, gserrors.VaultError{Op: "get", Key: key, Err: err}
	}
	if out.SecretString != nil {
		return []byte(*out.SecretString), nil
	}
	return out.SecretBinary, nil
}

func (v *awsVault) Delete(ctx context.Context, key string) error {
	_, err := v.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(v.secretName(key)),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return gserrors.NotFoundError{Kind: "secret", Name: key}
		}
		return gserrors.VaultError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func isAWSNotFound(err error) bool {
	var notFound *types.ResourceNotFoundException
	return errors.As(err, &notFound)
}
