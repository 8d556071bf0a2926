// Package awssecrets keeps savex cipher keys in AWS Secrets Manager.
//
// Keys are stored base64 encoded under "savex/{name}/key" and turned into a
// savex.Cipher with Store.Cipher.
package awssecrets

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/hengadev/savex"
)

// KeySize is the length of stored keys.
const KeySize = 32

// secretsManagerClient interface for AWS Secrets Manager operations (allows mocking)
type secretsManagerClient interface {
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error)
}

// Store reads and writes cipher keys in AWS Secrets Manager.
type Store struct {
	client secretsManagerClient
	region string
}

// Config holds configuration for the Secrets Manager store.
type Config struct {
	// Region is the AWS region. If empty, AWS_REGION or the AWS config file
	// is used.
	Region string

	// AWSConfig is an optional pre-configured AWS config. If provided,
	// Region is ignored.
	AWSConfig *aws.Config
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	var awsConfig aws.Config
	var err error

	if cfg.AWSConfig != nil {
		awsConfig = *cfg.AWSConfig
	} else {
		opts := []func(*config.LoadOptions) error{}
		if cfg.Region != "" {
			opts = append(opts, config.WithRegion(cfg.Region))
		}
		awsConfig, err = config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load AWS config: %w", savex.ErrKeyServiceUnavailable, err)
		}
	}

	return &Store{
		client: secretsmanager.NewFromConfig(awsConfig),
		region: awsConfig.Region,
	}, nil
}

// SecretName returns the secret id used for name, e.g. "savex/nightly/key".
func (s *Store) SecretName(name string) string {
	return fmt.Sprintf("savex/%s/key", name)
}

// StoreKey creates the secret, or adds a new version when it already exists.
func (s *Store) StoreKey(ctx context.Context, name string, key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("%w: key must be exactly %d bytes, got %d", savex.ErrInvalidConfiguration, KeySize, len(key))
	}

	secretName := s.SecretName(name)
	encoded := base64.StdEncoding.EncodeToString(key)

	exists, err := s.KeyExists(ctx, name)
	if err != nil {
		return err
	}

	if exists {
		_, err = s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
			SecretId:     aws.String(secretName),
			SecretString: aws.String(encoded),
		})
		if err != nil {
			return fmt.Errorf("%w: failed to update key in Secrets Manager: %w", savex.ErrKeyServiceUnavailable, err)
		}
		return nil
	}

	_, err = s.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(secretName),
		Description:  aws.String(fmt.Sprintf("savex cipher key for %s", name)),
		SecretString: aws.String(encoded),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to create key in Secrets Manager: %w", savex.ErrKeyServiceUnavailable, err)
	}
	return nil
}

func (s *Store) GetKey(ctx context.Context, name string) ([]byte, error) {
	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.SecretName(name)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get key from Secrets Manager: %w", savex.ErrKeyServiceUnavailable, err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("%w: key not found: %s", savex.ErrKeyServiceUnavailable, name)
	}

	key, err := base64.StdEncoding.DecodeString(*result.SecretString)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode key: %w", savex.ErrKeyServiceUnavailable, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: invalid key length: expected %d bytes, got %d", savex.ErrKeyServiceUnavailable, KeySize, len(key))
	}
	return key, nil
}

// KeyExists reports whether the secret exists. A missing secret is not an
// error.
func (s *Store) KeyExists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
		SecretId: aws.String(s.SecretName(name)),
	})
	if err != nil {
		var notFoundErr *types.ResourceNotFoundException
		if errors.As(err, &notFoundErr) {
			return false, nil
		}
		return false, fmt.Errorf("%w: failed to check if key exists: %w", savex.ErrKeyServiceUnavailable, err)
	}
	return true, nil
}

// Cipher returns a savex cipher for the key stored under name.
func (s *Store) Cipher(ctx context.Context, name string) (savex.Cipher, error) {
	key, err := s.GetKey(ctx, name)
	if err != nil {
		return nil, err
	}
	return savex.NewCipher(key)
}

// Region returns the AWS region this store is configured for.
func (s *Store) Region() string {
	return s.region
}
