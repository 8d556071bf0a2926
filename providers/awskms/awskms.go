// Package awskms wraps savex data keys with AWS Key Management Service.
//
// KMSService implements savex.KeyWrapper, so a dump can be sealed with a
// fresh data key whose wrapped form is stored next to it:
//
//	svc, err := awskms.New(ctx, awskms.Config{Region: "eu-west-3"})
//	c, wrapped, err := savex.NewDataKeyCipher(ctx, svc, "alias/savex")
//	err = savex.SaveFile("dump.bin", v, savex.WithCipher(c))
package awskms

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/hengadev/savex"
)

// kmsClient interface for AWS KMS operations (allows mocking)
type kmsClient interface {
	DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
	CreateKey(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error)
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// KMSService implements savex.KeyWrapper using AWS KMS.
type KMSService struct {
	client kmsClient
	region string
}

var _ savex.KeyWrapper = (*KMSService)(nil)

// Config holds configuration for AWS KMS service.
type Config struct {
	// Region is the AWS region (e.g., "us-east-1")
	// If empty, uses AWS_REGION environment variable or AWS config file
	Region string

	// AWSConfig is an optional pre-configured AWS config
	// If provided, Region is ignored
	AWSConfig *aws.Config
}

// New creates a KMS service from cfg or the default AWS configuration chain.
func New(ctx context.Context, cfg Config) (*KMSService, error) {
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

	return &KMSService{
		client: kms.NewFromConfig(awsConfig),
		region: awsConfig.Region,
	}, nil
}

// GetKeyID resolves an alias to the id of the key it points to. The
// "alias/" prefix is added when missing.
func (k *KMSService) GetKeyID(ctx context.Context, alias string) (string, error) {
	if alias == "" {
		return "", fmt.Errorf("%w: alias cannot be empty", savex.ErrInvalidConfiguration)
	}

	aliasName := alias
	if !strings.HasPrefix(alias, "alias/") {
		aliasName = "alias/" + alias
	}

	result, err := k.client.DescribeKey(ctx, &kms.DescribeKeyInput{
		KeyId: aws.String(aliasName),
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to describe KMS key %s: %w", savex.ErrKeyServiceUnavailable, aliasName, err)
	}
	if result.KeyMetadata == nil || result.KeyMetadata.KeyId == nil {
		return "", fmt.Errorf("%w: no key metadata returned for alias %s", savex.ErrKeyServiceUnavailable, aliasName)
	}

	return *result.KeyMetadata.KeyId, nil
}

// CreateKey creates a symmetric encrypt/decrypt KMS key and returns its id.
// Aliases are managed outside savex.
func (k *KMSService) CreateKey(ctx context.Context, description string) (string, error) {
	result, err := k.client.CreateKey(ctx, &kms.CreateKeyInput{
		Description: aws.String(description),
		KeyUsage:    types.KeyUsageTypeEncryptDecrypt,
		KeySpec:     types.KeySpecSymmetricDefault,
		MultiRegion: aws.Bool(false),
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to create KMS key: %w", savex.ErrKeyServiceUnavailable, err)
	}
	if result.KeyMetadata == nil || result.KeyMetadata.KeyId == nil {
		return "", fmt.Errorf("%w: no key metadata returned after creation", savex.ErrKeyServiceUnavailable)
	}

	return *result.KeyMetadata.KeyId, nil
}

// WrapKey encrypts a data key under keyID (key id, key ARN, alias name or
// alias ARN). The raw ciphertext blob is returned.
func (k *KMSService) WrapKey(ctx context.Context, keyID string, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("%w: plaintext cannot be empty", savex.ErrEncryptionFailed)
	}

	result, err := k.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(keyID),
		Plaintext: plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to wrap data key with KMS key %s: %w", savex.ErrEncryptionFailed, keyID, err)
	}
	if result.CiphertextBlob == nil {
		return nil, fmt.Errorf("%w: no ciphertext returned from KMS", savex.ErrEncryptionFailed)
	}

	return result.CiphertextBlob, nil
}

// UnwrapKey decrypts a blob produced by WrapKey. keyID may be empty; KMS
// finds the key from the blob metadata.
func (k *KMSService) UnwrapKey(ctx context.Context, keyID string, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: ciphertext cannot be empty", savex.ErrDecryptionFailed)
	}

	input := &kms.DecryptInput{
		CiphertextBlob: ciphertext,
	}
	if keyID != "" {
		input.KeyId = aws.String(keyID)
	}

	result, err := k.client.Decrypt(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to unwrap data key: %w", savex.ErrDecryptionFailed, err)
	}
	if result.Plaintext == nil {
		return nil, fmt.Errorf("%w: no plaintext returned from KMS", savex.ErrDecryptionFailed)
	}

	return result.Plaintext, nil
}

// Region returns the AWS region this KMS service is configured for.
func (k *KMSService) Region() string {
	return k.region
}
