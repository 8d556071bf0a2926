package awskms

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/savex"
)

// Mock KMS client for testing
type mockKMSClient struct {
	describeKeyFunc func(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
	createKeyFunc   func(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error)
	encryptFunc     func(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	decryptFunc     func(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

func (m *mockKMSClient) DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error) {
	if m.describeKeyFunc != nil {
		return m.describeKeyFunc(ctx, params, optFns...)
	}
	return &kms.DescribeKeyOutput{}, nil
}

func (m *mockKMSClient) CreateKey(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error) {
	if m.createKeyFunc != nil {
		return m.createKeyFunc(ctx, params, optFns...)
	}
	return &kms.CreateKeyOutput{}, nil
}

func (m *mockKMSClient) Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	if m.encryptFunc != nil {
		return m.encryptFunc(ctx, params, optFns...)
	}
	return &kms.EncryptOutput{}, nil
}

func (m *mockKMSClient) Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	if m.decryptFunc != nil {
		return m.decryptFunc(ctx, params, optFns...)
	}
	return &kms.DecryptOutput{}, nil
}

// xorKMS mimics KMS with a reversible transform so wrap/unwrap round trips.
func xorKMS() *mockKMSClient {
	flip := func(b []byte) []byte {
		out := make([]byte, len(b))
		for i := range b {
			out[i] = b[i] ^ 0x5A
		}
		return out
	}
	return &mockKMSClient{
		encryptFunc: func(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error) {
			return &kms.EncryptOutput{CiphertextBlob: flip(params.Plaintext), KeyId: params.KeyId}, nil
		},
		decryptFunc: func(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error) {
			return &kms.DecryptOutput{Plaintext: flip(params.CiphertextBlob)}, nil
		},
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	svc, err := New(ctx, Config{Region: "us-east-1"})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", svc.Region())
	assert.NotNil(t, svc.client)

	svc, err = New(ctx, Config{AWSConfig: &aws.Config{Region: "eu-west-1"}})
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", svc.Region())
}

func TestGetKeyID(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name         string
		alias        string
		mockFunc     func(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
		wantKeyID    string
		checkErrType error
	}{
		{
			name:  "alias with prefix",
			alias: "alias/my-key",
			mockFunc: func(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error) {
				assert.Equal(t, "alias/my-key", *params.KeyId)
				return &kms.DescribeKeyOutput{KeyMetadata: &types.KeyMetadata{KeyId: aws.String("1234abcd")}}, nil
			},
			wantKeyID: "1234abcd",
		},
		{
			name:  "alias without prefix",
			alias: "my-key",
			mockFunc: func(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error) {
				assert.Equal(t, "alias/my-key", *params.KeyId)
				return &kms.DescribeKeyOutput{KeyMetadata: &types.KeyMetadata{KeyId: aws.String("5678efgh")}}, nil
			},
			wantKeyID: "5678efgh",
		},
		{
			name:         "empty alias",
			alias:        "",
			checkErrType: savex.ErrInvalidConfiguration,
		},
		{
			name:  "describe fails",
			alias: "my-key",
			mockFunc: func(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error) {
				return nil, errors.New("AccessDenied")
			},
			checkErrType: savex.ErrKeyServiceUnavailable,
		},
		{
			name:  "no metadata",
			alias: "my-key",
			mockFunc: func(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error) {
				return &kms.DescribeKeyOutput{}, nil
			},
			checkErrType: savex.ErrKeyServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &KMSService{client: &mockKMSClient{describeKeyFunc: tt.mockFunc}}
			keyID, err := svc.GetKeyID(ctx, tt.alias)
			if tt.checkErrType != nil {
				assert.ErrorIs(t, err, tt.checkErrType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKeyID, keyID)
		})
	}
}

func TestCreateKey(t *testing.T) {
	ctx := context.Background()

	svc := &KMSService{client: &mockKMSClient{
		createKeyFunc: func(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error) {
			assert.Equal(t, "savex dumps", *params.Description)
			assert.Equal(t, types.KeyUsageTypeEncryptDecrypt, params.KeyUsage)
			assert.Equal(t, types.KeySpecSymmetricDefault, params.KeySpec)
			return &kms.CreateKeyOutput{KeyMetadata: &types.KeyMetadata{KeyId: aws.String("new-key")}}, nil
		},
	}}
	keyID, err := svc.CreateKey(ctx, "savex dumps")
	require.NoError(t, err)
	assert.Equal(t, "new-key", keyID)

	svc = &KMSService{client: &mockKMSClient{
		createKeyFunc: func(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error) {
			return nil, errors.New("LimitExceeded")
		},
	}}
	_, err = svc.CreateKey(ctx, "savex dumps")
	assert.ErrorIs(t, err, savex.ErrKeyServiceUnavailable)
	assert.True(t, savex.IsCryptoError(err))
}

func TestWrapKey(t *testing.T) {
	ctx := context.Background()

	svc := &KMSService{client: &mockKMSClient{
		encryptFunc: func(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error) {
			assert.Equal(t, "alias/savex", *params.KeyId)
			return &kms.EncryptOutput{CiphertextBlob: []byte("blob")}, nil
		},
	}}
	wrapped, err := svc.WrapKey(ctx, "alias/savex", []byte("key"))
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), wrapped)

	_, err = svc.WrapKey(ctx, "alias/savex", nil)
	assert.ErrorIs(t, err, savex.ErrEncryptionFailed)

	svc = &KMSService{client: &mockKMSClient{}}
	_, err = svc.WrapKey(ctx, "alias/savex", []byte("key"))
	assert.ErrorIs(t, err, savex.ErrEncryptionFailed, "empty ciphertext blob")

	svc = &KMSService{client: &mockKMSClient{
		encryptFunc: func(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error) {
			return nil, errors.New("throttled")
		},
	}}
	_, err = svc.WrapKey(ctx, "alias/savex", []byte("key"))
	assert.ErrorContains(t, err, "throttled")
}

func TestUnwrapKey(t *testing.T) {
	ctx := context.Background()

	var sawKeyID bool
	svc := &KMSService{client: &mockKMSClient{
		decryptFunc: func(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error) {
			sawKeyID = params.KeyId != nil
			return &kms.DecryptOutput{Plaintext: []byte("key")}, nil
		},
	}}

	plain, err := svc.UnwrapKey(ctx, "", []byte("blob"))
	require.NoError(t, err)
	assert.Equal(t, []byte("key"), plain)
	assert.False(t, sawKeyID)

	_, err = svc.UnwrapKey(ctx, "alias/savex", []byte("blob"))
	require.NoError(t, err)
	assert.True(t, sawKeyID)

	_, err = svc.UnwrapKey(ctx, "", nil)
	assert.ErrorIs(t, err, savex.ErrDecryptionFailed)

	svc = &KMSService{client: &mockKMSClient{}}
	_, err = svc.UnwrapKey(ctx, "", []byte("blob"))
	assert.ErrorIs(t, err, savex.ErrDecryptionFailed)
}

type balance struct {
	Amount float64 `savex:""`
}

type ledger struct {
	Owner   string                  `savex:""`
	Balance savex.Encrypted[balance] `savex:""`
}

func TestDataKeyCipherWithKMS(t *testing.T) {
	ctx := context.Background()
	svc := &KMSService{client: xorKMS()}

	c, wrapped, err := savex.NewDataKeyCipher(ctx, svc, "alias/savex")
	require.NoError(t, err)
	assert.Len(t, wrapped, 32)

	sealed, err := c.Seal([]byte("ledger"))
	require.NoError(t, err)

	reopened, err := savex.OpenDataKeyCipher(ctx, svc, "alias/savex", wrapped)
	require.NoError(t, err)
	plain, err := reopened.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("ledger"), plain)

	data, err := savex.Dump(&ledger{Owner: "ana", Balance: *savex.Seal(&balance{Amount: 12.5})}, savex.WithCipher(c))
	require.NoError(t, err)
	got, err := savex.Load[ledger](bytes.NewReader(data), savex.WithCipher(reopened))
	require.NoError(t, err)
	assert.Equal(t, "ana", got.Owner)
	require.NotNil(t, got.Balance.Value)
	assert.Equal(t, 12.5, got.Balance.Value.Amount)
}
