package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/savex"
	"github.com/hengadev/savex/internal/config"
	"github.com/hengadev/savex/internal/crypto"
	s3bucket "github.com/hengadev/savex/providers/s3"
	"github.com/hengadev/savex/providers/sqlite"
)

var (
	testKey    = bytes.Repeat([]byte{0x42}, crypto.KeySize)
	testParams = crypto.KeyParams{Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 16}
	testDump   = []byte{0x03, 0x00, 0x00, 0x00, 0x0a, 0x00, 0x00, 0x00, 0x14, 0x00, 0x00, 0x00, 0x1e, 0x00, 0x00, 0x00}
)

type memS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[aws.ToString(params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *memS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s", aws.ToString(params.Key))
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *memS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

type memSecrets struct {
	keys map[string][]byte
}

func (m *memSecrets) StoreKey(ctx context.Context, name string, key []byte) error {
	m.keys[name] = append([]byte(nil), key...)
	return nil
}

func (m *memSecrets) GetKey(ctx context.Context, name string) ([]byte, error) {
	key, ok := m.keys[name]
	if !ok {
		return nil, fmt.Errorf("%w: key not found: %s", savex.ErrKeyServiceUnavailable, name)
	}
	return key, nil
}

// xorWrapper masks keys with the last byte of the key id.
type xorWrapper struct{}

func (xorWrapper) WrapKey(ctx context.Context, keyID string, plaintext []byte) ([]byte, error) {
	return xorMask(keyID, plaintext), nil
}

func (xorWrapper) UnwrapKey(ctx context.Context, keyID string, ciphertext []byte) ([]byte, error) {
	return xorMask(keyID, ciphertext), nil
}

func xorMask(keyID string, b []byte) []byte {
	mask := keyID[len(keyID)-1]
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[i] ^ mask
	}
	return out
}

type testEnv struct {
	app     *app
	s3      *memS3
	secrets *memSecrets
	env     map[string]string
}

func newTestApp(t *testing.T, modify func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.S3.Bucket = "dumps"
	cfg.S3.Region = "eu-west-3"
	cfg.S3.Prefix = "nightly/"
	if modify != nil {
		modify(cfg)
	}

	catalog, err := sqlite.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	te := &testEnv{
		s3:      &memS3{objects: map[string][]byte{}},
		secrets: &memSecrets{keys: map[string][]byte{}},
		env: map[string]string{
			config.EnvKey:        hex.EncodeToString(testKey),
			config.EnvPassphrase: "correct horse battery staple",
		},
	}
	te.app = &app{
		cfg:     cfg,
		logger:  zerolog.Nop(),
		catalog: catalog,
		getenv:  func(k string) string { return te.env[k] },
		store: func(ctx context.Context, c s3bucket.Config) (*s3bucket.Store, error) {
			return s3bucket.NewWithClient(te.s3, c)
		},
		wrapper: func(context.Context, string) (crypto.KeyWrapper, error) {
			return xorWrapper{}, nil
		},
		secrets: func(context.Context, string) (secretStore, error) {
			return te.secrets, nil
		},
	}
	return te
}

func TestPutGetInline(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
		check  func(t *testing.T, e sqlite.Entry)
	}{
		{
			name:   "none",
			modify: func(c *config.Config) {},
			check: func(t *testing.T, e sqlite.Entry) {
				assert.Equal(t, testDump, e.Blob)
			},
		},
		{
			name:   "env",
			modify: func(c *config.Config) { c.Key.Source = config.KeyEnv },
			check: func(t *testing.T, e sqlite.Entry) {
				assert.Equal(t, config.EnvKey, e.KeyID)
			},
		},
		{
			name: "passphrase",
			modify: func(c *config.Config) {
				c.Key.Source = config.KeyPassphrase
				c.Key.Params = testParams
				c.Key.Salt = "00112233445566778899aabbccddeeff"
			},
			check: func(t *testing.T, e sqlite.Entry) {
				assert.True(t, strings.HasPrefix(e.Derivation, "$argon2id$v=19$m=64,t=1,p=1$"))
			},
		},
		{
			name: "vault",
			modify: func(c *config.Config) {
				c.Key.Source = config.KeyVault
				c.Vault.SecretPath = "nightly"
			},
			check: func(t *testing.T, e sqlite.Entry) {
				assert.Equal(t, "nightly", e.KeyID)
			},
		},
		{
			name: "kms",
			modify: func(c *config.Config) {
				c.Key.Source = config.KeyKMS
				c.KMS.KeyID = "alias/savex-1"
			},
			check: func(t *testing.T, e sqlite.Entry) {
				assert.Equal(t, "alias/savex-1", e.KeyID)
				assert.Len(t, e.WrappedKey, crypto.KeySize)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			te := newTestApp(t, tt.modify)
			te.secrets.keys["nightly"] = testKey

			e, err := te.app.put(ctx, "report", testDump, true)
			require.NoError(t, err)
			assert.Equal(t, sqlite.LocationInline, e.Location)
			assert.Equal(t, int64(len(testDump)), e.Size)
			assert.Equal(t, te.app.cfg.Key.Source, e.KeySource)
			if te.app.cfg.Encrypted() {
				assert.NotEqual(t, testDump, e.Blob)
			}
			tt.check(t, e)

			data, got, err := te.app.get(ctx, "report", "")
			require.NoError(t, err)
			assert.Equal(t, testDump, data)
			assert.Equal(t, e.ID, got.ID)
		})
	}
}

func TestPutGetS3(t *testing.T) {
	ctx := context.Background()
	te := newTestApp(t, func(c *config.Config) { c.Key.Source = config.KeyEnv })

	e, err := te.app.put(ctx, "report", testDump, false)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(e.Location, "nightly/"))
	assert.True(t, strings.HasSuffix(e.Location, ".savex"))
	assert.Nil(t, e.Blob)

	stored, ok := te.s3.objects[e.Location]
	require.True(t, ok)
	assert.NotEqual(t, testDump, stored)

	data, _, err := te.app.get(ctx, "", e.ID.String())
	require.NoError(t, err)
	assert.Equal(t, testDump, data)
}

func TestGetWithWrongKey(t *testing.T) {
	ctx := context.Background()
	te := newTestApp(t, func(c *config.Config) { c.Key.Source = config.KeyEnv })

	_, err := te.app.put(ctx, "report", testDump, false)
	require.NoError(t, err)

	te.env[config.EnvKey] = hex.EncodeToString(bytes.Repeat([]byte{0x01}, crypto.KeySize))
	_, _, err = te.app.get(ctx, "report", "")
	assert.ErrorIs(t, err, savex.ErrDecryptionFailed)
}

func TestGetFollowsRecordedKeySource(t *testing.T) {
	ctx := context.Background()
	te := newTestApp(t, func(c *config.Config) {
		c.Key.Source = config.KeyKMS
		c.KMS.KeyID = "alias/savex-1"
	})

	_, err := te.app.put(ctx, "report", testDump, false)
	require.NoError(t, err)

	te.app.cfg.Key.Source = config.KeyNone
	data, _, err := te.app.get(ctx, "report", "")
	require.NoError(t, err)
	assert.Equal(t, testDump, data)
}

func TestGetSizeMismatch(t *testing.T) {
	ctx := context.Background()
	te := newTestApp(t, nil)

	_, err := te.app.catalog.Record(ctx, sqlite.Entry{
		Name:     "report",
		Location: sqlite.LocationInline,
		Size:     99,
		Blob:     testDump,
	})
	require.NoError(t, err)

	_, _, err = te.app.get(ctx, "report", "")
	assert.ErrorIs(t, err, savex.ErrMalformedStream)
}

func TestGetMissing(t *testing.T) {
	te := newTestApp(t, nil)

	_, _, err := te.app.get(context.Background(), "nothing", "")
	assert.ErrorIs(t, err, sqlite.ErrNotFound)

	_, _, err = te.app.get(context.Background(), "", "not-a-uuid")
	assert.ErrorContains(t, err, "invalid entry id")
}

func TestPutWithoutBucket(t *testing.T) {
	te := newTestApp(t, func(c *config.Config) { c.S3.Bucket = "" })

	_, err := te.app.put(context.Background(), "report", testDump, false)
	assert.ErrorContains(t, err, "no bucket configured")
}

func TestNewSealKeyErrors(t *testing.T) {
	ctx := context.Background()

	te := newTestApp(t, func(c *config.Config) { c.Key.Source = config.KeyEnv })
	delete(te.env, config.EnvKey)
	_, err := te.app.newSealKey(ctx)
	assert.ErrorContains(t, err, "SAVEX_KEY is not set")

	te.env[config.EnvKey] = "abcd"
	_, err = te.app.newSealKey(ctx)
	assert.ErrorContains(t, err, "must hold 32 bytes")

	te = newTestApp(t, func(c *config.Config) {
		c.Key.Source = config.KeyPassphrase
		c.Key.Params = testParams
		c.Key.Salt = "00112233445566778899aabbccddeeff"
	})
	delete(te.env, config.EnvPassphrase)
	_, err = te.app.newSealKey(ctx)
	assert.ErrorContains(t, err, "SAVEX_PASSPHRASE is not set")

	te = newTestApp(t, func(c *config.Config) {
		c.Key.Source = config.KeyAWSSecrets
		c.Secrets.Name = "missing"
	})
	_, err = te.app.newSealKey(ctx)
	assert.ErrorIs(t, err, savex.ErrKeyServiceUnavailable)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	te := newTestApp(t, nil)

	e, err := te.app.put(ctx, "report", testDump, false)
	require.NoError(t, err)
	require.Contains(t, te.s3.objects, e.Location)

	require.NoError(t, te.app.remove(ctx, e.ID.String(), false))
	assert.NotContains(t, te.s3.objects, e.Location)
	_, err = te.app.catalog.Get(ctx, e.ID)
	assert.ErrorIs(t, err, sqlite.ErrNotFound)

	kept, err := te.app.put(ctx, "report", testDump, false)
	require.NoError(t, err)
	require.NoError(t, te.app.remove(ctx, kept.ID.String(), true))
	assert.Contains(t, te.s3.objects, kept.Location)
}

func TestRewrap(t *testing.T) {
	ctx := context.Background()
	te := newTestApp(t, func(c *config.Config) {
		c.Key.Source = config.KeyKMS
		c.KMS.KeyID = "alias/savex-1"
	})

	original, err := te.app.put(ctx, "report", testDump, true)
	require.NoError(t, err)

	rewrapped, err := te.app.rewrap(ctx, "report", "alias/savex-2")
	require.NoError(t, err)
	assert.NotEqual(t, original.ID, rewrapped.ID)
	assert.Equal(t, "alias/savex-2", rewrapped.KeyID)
	assert.NotEqual(t, original.WrappedKey, rewrapped.WrappedKey)
	assert.Equal(t, original.Blob, rewrapped.Blob)

	data, latest, err := te.app.get(ctx, "report", "")
	require.NoError(t, err)
	assert.Equal(t, rewrapped.ID, latest.ID)
	assert.Equal(t, testDump, data)

	data, _, err = te.app.get(ctx, "", original.ID.String())
	require.NoError(t, err)
	assert.Equal(t, testDump, data)
}

func TestRewrapRejectsDirectKeys(t *testing.T) {
	ctx := context.Background()
	te := newTestApp(t, func(c *config.Config) { c.Key.Source = config.KeyEnv })

	_, err := te.app.put(ctx, "report", testDump, true)
	require.NoError(t, err)

	_, err = te.app.rewrap(ctx, "report", "alias/other")
	assert.ErrorContains(t, err, "only kms and vault-transit keys can be rewrapped")
}

func TestStoreNewKey(t *testing.T) {
	ctx := context.Background()
	te := newTestApp(t, func(c *config.Config) {
		c.Key.Source = config.KeyVault
		c.Vault.SecretPath = "nightly"
	})

	name, err := te.app.storeNewKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "nightly", name)
	assert.Len(t, te.secrets.keys["nightly"], crypto.KeySize)

	_, err = te.app.put(ctx, "report", testDump, false)
	require.NoError(t, err)
	data, _, err := te.app.get(ctx, "report", "")
	require.NoError(t, err)
	assert.Equal(t, testDump, data)

	te.app.cfg.Key.Source = config.KeyKMS
	_, err = te.app.storeNewKey(ctx)
	assert.ErrorContains(t, err, "has no key store")
}

func TestPrintEntries(t *testing.T) {
	ctx := context.Background()
	te := newTestApp(t, func(c *config.Config) {
		c.Key.Source = config.KeyKMS
		c.KMS.KeyID = "alias/savex-1"
	})
	_, err := te.app.put(ctx, "report", testDump, true)
	require.NoError(t, err)

	entries, err := te.app.catalog.List(ctx)
	require.NoError(t, err)

	var out bytes.Buffer
	printEntries(&out, entries)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "report")
	assert.Contains(t, lines[1], "kms:alias/savex-1")
	assert.Contains(t, lines[1], sqlite.LocationInline)
}

func TestInspect(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, inspect(&out, "numbers.savex", testDump, 8, true))

	text := out.String()
	assert.Contains(t, text, "Size: 16 bytes")
	assert.Contains(t, text, "Array count: 3")
	assert.Contains(t, text, "Bytes per element: 4.0")
	assert.Contains(t, text, "03 00 00 00 0a 00 00 00")
	assert.Contains(t, text, "... 8 more bytes")

	err := inspect(&out, "short", []byte{1}, 0, true)
	assert.ErrorContains(t, err, "too short")

	err = inspect(&out, "negative", []byte{0xff, 0xff, 0xff, 0xff}, 0, true)
	assert.ErrorContains(t, err, "negative array count")
}

func TestRunInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	var out bytes.Buffer

	require.NoError(t, run("init", []string{"-config", path, "-key-source", config.KeyPassphrase}, &out))
	assert.Contains(t, out.String(), "Created configuration file")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.KeyPassphrase, cfg.Key.Source)
	salt, err := cfg.Key.SaltBytes()
	require.NoError(t, err)
	assert.Len(t, salt, int(cfg.Key.Params.SaltLength))

	err = run("init", []string{"-config", path}, &out)
	assert.ErrorContains(t, err, "already exists")

	out.Reset()
	require.NoError(t, run("init", []string{"-config", path, "-force", "-key-source", config.KeyKMS}, &out))
	assert.Contains(t, out.String(), "Complete these settings before use")
}

func TestRunPutGetList(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, config.FileName)
	cfg := config.DefaultConfig()
	cfg.Log.Level = "disabled"
	cfg.Key.Source = config.KeyEnv
	cfg.Catalog.Path = filepath.Join(dir, "catalog", "savex.db")
	require.NoError(t, config.SaveConfig(cfg, configPath))
	t.Setenv(config.EnvKey, hex.EncodeToString(testKey))
	t.Setenv(config.EnvKeySource, "")
	t.Setenv(config.EnvCatalogPath, "")

	input := filepath.Join(dir, "report.savex")
	require.NoError(t, os.WriteFile(input, testDump, 0600))

	var out bytes.Buffer
	require.NoError(t, run("put", []string{"-config", configPath, "-inline", input}, &out))
	assert.Contains(t, out.String(), "Stored report (16 bytes)")

	output := filepath.Join(dir, "restored.savex")
	require.NoError(t, run("get", []string{"-config", configPath, "-o", output, "report"}, &out))
	restored, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, testDump, restored)

	out.Reset()
	require.NoError(t, run("list", []string{"-config", configPath}, &out))
	assert.Contains(t, out.String(), "env:SAVEX_KEY")
}

func TestRunVersionAndUnknown(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run("version", nil, &out))
	assert.Contains(t, out.String(), savex.VersionInfo())

	assert.ErrorContains(t, run("frobnicate", nil, &out), "unknown command")
}

func TestDefaultProvidersRejectDirectSources(t *testing.T) {
	te := newTestApp(t, nil)
	ctx := context.Background()

	_, err := te.app.defaultWrapper(ctx, config.KeyEnv)
	assert.ErrorContains(t, err, "does not wrap keys")

	_, err = te.app.defaultSecrets(ctx, config.KeyPassphrase)
	assert.ErrorContains(t, err, "does not store keys")
}
