package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/hengadev/savex"
	"github.com/hengadev/savex/internal/config"
	"github.com/hengadev/savex/internal/crypto"
	"github.com/hengadev/savex/providers/sqlite"
)

func initCommand(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", config.FileName, "Path of the configuration file to create")
	source := fs.String("key-source", config.KeyNone, "Key source: none, env, passphrase, vault, vault-transit, kms, aws-secrets")
	force := fs.Bool("force", false, "Overwrite existing configuration file")

	fs.Parse(args)

	if !*force {
		if _, err := os.Stat(*configPath); err == nil {
			return fmt.Errorf("configuration file %s already exists, use -force to overwrite", *configPath)
		}
	}

	cfg := config.DefaultConfig()
	cfg.Key.Source = *source
	if *source == config.KeyPassphrase {
		salt, err := crypto.GenerateSalt(cfg.Key.Params)
		if err != nil {
			return err
		}
		cfg.Key.Salt = hex.EncodeToString(salt)
	}

	if err := config.SaveConfig(cfg, *configPath); err != nil {
		return err
	}
	fmt.Fprintf(out, "Created configuration file %s\n", *configPath)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "Complete these settings before use: %v\n", err)
	}
	return nil
}

func keygenCommand(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (default: nearest savex.yaml)")
	salt := fs.Bool("salt", false, "Print a passphrase salt instead of a key")
	store := fs.Bool("store", false, "Store the key in the configured vault or aws-secrets source")

	fs.Parse(args)

	if *salt {
		s, err := crypto.GenerateSalt(crypto.DefaultKeyParams)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, hex.EncodeToString(s))
		return nil
	}

	if !*store {
		key, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, hex.EncodeToString(key))
		return nil
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	name, err := a.storeNewKey(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Stored a new key as %s in %s\n", name, a.cfg.Key.Source)
	return nil
}

func putCommand(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (default: nearest savex.yaml)")
	name := fs.String("name", "", "Catalog name (default: file name without extension)")
	inline := fs.Bool("inline", false, "Keep the dump in the catalog instead of S3")

	fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.New("expected one dump file, or - for stdin")
	}
	path := fs.Arg(0)
	if *name == "" {
		if path == "-" {
			return errors.New("-name is required when reading stdin")
		}
		*name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	data, err := readInput(path)
	if err != nil {
		return err
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := a.put(context.Background(), *name, data, *inline)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Stored %s (%d bytes) as %s at %s\n", e.Name, e.Size, e.ID, e.Location)
	return nil
}

func getCommand(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (default: nearest savex.yaml)")
	output := fs.String("o", "", "Output file (default: stdout)")
	id := fs.String("id", "", "Fetch this entry instead of the latest one for the name")

	fs.Parse(args)

	if fs.NArg() != 1 && *id == "" {
		return errors.New("expected a catalog name or -id")
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	data, _, err := a.get(context.Background(), fs.Arg(0), *id)
	if err != nil {
		return err
	}
	return writeOutput(*output, data, out)
}

func listCommand(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (default: nearest savex.yaml)")

	fs.Parse(args)

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.catalog.List(context.Background())
	if err != nil {
		return err
	}
	printEntries(out, entries)
	return nil
}

func rmCommand(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (default: nearest savex.yaml)")
	keep := fs.Bool("keep-object", false, "Only remove the catalog entry")

	fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.New("expected one entry id")
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.remove(context.Background(), fs.Arg(0), *keep); err != nil {
		return err
	}
	fmt.Fprintf(out, "Removed %s\n", fs.Arg(0))
	return nil
}

func rewrapCommand(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("rewrap", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (default: nearest savex.yaml)")
	keyID := fs.String("key-id", "", "Wrapping key to move the data key to")

	fs.Parse(args)

	if fs.NArg() != 1 || *keyID == "" {
		return errors.New("expected a catalog name and -key-id")
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := a.rewrap(context.Background(), fs.Arg(0), *keyID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Recorded %s with its data key wrapped under %s\n", e.ID, e.KeyID)
	return nil
}

func versionCommand(out io.Writer) {
	fmt.Fprintln(out, savex.VersionInfo())
	fmt.Fprintln(out, "Little-endian binary dumps for Go values")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Key sources: none, env, passphrase, vault, vault-transit, kms, aws-secrets")
	fmt.Fprintln(out, "Storage: S3, inline SQLite catalog")
}

// put seals data with a key from the configured source, stores it and
// records it under name.
func (a *app) put(ctx context.Context, name string, data []byte, inline bool) (sqlite.Entry, error) {
	sk, err := a.newSealKey(ctx)
	if err != nil {
		return sqlite.Entry{}, err
	}

	e := sqlite.Entry{
		Name:       name,
		Size:       int64(len(data)),
		KeySource:  sk.source,
		KeyID:      sk.keyID,
		WrappedKey: sk.wrapped,
		Derivation: sk.derivation,
	}

	if inline {
		blob, err := sealBlob(sk.key, data)
		if err != nil {
			return sqlite.Entry{}, err
		}
		e.Location = sqlite.LocationInline
		e.Blob = blob
		return a.catalog.Record(ctx, e)
	}

	cfg, err := a.s3Config(a.cfg.S3.Prefix, sk.key)
	if err != nil {
		return sqlite.Entry{}, err
	}
	store, err := a.store(ctx, cfg)
	if err != nil {
		return sqlite.Entry{}, err
	}
	e.Location, err = store.Upload(ctx, "", bytes.NewReader(data))
	if err != nil {
		return sqlite.Entry{}, err
	}

	recorded, err := a.catalog.Record(ctx, e)
	if err != nil {
		a.logger.Warn().Str("key", e.Location).Msg("object uploaded but not recorded")
		return sqlite.Entry{}, err
	}
	return recorded, nil
}

// get returns the plaintext dump of the entry with id, or of the latest entry
// for name when id is empty.
func (a *app) get(ctx context.Context, name, id string) ([]byte, sqlite.Entry, error) {
	e, err := a.lookup(ctx, name, id)
	if err != nil {
		return nil, sqlite.Entry{}, err
	}

	key, err := a.openKey(ctx, e)
	if err != nil {
		return nil, e, err
	}

	var data []byte
	if e.Location == sqlite.LocationInline {
		data, err = openBlob(key, e.Blob)
	} else {
		data, err = a.download(ctx, e.Location, key)
	}
	if err != nil {
		return nil, e, err
	}

	if int64(len(data)) != e.Size {
		return nil, e, fmt.Errorf("%w: %s has %d bytes, catalog recorded %d", savex.ErrMalformedStream, e.ID, len(data), e.Size)
	}
	a.logger.Debug().Str("name", e.Name).Str("id", e.ID.String()).Msg("fetched dump")
	return data, e, nil
}

func (a *app) download(ctx context.Context, location string, key []byte) ([]byte, error) {
	cfg, err := a.s3Config("", key)
	if err != nil {
		return nil, err
	}
	store, err := a.store(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return store.Download(ctx, location)
}

func (a *app) remove(ctx context.Context, id string, keepObject bool) error {
	e, err := a.lookup(ctx, "", id)
	if err != nil {
		return err
	}

	if e.Location != sqlite.LocationInline && !keepObject {
		cfg, err := a.s3Config("", nil)
		if err != nil {
			return err
		}
		store, err := a.store(ctx, cfg)
		if err != nil {
			return err
		}
		if err := store.Delete(ctx, e.Location); err != nil {
			return err
		}
	}
	return a.catalog.Delete(ctx, e.ID)
}

// rewrap records a new version of the latest entry for name whose data key
// is wrapped under keyID. Older versions keep their wrapped key.
func (a *app) rewrap(ctx context.Context, name, keyID string) (sqlite.Entry, error) {
	e, err := a.catalog.Latest(ctx, name)
	if err != nil {
		return sqlite.Entry{}, err
	}
	if e.KeySource != config.KeyKMS && e.KeySource != config.KeyVaultTransit {
		return sqlite.Entry{}, fmt.Errorf("%s uses key source %q, only kms and vault-transit keys can be rewrapped", name, e.KeySource)
	}

	current, err := a.envelope(ctx, e.KeySource, e.KeyID)
	if err != nil {
		return sqlite.Entry{}, err
	}
	next, err := a.envelope(ctx, e.KeySource, keyID)
	if err != nil {
		return sqlite.Entry{}, err
	}
	wrapped, err := current.Rewrap(ctx, e.WrappedKey, next)
	if err != nil {
		return sqlite.Entry{}, err
	}

	e.KeyID = keyID
	e.WrappedKey = wrapped
	return a.catalog.Record(ctx, e)
}

// storeNewKey generates a key and stores it under the configured secret
// name, replacing any previous one.
func (a *app) storeNewKey(ctx context.Context) (string, error) {
	source := a.cfg.Key.Source
	if source != config.KeyVault && source != config.KeyAWSSecrets {
		return "", fmt.Errorf("key source %q has no key store", source)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}
	store, err := a.secrets(ctx, source)
	if err != nil {
		return "", err
	}
	name := a.secretName()
	if err := store.StoreKey(ctx, name, key); err != nil {
		return "", err
	}
	return name, nil
}

func (a *app) lookup(ctx context.Context, name, id string) (sqlite.Entry, error) {
	if id == "" {
		return a.catalog.Latest(ctx, name)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return sqlite.Entry{}, fmt.Errorf("invalid entry id %q: %w", id, err)
	}
	return a.catalog.Get(ctx, parsed)
}

func sealBlob(key, data []byte) ([]byte, error) {
	if key == nil {
		return data, nil
	}
	aead, err := crypto.NewAEAD(key)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := aead.SealStream(&buf, bytes.NewReader(data)); err != nil {
		return nil, savex.NewEncryptionError("catalog blob", err)
	}
	return buf.Bytes(), nil
}

func openBlob(key, blob []byte) ([]byte, error) {
	if key == nil {
		return blob, nil
	}
	aead, err := crypto.NewAEAD(key)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := aead.OpenStream(&buf, bytes.NewReader(blob)); err != nil {
		return nil, savex.NewDecryptionError("catalog blob", err)
	}
	return buf.Bytes(), nil
}

func printEntries(out io.Writer, entries []sqlite.Entry) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tKEY\tLOCATION\tCREATED")
	for _, e := range entries {
		key := e.KeySource
		if e.KeyID != "" {
			key += ":" + e.KeyID
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", e.ID, e.Name, e.Size, key, e.Location, e.CreatedAt.Format(time.RFC3339))
	}
	tw.Flush()
}
