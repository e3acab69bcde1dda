package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/task-priority-api/internal/hash/sha256"
	"github.com/JakeFAU/task-priority-api/internal/model"
	gcsstorage "github.com/JakeFAU/task-priority-api/internal/storage/gcs"
	localstorage "github.com/JakeFAU/task-priority-api/internal/storage/local"
)

// newStorageClient is the GCS client factory. It's a variable so tests can
// point it at a fake endpoint.
var newStorageClient = func(ctx context.Context) (*storage.Client, error) {
	return storage.NewClient(ctx)
}

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage model artifacts",
	}
	cmd.AddCommand(newModelFetchCmd())
	return cmd
}

type fetchOptions struct {
	bucket   string
	object   string
	dest     string
	name     string
	checksum string
}

func newModelFetchCmd() *cobra.Command {
	var opts fetchOptions
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Copy a model artifact from GCS to a local directory",
		Long: `Downloads --object from --bucket (default model.gcs_bucket), verifies
its SHA-256 when --sha256 is given, parses it to make sure it is a usable
artifact, and writes it atomically into --dest.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			if opts.bucket == "" {
				opts.bucket = cfg.Model.GCSBucket
			}
			uri, sum, err := fetchModel(cmd.Context(), opts)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s sha256=%s\n", uri, sum)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.bucket, "bucket", "", "GCS bucket (defaults to model.gcs_bucket)")
	cmd.Flags().StringVar(&opts.object, "object", "", "object path inside the bucket")
	cmd.Flags().StringVar(&opts.dest, "dest", ".", "destination directory")
	cmd.Flags().StringVar(&opts.name, "name", "", "destination file name (defaults to the object's base name)")
	cmd.Flags().StringVar(&opts.checksum, "sha256", "", "expected SHA-256 hex digest")
	_ = cmd.MarkFlagRequired("object")
	return cmd
}

func fetchModel(ctx context.Context, opts fetchOptions) (string, string, error) {
	if opts.bucket == "" {
		return "", "", errors.New("bucket is required (--bucket or model.gcs_bucket)")
	}
	client, err := newStorageClient(ctx)
	if err != nil {
		return "", "", fmt.Errorf("gcs client init failed: %w", err)
	}
	defer func() { _ = client.Close() }()

	source, err := gcsstorage.New(client, gcsstorage.Config{Bucket: opts.bucket})
	if err != nil {
		return "", "", err
	}
	data, err := source.GetObject(ctx, opts.object)
	if err != nil {
		return "", "", err
	}
	sum, err := sha256.New().Hash(data)
	if err != nil {
		return "", "", fmt.Errorf("hash object: %w", err)
	}
	if opts.checksum != "" && !strings.EqualFold(opts.checksum, sum) {
		return "", "", fmt.Errorf("%w: expected %s, got %s", model.ErrChecksumMismatch, opts.checksum, sum)
	}
	if _, err := model.ParseArtifact(data); err != nil {
		if _, labelErr := model.ParseLabelEncoder(data); labelErr != nil {
			return "", "", fmt.Errorf("object is neither a model artifact nor a label encoder: %w", err)
		}
	}

	dest, err := localstorage.New(localstorage.Config{BaseDir: opts.dest})
	if err != nil {
		return "", "", err
	}
	name := opts.name
	if name == "" {
		name = path.Base(opts.object)
	}
	uri, err := dest.PutObject(ctx, name, "application/json", bytes.NewReader(data))
	if err != nil {
		return "", "", err
	}
	return uri, sum, nil
}
