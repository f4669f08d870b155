package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/cobra"

	"github.com/veloxdb/veloxdb/archive"
	"github.com/veloxdb/veloxdb/blobstore"
	"github.com/veloxdb/veloxdb/blobstore/minio"
	"github.com/veloxdb/veloxdb/blobstore/s3"
	"github.com/veloxdb/veloxdb/internal/config"
	"github.com/veloxdb/veloxdb/internal/resource"
)

// newArchiver builds the blob store, catalog and archiver described by cfg.
func newArchiver(ctx context.Context, cfg config.ArchiveConfig, a *app) (*archive.Archiver, error) {
	if err := config.ValidateArchive(&cfg); err != nil {
		return nil, err
	}
	codec, err := archive.ParseCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}

	var (
		store   blobstore.BlobStore
		catalog archive.Catalog
	)
	switch strings.ToLower(cfg.Backend) {
	case "local":
		store = blobstore.NewLocalStore(cfg.Root)
	case "minio":
		store, err = minio.New(minio.Config{
			Endpoint:        cfg.Endpoint,
			Bucket:          cfg.Bucket,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Region:          cfg.Region,
			Secure:          cfg.Secure,
		})
		if err != nil {
			return nil, err
		}
	case "s3":
		s3cfg := s3.Config{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			UsePathStyle:    cfg.UsePathStyle,
		}
		store, err = s3.New(ctx, s3cfg)
		if err != nil {
			return nil, err
		}
		if cfg.DynamoDBTable != "" {
			awsCfg, err := s3.LoadAWSConfig(ctx, s3cfg)
			if err != nil {
				return nil, err
			}
			baseURI := "s3://" + cfg.Bucket + "/" + cfg.Prefix
			catalog = s3.NewDDBCatalog(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable, baseURI)
		}
	}

	var ctrl *resource.Controller
	if cfg.MaxWorkers > 0 || cfg.IOLimitBytes > 0 {
		ctrl = resource.NewController(resource.Config{
			MaxBackgroundWorkers: cfg.MaxWorkers,
			IOLimitBytesPerSec:   cfg.IOLimitBytes,
		})
	}

	return archive.New(store, catalog, archive.Options{
		Codec:      codec,
		Prefix:     cfg.Prefix,
		Controller: ctrl,
		Logger:     a.log.Logger,
	}), nil
}

func newPushCommand(a *app) *cobra.Command {
	var codec string

	cmd := &cobra.Command{
		Use:   "push <snapshot-dir> [name]",
		Short: "Upload a snapshot directory to the archive",
		Long: `Compress and upload every file of a snapshot directory, then publish it as
the latest archive. The name defaults to the snapshot id.`,
		Example: `  veloxd snapshot --fvecs data/vectors.fvecs --index data/index.ivf snap/
  veloxd push snap/ nightly-2024-06-01`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Archive
			if codec != "" {
				cfg.Codec = codec
			}
			arc, err := newArchiver(cmd.Context(), cfg, a)
			if err != nil {
				return err
			}
			var name string
			if len(args) == 2 {
				name = args[1]
			}
			name, err = arc.Push(cmd.Context(), args[0], name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}

	cmd.Flags().StringVar(&codec, "codec", "", "compression codec: none, lz4 or zstd (overrides config)")
	return cmd
}

func newPullCommand(a *app) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "pull <dir>",
		Short: "Download an archived snapshot",
		Long: `Download, decompress and verify an archived snapshot into dir. Without
--name the latest published archive is pulled. The result can be served by
pointing the data directory at it.`,
		Example: `  veloxd pull --name nightly-2024-06-01 data/
  veloxd pull data/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arc, err := newArchiver(cmd.Context(), a.cfg.Archive, a)
			if err != nil {
				return err
			}
			if name == "" {
				name, _, err = arc.PullLatest(cmd.Context(), args[0])
			} else {
				_, err = arc.Pull(cmd.Context(), name, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pulled %s into %s\n", name, args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "archive name (default: latest)")
	return cmd
}

func newListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			arc, err := newArchiver(cmd.Context(), a.cfg.Archive, a)
			if err != nil {
				return err
			}
			names, err := arc.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
