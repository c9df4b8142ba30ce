// Package s3 downloads product objects through the CDSE eodata
// S3-compatible gateway, authenticated with S3 access keys.
package s3

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/cdse/pkg/errors"
	"github.com/glorpus-work/cdse/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// DefaultEndpoint is the CDSE object-store gateway host.
const DefaultEndpoint = "eodata.dataspace.copernicus.eu"

// Gateway wraps an S3 client bound to the eodata endpoint.
type Gateway struct {
	client *minio.Client
}

// NewGateway creates a gateway for the given endpoint and S3 key pair.
func NewGateway(endpoint, accessKey, secretKey string, secure bool) (*Gateway, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create s3 client")
	}
	return &Gateway{client: client}, nil
}

// NewGatewayFromEnv creates a gateway from the CDSE_S3_ACCESS_KEY and
// CDSE_S3_SECRET_KEY environment variables.
func NewGatewayFromEnv() (*Gateway, error) {
	accessKey := os.Getenv("CDSE_S3_ACCESS_KEY")
	secretKey := os.Getenv("CDSE_S3_SECRET_KEY")
	if accessKey == "" || secretKey == "" {
		return nil, errors.Wrap(errors.ErrNoCredentials,
			"'CDSE_S3_ACCESS_KEY' and/or 'CDSE_S3_SECRET_KEY' environment variable does not exist or is empty")
	}
	return NewGateway(DefaultEndpoint, accessKey, secretKey, true)
}

// Download fetches the object at a product's S3Path (as reported by the
// catalogue, e.g. "/eodata/Sentinel-2/.../product.SAFE") into destDir and
// returns the local path.
func (g *Gateway) Download(ctx context.Context, s3Path, destDir string) (string, error) {
	bucket, key, err := SplitPath(s3Path)
	if err != nil {
		return "", err
	}

	localPath := filepath.Join(destDir, path.Base(key))
	logger.Debug("downloading from object store",
		logrus.Fields{"bucket": bucket, "key": key, "path": localPath})

	if err := g.client.FGetObject(ctx, bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return "", errors.Wrap(errors.ErrDownloadFailed, err.Error())
	}
	return localPath, nil
}

// SplitPath splits a catalogue S3Path into bucket and object key.
func SplitPath(s3Path string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(s3Path, "/")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.Wrapf(errors.ErrInvalidPath, "not a bucket/key path: %s", s3Path)
	}
	return parts[0], parts[1], nil
}
