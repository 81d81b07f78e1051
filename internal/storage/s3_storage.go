package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"egharbari/api/internal/config"
	"egharbari/api/internal/utils"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// IAssetStorage is the external asset host. A stored object's key doubles as the
// image's publicId; its public URL is derived from the key.
type IAssetStorage interface {
	PresignUpload(ctx context.Context, folder, filename, contentType string) (uploadURL, publicID string, err error)
	PublicURL(publicID string) string
	Get(ctx context.Context, publicID string) ([]byte, string, error)
	Put(ctx context.Context, publicID string, data []byte, contentType string) error
	Delete(ctx context.Context, publicID string) error
}

// s3Storage implements IAssetStorage.
type s3Storage struct {
	cfg           *config.Config
	s3Client      *s3.Client
	presignClient *s3.PresignClient
}

// NewS3Storage creates a new S3 storage service.
func NewS3Storage(cfg *config.Config) (IAssetStorage, error) {
	awsCfg, err := aws_config.LoadDefaultConfig(context.TODO(),
		aws_config.WithRegion(cfg.AwsRegion),
		aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"", // session token
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg)
	presignClient := s3.NewPresignClient(s3Client)

	return &s3Storage{
		cfg:           cfg,
		s3Client:      s3Client,
		presignClient: presignClient,
	}, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// ObjectKey builds a unique key under folder, keeping only a sanitized base name of filename.
func ObjectKey(folder, filename string) string {
	base := unsafeFilenameChars.ReplaceAllString(path.Base(strings.ReplaceAll(filename, "\\", "/")), "_")
	if base == "" || base == "." || base == "_" {
		base = "image"
	}
	return fmt.Sprintf("uploads/%s/%s_%s", folder, uuid.NewString(), base)
}

// PublicURL maps an object key to the URL clients load it from.
func (s *s3Storage) PublicURL(publicID string) string {
	return JoinPublicURL(s.cfg.ImageBaseURL, s.cfg.AwsS3Bucket, s.cfg.AwsRegion, publicID)
}

// JoinPublicURL uses baseURL when set, otherwise the bucket's virtual-hosted S3 URL.
func JoinPublicURL(baseURL, bucket, region, key string) string {
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(key, "/")
}

// PresignUpload creates a pre-signed URL for uploading an object.
// It returns the URL and the generated S3 object key.
func (s *s3Storage) PresignUpload(ctx context.Context, folder, filename, contentType string) (string, string, error) {
	objectKey := ObjectKey(folder, filename)
	expiration := 15 * time.Minute

	presignParams := &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.AwsS3Bucket),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	}

	presignedReq, err := s.presignClient.PresignPutObject(ctx, presignParams, s3.WithPresignExpires(expiration))
	if err != nil {
		return "", "", fmt.Errorf("failed to generate presigned PUT URL for key %s: %w", objectKey, err)
	}

	utils.Logger.Debugf("Generated presigned URL for key: %s", objectKey)
	return presignedReq.URL, objectKey, nil
}

// Get downloads an object, returning its bytes and content type.
func (s *s3Storage) Get(ctx context.Context, publicID string) ([]byte, string, error) {
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.AwsS3Bucket),
		Key:    aws.String(publicID),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, "", ErrObjectNotFound
		}
		return nil, "", fmt.Errorf("failed to get object %s: %w", publicID, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read object %s: %w", publicID, err)
	}
	return data, aws.ToString(out.ContentType), nil
}

// Put overwrites an object.
func (s *s3Storage) Put(ctx context.Context, publicID string, data []byte, contentType string) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.AwsS3Bucket),
		Key:         aws.String(publicID),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", publicID, err)
	}
	return nil
}

// Delete removes an object. Deleting a missing key is not an error on S3.
func (s *s3Storage) Delete(ctx context.Context, publicID string) error {
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.AwsS3Bucket),
		Key:    aws.String(publicID),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", publicID, err)
	}
	utils.Logger.Infof("Released asset %s", publicID)
	return nil
}
