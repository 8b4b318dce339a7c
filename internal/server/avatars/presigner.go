// Package avatars hands out presigned S3 upload URLs for profile pictures.
// The object key is chosen by the server; the client PUTs the image bytes
// directly to storage and then sets the returned picture URL on its account.
package avatars

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrDisabled is returned by a nil Presigner.
var ErrDisabled = errors.New("avatar uploads are disabled")

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
)

// Config describes the S3-compatible bucket avatars go to.
type Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	BaseEndpoint string
	// PublicBaseURL prefixes object keys to form the picture URL. Defaults
	// to BaseEndpoint/Bucket.
	PublicBaseURL string
	Expires       time.Duration
}

// Upload is a presigned upload slot.
type Upload struct {
	Key        string    `json:"key"`
	UploadURL  string    `json:"upload_url"`
	PictureURL string    `json:"picture_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type Presigner struct {
	cfg    Config
	client *s3.PresignClient
	now    func() time.Time
}

// New builds a Presigner. It returns (nil, nil) when no bucket is configured.
func New(ctx context.Context, cfg Config) (*Presigner, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}
	if cfg.Expires <= 0 {
		cfg.Expires = 15 * time.Minute
	}

	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = strings.TrimRight(cfg.BaseEndpoint, "/") + "/" + cfg.Bucket
	}

	return &Presigner{cfg: cfg, client: s3.NewPresignClient(client), now: time.Now}, nil
}

// PresignUpload reserves a fresh key under the user's prefix and presigns a
// PUT for it.
func (p *Presigner) PresignUpload(ctx context.Context, userID, contentType string) (*Upload, error) {
	if p == nil {
		return nil, ErrDisabled
	}

	key := fmt.Sprintf("avatars/%s/%s", userID, uuid.NewString())
	in := &s3.PutObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	req, err := presignPutObject(p.client, ctx, in, s3.WithPresignExpires(p.cfg.Expires))
	if err != nil {
		return nil, fmt.Errorf("presign put: %w", err)
	}

	return &Upload{
		Key:        key,
		UploadURL:  req.URL,
		PictureURL: strings.TrimRight(p.cfg.PublicBaseURL, "/") + "/" + key,
		ExpiresAt:  p.now().Add(p.cfg.Expires),
	}, nil
}
