package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nkrylov/cipherchat/internal/models"
	sc "github.com/nkrylov/cipherchat/internal/server/config"
	"github.com/nkrylov/cipherchat/internal/server/repositories/repomanager"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// AttachmentService records attachment metadata and hands out presigned
// URLs. Blobs are already encrypted when they reach object storage; the
// bucket never holds anything the server could read.
type AttachmentService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
}

func NewAttachmentService(db *sql.DB, m repomanager.RepositoryManager, config *sc.Config) *AttachmentService {
	return &AttachmentService{db: db, repomanager: m, config: config}
}

func getRandomStorageKey() string {
	d := time.Now()
	return fmt.Sprintf("attachments/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *AttachmentService) getPresignClient() (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
	})

	return newS3PresignClient(client), nil
}

// PresignUpload creates the attachment record and returns its id plus a
// presigned PUT URL valid for 15 minutes.
func (s *AttachmentService) PresignUpload(ctx context.Context, uploaderID, conversationID, fileName string, size int64) (*models.Attachment, string, error) {
	presignClient, err := s.getPresignClient()
	if err != nil {
		return nil, "", err
	}

	bucket := s.config.S3Bucket
	key := getRandomStorageKey()

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return nil, "", err
	}

	record, err := s.repomanager.Attachments(s.db).Create(ctx, &models.Attachment{
		ConversationID: conversationID,
		SenderID:       uploaderID,
		FileName:       fileName,
		Size:           size,
		StorageKey:     key,
	})
	if err != nil {
		return nil, "", err
	}

	return record, req.URL, nil
}

// PresignDownload returns a presigned GET URL for a stored attachment.
func (s *AttachmentService) PresignDownload(ctx context.Context, attachmentID string) (string, error) {
	record, err := s.repomanager.Attachments(s.db).Get(ctx, attachmentID)
	if err != nil {
		return "", err
	}

	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket

	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &record.StorageKey,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}
