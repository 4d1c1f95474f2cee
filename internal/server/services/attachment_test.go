package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nkrylov/cipherchat/internal/dbx"
	"github.com/nkrylov/cipherchat/internal/models"
	"github.com/nkrylov/cipherchat/internal/server/config"
	attachmentsrepo "github.com/nkrylov/cipherchat/internal/server/repositories/attachments"
)

type fakeAttachmentsRepo struct {
	created *models.Attachment
	got     *models.Attachment
	err     error
}

func (f *fakeAttachmentsRepo) Create(ctx context.Context, a *models.Attachment) (*models.Attachment, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = a
	a.ID = "a-1"
	return a, nil
}
func (f *fakeAttachmentsRepo) Get(ctx context.Context, id string) (*models.Attachment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.got, nil
}

type fakeAttachRepoManager struct {
	fakeRepoManager
	a *fakeAttachmentsRepo
}

func (m *fakeAttachRepoManager) Attachments(db dbx.DBTX) attachmentsrepo.Repository {
	return m.a
}

func stubPresignSeams(t *testing.T, putURL, getURL string, presignErr error) {
	t.Helper()

	origLoad := loadDefaultAWSConfig
	origNewClient := newS3ClientFromConfig
	origNewPresign := newS3PresignClient
	origPut := presignPutObject
	origGet := presignGetObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewClient
		newS3PresignClient = origNewPresign
		presignPutObject = origPut
		presignGetObject = origGet
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return nil
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return nil
	}
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		if presignErr != nil {
			return nil, presignErr
		}
		return &v4.PresignedHTTPRequest{URL: putURL + *in.Key}, nil
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		if presignErr != nil {
			return nil, presignErr
		}
		return &v4.PresignedHTTPRequest{URL: getURL + *in.Key}, nil
	}
}

func newAttachmentService(t *testing.T, repo *fakeAttachmentsRepo) *AttachmentService {
	t.Helper()
	db, _ := newSQLMockDB(t)
	t.Cleanup(func() { db.Close() })

	rm := &fakeAttachRepoManager{a: repo}
	cfg := &config.Config{S3Bucket: "attachments", S3Region: "us-east-1"}
	return NewAttachmentService(db, rm, cfg)
}

func TestPresignUpload_Success(t *testing.T) {
	stubPresignSeams(t, "http://s3/put/", "http://s3/get/", nil)

	repo := &fakeAttachmentsRepo{}
	svc := newAttachmentService(t, repo)

	record, url, err := svc.PresignUpload(context.Background(), "u-1", "c-1", "photo.bin", 1024)
	if err != nil {
		t.Fatalf("PresignUpload error: %v", err)
	}
	if record.ID != "a-1" || record.SenderID != "u-1" || record.Size != 1024 {
		t.Fatalf("unexpected record: %+v", record)
	}
	if !strings.HasPrefix(url, "http://s3/put/attachments/") {
		t.Fatalf("unexpected put url: %s", url)
	}
	if repo.created.StorageKey == "" {
		t.Fatalf("storage key not assigned")
	}
}

func TestPresignUpload_PresignError(t *testing.T) {
	stubPresignSeams(t, "", "", errors.New("presign down"))

	svc := newAttachmentService(t, &fakeAttachmentsRepo{})

	if _, _, err := svc.PresignUpload(context.Background(), "u-1", "c-1", "f", 1); err == nil {
		t.Fatal("expected presign error")
	}
}

func TestPresignDownload_UsesStoredKey(t *testing.T) {
	stubPresignSeams(t, "http://s3/put/", "http://s3/get/", nil)

	repo := &fakeAttachmentsRepo{
		got: &models.Attachment{ID: "a-1", StorageKey: "attachments/2026/1/1/key"},
	}
	svc := newAttachmentService(t, repo)

	url, err := svc.PresignDownload(context.Background(), "a-1")
	if err != nil {
		t.Fatalf("PresignDownload error: %v", err)
	}
	if url != "http://s3/get/attachments/2026/1/1/key" {
		t.Fatalf("unexpected get url: %s", url)
	}
}
