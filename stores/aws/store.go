package aws

import (
	"bytes"
	"certificate-server/core"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const (
	templatePrefix = "templates/"
	issuancePrefix = "issuances/"
)

// objectAPI is the subset of the S3 client the store uses.
type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// s3Store keeps templates as templates/<id>.json and issuances as
// issuances/<template id>/<issuance id>.json.
type s3Store struct {
	s3Client objectAPI
	bucket   string
	// mu serializes issuance upserts issued through this process.
	mu sync.Mutex
}

// NewStore creates a new S3-based store. A non-empty endpoint targets an
// S3-compatible service such as MinIO with path-style addressing.
func NewStore(ctx context.Context, bucketName, endpoint string) (*s3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return newStore(s3Client, bucketName), nil
}

func newStore(client objectAPI, bucket string) *s3Store {
	return &s3Store{s3Client: client, bucket: bucket}
}

// objectKey sanitizes id to prevent path traversal. It should be a simple
// name, not a path.
func objectKey(prefix, id string) (string, error) {
	if id == "" || id == "." || id == ".." || path.Base(id) != id || strings.Contains(id, `\`) {
		return "", fmt.Errorf("%q: %w", id, core.ErrInvalidID)
	}
	return prefix + id + ".json", nil
}

func (s *s3Store) getJSON(ctx context.Context, key string, v any) error {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("object %s: %w", key, core.ErrNotFound)
		}
		return fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return json.Unmarshal(data, v)
}

func (s *s3Store) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

func (s *s3Store) deleteObject(ctx context.Context, key string) error {
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

func (s *s3Store) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		for _, object := range page.Contents {
			if object.Key != nil && strings.HasSuffix(*object.Key, ".json") {
				keys = append(keys, *object.Key)
			}
		}
	}
	return keys, nil
}

func (s *s3Store) List(ctx context.Context) ([]*core.Template, error) {
	keys, err := s.listKeys(ctx, templatePrefix)
	if err != nil {
		return nil, err
	}

	templates := make([]*core.Template, 0, len(keys))
	for _, key := range keys {
		var t core.Template
		if err := s.getJSON(ctx, key, &t); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("Failed to read template object, skipping")
			continue
		}
		templates = append(templates, &t)
	}
	sort.Slice(templates, func(i, j int) bool {
		if templates[i].CreatedAt.Equal(templates[j].CreatedAt) {
			return templates[i].ID > templates[j].ID
		}
		return templates[i].CreatedAt.After(templates[j].CreatedAt)
	})
	return templates, nil
}

func (s *s3Store) Get(ctx context.Context, id string) (*core.Template, error) {
	key, err := objectKey(templatePrefix, id)
	if err != nil {
		return nil, err
	}
	var t core.Template
	if err := s.getJSON(ctx, key, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *s3Store) Create(ctx context.Context, template *core.Template) (string, error) {
	stored := template.Clone()
	stored.ID = ulid.Make().String()
	now := time.Now().UTC()
	stored.CreatedAt, stored.UpdatedAt = now, now

	if err := s.putJSON(ctx, templatePrefix+stored.ID+".json", stored); err != nil {
		logrus.WithError(err).WithField("template_id", stored.ID).Error("Failed to create template")
		return "", err
	}
	logrus.WithField("template_id", stored.ID).Info("Template created successfully")
	return stored.ID, nil
}

func (s *s3Store) Update(ctx context.Context, template *core.Template) error {
	existing, err := s.Get(ctx, template.ID)
	if err != nil {
		return err
	}
	stored := template.Clone()
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now().UTC()

	if err := s.putJSON(ctx, templatePrefix+template.ID+".json", stored); err != nil {
		return err
	}
	logrus.WithField("template_id", template.ID).Info("Template updated successfully")
	return nil
}

func (s *s3Store) Delete(ctx context.Context, id string) error {
	// S3 deletes are idempotent, so existence is checked first.
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.deleteObject(ctx, templatePrefix+id+".json"); err != nil {
		return err
	}
	keys, err := s.listKeys(ctx, issuancePrefix+id+"/")
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.deleteObject(ctx, key); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("Failed to delete issuance of deleted template")
		}
	}
	logrus.WithField("template_id", id).Info("Template deleted successfully")
	return nil
}

func (s *s3Store) listIssuances(ctx context.Context, templateID string) ([]core.Issuance, error) {
	keys, err := s.listKeys(ctx, issuancePrefix+templateID+"/")
	if err != nil {
		return nil, err
	}
	issuances := make([]core.Issuance, 0, len(keys))
	for _, key := range keys {
		var issuance core.Issuance
		if err := s.getJSON(ctx, key, &issuance); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("Failed to read issuance object, skipping")
			continue
		}
		issuances = append(issuances, issuance)
	}
	return issuances, nil
}

func (s *s3Store) RecordIssuance(ctx context.Context, issuance *core.Issuance) error {
	if issuance.StudentID == "" {
		return fmt.Errorf("student id is required: %w", core.ErrInvalidID)
	}
	if _, err := s.Get(ctx, issuance.TemplateID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.listIssuances(ctx, issuance.TemplateID)
	if err != nil {
		return err
	}
	issuance.ID = ""
	for _, e := range existing {
		if e.StudentID == issuance.StudentID {
			issuance.ID = e.ID
			break
		}
	}
	if issuance.ID == "" {
		issuance.ID = ulid.Make().String()
	}
	if issuance.IssuedAt.IsZero() {
		issuance.IssuedAt = time.Now().UTC()
	}

	key := issuancePrefix + issuance.TemplateID + "/" + issuance.ID + ".json"
	if err := s.putJSON(ctx, key, issuance); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"issuance_id": issuance.ID, "template_id": issuance.TemplateID}).Info("Issuance recorded successfully")
	return nil
}

func (s *s3Store) ListIssuances(ctx context.Context, templateID string) ([]core.Issuance, error) {
	if _, err := objectKey(issuancePrefix, templateID); err != nil {
		return nil, err
	}
	issuances, err := s.listIssuances(ctx, templateID)
	if err != nil {
		return nil, err
	}
	sort.Slice(issuances, func(i, j int) bool {
		return issuances[i].IssuedAt.After(issuances[j].IssuedAt)
	})
	return issuances, nil
}

func (s *s3Store) DeleteIssuance(ctx context.Context, id string) error {
	if _, err := objectKey(issuancePrefix, id); err != nil {
		return err
	}
	keys, err := s.listKeys(ctx, issuancePrefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if strings.HasSuffix(key, "/"+id+".json") {
			if err := s.deleteObject(ctx, key); err != nil {
				return err
			}
			logrus.WithField("issuance_id", id).Info("Issuance deleted successfully")
			return nil
		}
	}
	return fmt.Errorf("issuance with id %s: %w", id, core.ErrNotFound)
}
