// Package imports turns uploaded CSV files into lead batches. The raw file
// is kept in object storage so a bad import can be audited after the fact.
package imports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"leadengine/internal/leads/domain"
	"leadengine/platform/apperr"
	"leadengine/platform/config"
	"leadengine/platform/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const maxImportRows = 10000

// columnAliases maps accepted CSV header spellings onto lead fields.
// Headers are matched case-insensitively with surrounding space ignored.
var columnAliases = map[string]string{
	"mobile":        "mobile_no",
	"mobile_no":     "mobile_no",
	"phone":         "mobile_no",
	"alt_mobile":    "alt_mobile_no",
	"alt_mobile_no": "alt_mobile_no",
	"email":         "email",
	"alt_email":     "alt_email",
	"name":          "name",
	"subject":       "subject",
	"message":       "message",
	"state":         "state",
	"district":      "district",
	"station":       "station",
	"pincode":       "pincode",
	"pin":           "pincode",
	"source":        "source",
	"agency":        "agency_name",
	"agency_name":   "agency_name",
}

// Service parses CSV uploads and archives the raw bytes.
type Service struct {
	store  *minio.Client
	bucket string
	log    *logger.Logger
}

func New(cfg config.StorageConfig, log *logger.Logger) (*Service, error) {
	client, err := minio.New(cfg.GetMinioEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinioAccessKey(), cfg.GetMinioSecretKey(), ""),
		Secure: cfg.GetMinioUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	return &Service{
		store:  client,
		bucket: cfg.GetMinioBucketImportFiles(),
		log:    log,
	}, nil
}

// EnsureBucket creates the import bucket when missing. Called once at startup.
func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.store.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check import bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.store.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create import bucket %s: %w", s.bucket, err)
	}
	return nil
}

// ParseAndArchive reads a CSV upload, archives the raw file and returns the
// parsed records. Rows with no usable cell at all are skipped silently;
// structural CSV errors reject the whole upload.
func (s *Service) ParseAndArchive(ctx context.Context, fileName string, upload io.Reader) ([]domain.LeadData, error) {
	raw, err := io.ReadAll(upload)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	records, err := Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	s.archive(ctx, fileName, raw)

	return records, nil
}

// archive is best-effort: a storage outage must not lose the import itself.
// A nil Service parses without archiving, for deployments without object
// storage configured.
func (s *Service) archive(ctx context.Context, fileName string, raw []byte) {
	if s == nil || s.store == nil {
		return
	}
	key := fmt.Sprintf("%s/%s", time.Now().UTC().Format("2006-01-02"), fileName)
	_, err := s.store.PutObject(ctx, s.bucket, key, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		s.log.SideEffectError("archive import file", err)
	}
}

// Parse decodes a lead CSV. The first row must be a header; unknown columns
// are ignored so exports from other systems import without trimming.
func Parse(r io.Reader) ([]domain.LeadData, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, apperr.Validation("empty import file")
	}
	if err != nil {
		return nil, apperr.Validation("unreadable CSV header")
	}

	fields := make([]string, len(header))
	known := 0
	for i, name := range header {
		if field, ok := columnAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
			fields[i] = field
			known++
		}
	}
	if known == 0 {
		return nil, apperr.Validation("no recognized columns in CSV header")
	}

	var records []domain.LeadData
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperr.Validation(fmt.Sprintf("malformed CSV row %d", len(records)+2))
		}

		record, empty := rowToRecord(fields, row)
		if empty {
			continue
		}
		records = append(records, record)

		if len(records) > maxImportRows {
			return nil, apperr.Validation(fmt.Sprintf("import exceeds %d rows", maxImportRows))
		}
	}

	return records, nil
}

func rowToRecord(fields, row []string) (domain.LeadData, bool) {
	var record domain.LeadData
	empty := true

	for i, value := range row {
		if i >= len(fields) || fields[i] == "" {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		empty = false

		switch fields[i] {
		case "mobile_no":
			record.MobileNo = value
		case "alt_mobile_no":
			record.AltMobileNo = value
		case "email":
			record.Email = value
		case "alt_email":
			record.AltEmail = value
		case "name":
			record.Name = value
		case "subject":
			record.Subject = value
		case "message":
			record.Message = value
		case "state":
			record.State = value
		case "district":
			record.District = value
		case "station":
			record.Station = value
		case "pincode":
			record.Pincode = value
		case "source":
			record.Source = value
		case "agency_name":
			record.AgencyName = value
		}
	}

	return record, empty
}
