package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"

	"github.com/tomisteven/cliente-natural-pets/internal/services"
)

const (
	ticketContentType       = "text/plain; charset=utf-8"
	defaultTicketLinkExpiry = 15 * time.Minute
	maxTicketLinkExpiry     = 7 * 24 * time.Hour
)

var (
	errInvalidBucket  = errors.New("storage: bucket name is required")
	errInvalidOrderID = errors.New("storage: order id is required")
	errExpiryTooLong  = errors.New("storage: link expiry exceeds permitted maximum")
)

// ObjectWriter uploads a finished object. The GCS client is used unless tests supply their own.
type ObjectWriter func(ctx context.Context, bucket, object, contentType string, body []byte) error

// TicketArchive keeps rendered order tickets in a Cloud Storage bucket.
type TicketArchive struct {
	bucket string
	write  ObjectWriter
	signer Signer
	expiry time.Duration
	now    func() time.Time
}

var _ services.TicketArchive = (*TicketArchive)(nil)

// TicketArchiveOption customises archive behaviour.
type TicketArchiveOption func(*TicketArchive)

// WithSignedLinks makes ArchiveTicket return a time limited download URL instead of a gs:// URI.
func WithSignedLinks(signer Signer, expiry time.Duration) TicketArchiveOption {
	return func(a *TicketArchive) {
		a.signer = signer
		if expiry > 0 {
			a.expiry = expiry
		}
	}
}

// WithObjectWriter replaces the Cloud Storage upload.
func WithObjectWriter(writer ObjectWriter) TicketArchiveOption {
	return func(a *TicketArchive) {
		if writer != nil {
			a.write = writer
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) TicketArchiveOption {
	return func(a *TicketArchive) {
		if clock != nil {
			a.now = clock
		}
	}
}

// NewTicketArchive constructs an archive writing into bucket through client.
func NewTicketArchive(client *gcs.Client, bucket string, opts ...TicketArchiveOption) (*TicketArchive, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	archive := &TicketArchive{
		bucket: bucket,
		expiry: defaultTicketLinkExpiry,
		now:    time.Now,
	}
	if client != nil {
		archive.write = gcsWriter(client)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(archive)
		}
	}
	if archive.write == nil {
		return nil, errors.New("storage: client or object writer is required")
	}
	if archive.expiry > maxTicketLinkExpiry {
		return nil, errExpiryTooLong
	}
	return archive, nil
}

// ArchiveTicket uploads the ticket body and returns where it can be fetched from.
func (a *TicketArchive) ArchiveTicket(ctx context.Context, orderID string, body []byte) (string, error) {
	if a == nil || a.write == nil {
		return "", errors.New("storage: ticket archive not initialised")
	}
	now := a.now().UTC()
	object, err := TicketObjectPath(orderID, now)
	if err != nil {
		return "", err
	}
	if err := a.write(ctx, a.bucket, object, ticketContentType, body); err != nil {
		return "", fmt.Errorf("storage: write ticket %s: %w", object, err)
	}

	if a.signer == nil {
		return fmt.Sprintf("gs://%s/%s", a.bucket, object), nil
	}
	url, err := gcs.SignedURL(a.bucket, object, &gcs.SignedURLOptions{
		GoogleAccessID: a.signer.Email(),
		Method:         "GET",
		Expires:        now.Add(a.expiry),
		Scheme:         gcs.SigningSchemeV4,
		SignBytes: func(payload []byte) ([]byte, error) {
			return a.signer.SignBytes(ctx, payload)
		},
	})
	if err != nil {
		return "", fmt.Errorf("storage: sign ticket url: %w", err)
	}
	return url, nil
}

// TicketObjectPath places tickets under tickets/<year>/<month>/<order id>.txt.
func TicketObjectPath(orderID string, at time.Time) (string, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", errInvalidOrderID
	}
	if strings.ContainsAny(orderID, "/\\") || strings.Contains(orderID, "..") {
		return "", fmt.Errorf("storage: order id %q contains invalid path characters", orderID)
	}
	return fmt.Sprintf("tickets/%04d/%02d/%s.txt", at.Year(), int(at.Month()), orderID), nil
}

func gcsWriter(client *gcs.Client) ObjectWriter {
	return func(ctx context.Context, bucket, object, contentType string, body []byte) error {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = contentType
		if _, err := w.Write(body); err != nil {
			_ = w.Close()
			return err
		}
		return w.Close()
	}
}
