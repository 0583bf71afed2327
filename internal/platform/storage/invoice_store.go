package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	domain "github.com/tarodan/api/internal/domain"
)

const (
	invoiceContentType       = "text/html; charset=utf-8"
	invoiceSignedURLExpiry   = 10 * time.Minute
	invoiceCacheControl      = "private, max-age=0, no-store"
	invoiceDispositionInline = "inline"
)

var errInvoiceBucketRequired = errors.New("storage: invoice bucket is required")

var invoiceTemplate = template.Must(template.New("invoice").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>Invoice {{.OrderNumber}}</title></head>
<body>
<h1>Tarodan invoice {{.OrderNumber}}</h1>
<table>
<tr><td>Order</td><td>{{.OrderID}}</td></tr>
<tr><td>Buyer</td><td>{{.BuyerID}}</td></tr>
<tr><td>Seller</td><td>{{.SellerID}}</td></tr>
<tr><td>Product</td><td>{{.ProductID}}</td></tr>
<tr><td>Paid</td><td>{{.PaidAt}}</td></tr>
<tr><td>Total</td><td>{{.Total}}</td></tr>
</table>
</body>
</html>
`))

type invoiceTemplateData struct {
	OrderID     string
	OrderNumber string
	BuyerID     string
	SellerID    string
	ProductID   string
	PaidAt      string
	Total       string
}

// InvoiceStore renders order invoices into Cloud Storage and serves signed
// download links. Rendering is write-once: an existing object is reused.
type InvoiceStore struct {
	client *gcs.Client
	urls   *Client
	bucket string
}

// NewInvoiceStore constructs an invoice store over the given bucket.
func NewInvoiceStore(client *gcs.Client, urls *Client, bucket string) (*InvoiceStore, error) {
	if client == nil {
		return nil, errors.New("storage: gcs client is required")
	}
	if urls == nil {
		return nil, errNoSigner
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvoiceBucketRequired
	}
	return &InvoiceStore{client: client, urls: urls, bucket: bucket}, nil
}

// EnsureInvoice renders and stores the invoice document for the order,
// returning the object path. An already-rendered invoice is left untouched.
func (s *InvoiceStore) EnsureInvoice(ctx context.Context, order domain.Order) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("storage: invoice store not initialised")
	}

	objectPath, err := BuildObjectPath(PurposeInvoice, PathParams{
		OrderID:       order.ID,
		InvoiceNumber: order.OrderNumber,
	})
	if err != nil {
		return "", err
	}

	object := s.client.Bucket(s.bucket).Object(objectPath)
	if _, err := object.Attrs(ctx); err == nil {
		return objectPath, nil
	} else if !errors.Is(err, gcs.ErrObjectNotExist) {
		return "", fmt.Errorf("storage: stat invoice object: %w", err)
	}

	body, err := renderInvoice(order)
	if err != nil {
		return "", err
	}

	// DoesNotExist guards against a concurrent render of the same order.
	writer := object.If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = invoiceContentType
	writer.CacheControl = invoiceCacheControl
	if _, err := writer.Write(body); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage: write invoice object: %w", err)
	}
	if err := writer.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return objectPath, nil
		}
		return "", fmt.Errorf("storage: flush invoice object: %w", err)
	}
	return objectPath, nil
}

// SignedURL issues a short-lived download link for a stored invoice. Access
// control happens in the order service before this is called.
func (s *InvoiceStore) SignedURL(ctx context.Context, objectPath string) (string, error) {
	if s == nil || s.urls == nil {
		return "", errors.New("storage: invoice store not initialised")
	}
	objectPath = strings.TrimSpace(objectPath)
	if objectPath == "" {
		return "", errInvalidObject
	}

	result, err := s.urls.SignedURL(ctx, s.bucket, objectPath, SignedURLOptions{
		Download: &DownloadOptions{
			ExpiresIn:      invoiceSignedURLExpiry,
			Disposition:    invoiceDispositionInline,
			CacheControl:   invoiceCacheControl,
			ResponseType:   invoiceContentType,
			AllowAnonymous: true,
		},
	})
	if err != nil {
		return "", err
	}
	return result.URL, nil
}

func renderInvoice(order domain.Order) ([]byte, error) {
	paidAt := ""
	if order.PaidAt != nil {
		paidAt = order.PaidAt.UTC().Format("2006-01-02 15:04 UTC")
	}
	data := invoiceTemplateData{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		BuyerID:     order.BuyerID,
		SellerID:    order.SellerID,
		ProductID:   order.ProductID,
		PaidAt:      paidAt,
		Total:       formatMoney(order.Total),
	}
	var buf bytes.Buffer
	if err := invoiceTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("storage: render invoice: %w", err)
	}
	return buf.Bytes(), nil
}

func formatMoney(m domain.Money) string {
	major := m.Amount / 100
	minor := m.Amount % 100
	if minor < 0 {
		minor = -minor
	}
	return fmt.Sprintf("%d.%02d %s", major, minor, strings.ToUpper(m.Currency))
}
