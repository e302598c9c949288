// Package webhooks posts item changes to the URLs configured on a product.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fluxr/fluxr/internal/db"
	"github.com/fluxr/fluxr/internal/domain"
)

const (
	defaultTimeout     = 500 * time.Millisecond
	defaultConcurrency = 4
)

// Payload is the webhook body for item changes.
type Payload struct {
	Event       string        `json:"event"`
	ItemID      string        `json:"item_id"`
	ItemUUID    string        `json:"item_uuid"`
	Kind        domain.Kind   `json:"kind"`
	ProductID   string        `json:"product_id"`
	ProductUUID string        `json:"product_uuid"`
	Status      domain.Status `json:"status"`
	Position    int           `json:"position"`
	ETag        int64         `json:"etag"`
}

// Dispatcher resolves a product's webhook URLs and posts payloads to them.
type Dispatcher struct {
	db          *db.DB
	client      *http.Client
	concurrency int
	log         logrus.FieldLogger
	wg          sync.WaitGroup
}

// NewDispatcher creates a dispatcher reading webhook URLs from database.
func NewDispatcher(database *db.DB, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{
		db:          database,
		client:      &http.Client{Timeout: defaultTimeout},
		concurrency: defaultConcurrency,
		log:         log.WithField("component", "webhooks"),
	}
}

// ItemChanged dispatches in the background. Failures are only logged.
func (d *Dispatcher) ItemChanged(ctx context.Context, event string, item domain.BoardItem) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Dispatch(context.WithoutCancel(ctx), event, item)
	}()
}

// Wait blocks until background dispatches finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Dispatch posts the item payload to every webhook of its product.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, item domain.BoardItem) {
	productID, raw, err := d.lookupProduct(ctx, item.ProductUUID)
	if err != nil {
		d.log.WithError(err).WithField("item", item.ID).Warn("resolve webhook targets failed")
		return
	}
	payload := Payload{
		Event:       event,
		ItemID:      item.ID,
		ItemUUID:    item.UUID,
		Kind:        item.EffectiveKind(),
		ProductID:   productID,
		ProductUUID: item.ProductUUID,
		Status:      item.Status,
		Position:    item.Position,
		ETag:        item.ETag,
	}
	d.dispatchURLs(ctx, NormalizeWebhookURLs(raw, payload, d.log), payload)
}

func (d *Dispatcher) lookupProduct(ctx context.Context, productUUID string) (string, []string, error) {
	p := domain.Product{}
	err := d.db.QueryRowContext(ctx, "SELECT id, webhook_urls FROM products WHERE uuid = ?", productUUID).Scan(&p.ID, &p.WebhookURLs)
	if err != nil {
		return "", nil, fmt.Errorf("lookup product %s: %w", productUUID, err)
	}
	urls, err := p.GetWebhookURLs()
	if err != nil {
		return "", nil, fmt.Errorf("parse webhook urls: %w", err)
	}
	return p.ID, urls, nil
}

// NormalizeWebhookURLs templates, validates and de-dupes webhook URLs.
// Invalid URLs are logged and skipped.
func NormalizeWebhookURLs(urls []string, payload Payload, log logrus.FieldLogger) []string {
	if len(urls) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(urls))
	var normalized []string

	for _, raw := range urls {
		templated := strings.TrimSpace(applyTemplate(strings.TrimSpace(raw), payload))
		templated = strings.TrimRight(templated, "/")
		if templated == "" {
			continue
		}
		if !IsValidWebhookURL(templated) {
			if log != nil {
				log.WithField("url", templated).Warn("skipping invalid webhook url")
			}
			continue
		}
		if _, ok := seen[templated]; ok {
			continue
		}
		seen[templated] = struct{}{}
		normalized = append(normalized, templated)
	}

	return normalized
}

func applyTemplate(raw string, payload Payload) string {
	result := strings.ReplaceAll(raw, "{item_id}", payload.ItemID)
	result = strings.ReplaceAll(result, "{product_id}", payload.ProductID)
	return result
}

// IsValidWebhookURL reports whether raw is an absolute http(s) URL.
func IsValidWebhookURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}

func (d *Dispatcher) dispatchURLs(ctx context.Context, urls []string, payload Payload) {
	if len(urls) == 0 {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		d.log.WithError(err).Error("encode webhook payload failed")
		return
	}

	workers := d.concurrency
	if len(urls) < workers {
		workers = len(urls)
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for endpoint := range jobs {
				d.send(ctx, endpoint, body)
			}
		}()
	}

	for _, endpoint := range urls {
		jobs <- endpoint
	}
	close(jobs)
	wg.Wait()
}

func (d *Dispatcher) send(ctx context.Context, endpoint string, body []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		d.log.WithError(err).WithField("url", endpoint).Warn("build webhook request failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.log.WithError(err).WithField("url", endpoint).Warn("webhook request failed")
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		d.log.WithFields(logrus.Fields{"url": endpoint, "status": resp.StatusCode}).Warn("webhook rejected")
	}
}
