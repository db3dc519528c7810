// internal/workers/marketplace/index-listing/handler.go
package indexlisting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"marketplace-workers/internal/common/logger"
	"marketplace-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/elastic/go-elasticsearch/v8"
)

const (
	TaskType = "index-listing"

	ActionIndexed = "indexed"
	ActionRemoved = "removed"
)

// DocumentStore abstracts the search index writes so the handler can be
// tested without a live cluster.
type DocumentStore interface {
	Index(ctx context.Context, index, id string, body []byte) error
	Delete(ctx context.Context, index, id string) error
}

type Handler struct {
	config *Config
	store  DocumentStore
	logger logger.Logger
}

func NewHandler(config *Config, store DocumentStore, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		store:  store,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, fmt.Sprintf("parse input: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, err.Error())
		return
	}

	h.completeJob(client, job, output)
}

// execute keeps the index in step with visibility. Listings that are paused,
// sold, suspended or auto-blocked are removed; only visible listings are
// written.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	listing := &input.Listing
	if listing.ID == "" {
		return nil, fmt.Errorf("listing id required")
	}

	if !listing.Visible() {
		if err := h.store.Delete(ctx, h.config.Index, listing.ID); err != nil {
			return nil, fmt.Errorf("remove listing %s from index: %w", listing.ID, err)
		}
		h.logger.Info("listing removed from index", map[string]interface{}{
			"listingId": listing.ID,
			"status":    listing.Status,
		})
		return &Output{ListingID: listing.ID, Action: ActionRemoved}, nil
	}

	body, err := json.Marshal(buildDocument(listing))
	if err != nil {
		return nil, fmt.Errorf("marshal listing document: %w", err)
	}

	if err := h.store.Index(ctx, h.config.Index, listing.ID, body); err != nil {
		return nil, fmt.Errorf("index listing %s: %w", listing.ID, err)
	}

	h.logger.Info("listing indexed", map[string]interface{}{
		"listingId":    listing.ID,
		"rankingScore": listing.RankingScore,
	})

	return &Output{ListingID: listing.ID, Action: ActionIndexed}, nil
}

func buildDocument(l *models.MarketplaceListing) *listingDocument {
	doc := &listingDocument{
		ID:           l.ID,
		World:        l.World,
		Category:     l.Category,
		Subcategory:  l.Subcategory,
		Title:        l.Title,
		Description:  l.Description,
		Brand:        l.Brand,
		Condition:    l.Condition,
		Price:        l.Price,
		Location:     l.Location,
		RankingScore: l.RankingScore,
		CanFeature:   l.CanFeature,
	}
	if !l.CreatedAt.IsZero() {
		doc.CreatedAt = l.CreatedAt.UTC().Format(time.RFC3339)
	}
	for k, v := range l.TechnicalSpecs {
		doc.Specs = append(doc.Specs, k+": "+v)
	}
	sort.Strings(doc.Specs)
	return doc
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorMessage string) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorMessage": errorMessage,
	})

	_, err := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(job.Retries - 1).
		ErrorMessage(errorMessage).
		Send(context.Background())
	if err != nil {
		h.logger.Error("failed to fail job", map[string]interface{}{
			"error": err,
		})
	}
}

// Execute exposes the indexing path for direct invocation in tests.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

// ESStore adapts the Elasticsearch client to the DocumentStore interface.
type ESStore struct {
	client *elasticsearch.Client
}

func NewESStore(client *elasticsearch.Client) *ESStore {
	return &ESStore{client: client}
}

func (s *ESStore) Index(ctx context.Context, index, id string, body []byte) error {
	res, err := s.client.Index(index, bytes.NewReader(body),
		s.client.Index.WithDocumentID(id),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithRefresh("false"),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	if res.IsError() {
		return fmt.Errorf("index response: %s", res.Status())
	}
	return nil
}

func (s *ESStore) Delete(ctx context.Context, index, id string) error {
	res, err := s.client.Delete(index, id,
		s.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	// 404 is fine, the listing was never indexed.
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete response: %s", res.Status())
	}
	return nil
}
