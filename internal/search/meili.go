package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"
)

const idxQuestions = "sheet_questions"

var errUnhealthy = errors.New("meilisearch unhealthy")

// Meili indexes questions in Meilisearch and tracks whether it is reachable.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
	log     zerolog.Logger
}

// NewMeili connects to Meilisearch and configures the question index. An
// unreachable server is not an error: the client stays unhealthy until the
// background health check sees it come up.
func NewMeili(url, apiKey string, log zerolog.Logger) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
		log:    log.With().Str("component", "meili").Logger(),
	}

	if _, err := m.client.Health(); err != nil {
		m.log.Warn().Err(err).Str("url", url).Msg("search: meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxQuestions,
		PrimaryKey: "id",
	}); err != nil {
		m.log.Debug().Err(err).Msg("search: create index (may already exist)")
	}

	index := m.client.Index(idxQuestions)
	filterable := []interface{}{"difficulty", "isSolved", "topicId", "subTopicId"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.Warn().Err(err).Msg("search: update filterable attributes")
	}
	searchable := []string{"title", "subTopicName", "topicName"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Warn().Err(err).Msg("search: update searchable attributes")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info().Msg("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search returns the ids of matching questions, best match first.
func (m *Meili) Search(q Query) ([]string, error) {
	if !m.healthy.Load() {
		return nil, errUnhealthy
	}
	limit := int64(q.Limit)
	if limit <= 0 {
		limit = 1000
	}
	req := &meili.SearchRequest{
		IndexUID:             idxQuestions,
		Query:                q.text(),
		Limit:                limit,
		AttributesToRetrieve: []string{"id"},
	}
	if diff, ok := q.difficulty(); ok {
		req.Filter = fmt.Sprintf("difficulty = %q", string(diff))
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{req},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var ids []string
	for _, result := range resp.Results {
		for _, hit := range result.Hits {
			if id := decodeString(hit, "id"); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// ReplaceQuestions upserts records and removes the stale ids.
func (m *Meili) ReplaceQuestions(records []QuestionRecord, stale []string) error {
	index := m.client.Index(idxQuestions)
	if len(records) > 0 {
		if _, err := index.AddDocuments(records, nil); err != nil {
			return fmt.Errorf("index questions: %w", err)
		}
	}
	for _, id := range stale {
		if _, err := index.DeleteDocument(id, nil); err != nil {
			return fmt.Errorf("delete question %s: %w", id, err)
		}
	}
	return nil
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
