package service

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/ourresearch/openalex-formatter/internal/core"
	"github.com/ourresearch/openalex-formatter/internal/upstream"
)

type recordedMetric struct {
	kind  string
	name  string
	value float64
	tags  map[string]string
}

// recordingSink captures every metric emitted through statsd.Sink.
type recordingSink struct {
	mu      sync.Mutex
	metrics []recordedMetric
}

func (s *recordingSink) record(kind, name string, value float64, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, recordedMetric{kind: kind, name: name, value: value, tags: maps.Clone(tags)})
}

func (s *recordingSink) Count(name string, value int64, tags map[string]string) {
	s.record("count", name, float64(value), tags)
}

func (s *recordingSink) Gauge(name string, value float64, tags map[string]string) {
	s.record("gauge", name, value, tags)
}

func (s *recordingSink) Timing(name string, value time.Duration, tags map[string]string) {
	s.record("timing", name, float64(value), tags)
}

func (s *recordingSink) countTotal(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, m := range s.metrics {
		if m.kind == "count" && m.name == name {
			total += int64(m.value)
		}
	}
	return total
}

func (s *recordingSink) lastTags(name string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.metrics) - 1; i >= 0; i-- {
		if s.metrics[i].name == name {
			return s.metrics[i].tags
		}
	}
	return nil
}

func (s *recordingSink) hasGauge(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.metrics {
		if m.kind == "gauge" && m.name == name {
			return true
		}
	}
	return false
}

// pagedFetcher serves a fixed record set by cursor offset.
type pagedFetcher struct {
	records []map[string]any
	err     error
	calls   int
}

func newPagedFetcher(n int) *pagedFetcher {
	recs := make([]map[string]any, n)
	for i := range recs {
		recs[i] = map[string]any{
			"id":           fmt.Sprintf("https://openalex.org/W%d", i+1),
			"display_name": fmt.Sprintf("Work %d", i+1),
		}
	}
	return &pagedFetcher{records: recs}
}

func (f *pagedFetcher) Fetch(_ context.Context, _ string, params url.Values) (*upstream.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	perPage, _ := strconv.Atoi(params.Get("per_page"))
	offset := 0
	if c := params.Get("cursor"); c != upstream.FirstCursor {
		offset, _ = strconv.Atoi(c)
	}
	end := min(offset+perPage, len(f.records))
	resp := &upstream.Response{
		Meta:    upstream.Meta{Count: int64(len(f.records))},
		Results: f.records[offset:end],
	}
	if end < len(f.records) {
		next := strconv.Itoa(end)
		resp.Meta.NextCursor = &next
	}
	return resp, nil
}

// memBlobStore keeps uploaded artifacts in memory.
type memBlobStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	putErr   error
	presigns []core.PresignParams
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (b *memBlobStore) Put(_ context.Context, params core.PutObjectParams) error {
	if b.putErr != nil {
		return b.putErr
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return err
	}
	if params.Size >= 0 && int64(len(body)) != params.Size {
		return fmt.Errorf("size mismatch: declared %d, read %d", params.Size, len(body))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[params.Key] = body
	b.types[params.Key] = params.ContentType
	return nil
}

func (b *memBlobStore) PresignGet(_ context.Context, params core.PresignParams) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presigns = append(b.presigns, params)
	return "https://blobs.example.org/" + params.Key + "?X-Amz-Signature=abc", nil
}

func (b *memBlobStore) object(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	body, ok := b.objects[key]
	return body, ok
}
