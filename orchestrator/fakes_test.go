package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tnqbao/gau-ml-service/entity"
	"github.com/tnqbao/gau-ml-service/infra"
	"github.com/tnqbao/gau-ml-service/infra/produce"
)

type memoryStore struct {
	mu        sync.Mutex
	nextID    uint
	models    map[uint]*entity.ModelRecord
	deleteErr error
	// deleteNoop makes Delete report that nothing was removed.
	deleteNoop bool
	markErr    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{models: map[uint]*entity.ModelRecord{}}
}

func (s *memoryStore) put(m entity.ModelRecord) *entity.ModelRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == 0 {
		s.nextID++
		m.ID = s.nextID
	} else if m.ID > s.nextID {
		s.nextID = m.ID
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Date(2024, 1, 1, 0, 0, int(m.ID), 0, time.UTC)
	}
	s.models[m.ID] = &m
	cp := m
	return &cp
}

func (s *memoryStore) get(id uint) (entity.ModelRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[id]
	if !ok {
		return entity.ModelRecord{}, false
	}
	return *m, true
}

func (s *memoryStore) Create(_ context.Context, ownerID uint, labelCount int, sub entity.Submission) (*entity.ModelRecord, error) {
	if labelCount <= 0 {
		return nil, errors.New("label count must be positive")
	}
	return s.put(entity.ModelRecord{
		OwnerID:     ownerID,
		Status:      entity.ModelStatusPending,
		LabelCount:  labelCount,
		DatasetRef:  sub.DatasetRef,
		TextColumn:  sub.TextColumn,
		LabelColumn: sub.LabelColumn,
	}), nil
}

func (s *memoryStore) GetByID(_ context.Context, id uint) (*entity.ModelRecord, error) {
	m, ok := s.get(id)
	if !ok {
		return nil, ErrModelNotFound
	}
	return &m, nil
}

func (s *memoryStore) GetLatestByOwner(ctx context.Context, ownerID uint) (*entity.ModelRecord, error) {
	models, _ := s.ListByOwner(ctx, ownerID)
	if len(models) == 0 {
		return nil, ErrModelNotFound
	}
	return &models[0], nil
}

func (s *memoryStore) ListByOwner(_ context.Context, ownerID uint) ([]entity.ModelRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.ModelRecord
	for _, m := range s.models {
		if m.OwnerID == ownerID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memoryStore) SetRemoteJobID(_ context.Context, id uint, remoteJobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[id]
	if !ok {
		return false, nil
	}
	m.RemoteJobID = remoteJobID
	return true, nil
}

func (s *memoryStore) MarkSubmitted(_ context.Context, id uint, remoteJobID string) (*entity.ModelRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return nil, s.markErr
	}
	m, ok := s.models[id]
	if !ok {
		return nil, ErrModelNotFound
	}
	if m.Status != entity.ModelStatusPending {
		return nil, ErrInvalidTransition
	}
	m.RemoteJobID = remoteJobID
	m.Status = entity.ModelStatusTraining
	cp := *m
	return &cp, nil
}

func (s *memoryStore) UpdateStatus(_ context.Context, id uint, status entity.ModelStatus, metrics *entity.Metrics) (*entity.ModelRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[id]
	if !ok {
		return nil, ErrModelNotFound
	}
	if !m.Status.CanTransitionTo(status) {
		return nil, ErrInvalidTransition
	}
	m.Status = status
	m.EvalAccuracy, m.EvalF1, m.EvalLoss = nil, nil, nil
	if status == entity.ModelStatusTrained && metrics != nil {
		m.EvalAccuracy, m.EvalF1, m.EvalLoss = metrics.Accuracy, metrics.F1, metrics.Loss
	}
	cp := *m
	return &cp, nil
}

func (s *memoryStore) Delete(_ context.Context, id uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return false, s.deleteErr
	}
	if s.deleteNoop {
		return false, nil
	}
	if _, ok := s.models[id]; !ok {
		return false, nil
	}
	delete(s.models, id)
	return true, nil
}

type submitCall struct {
	Kind     infra.EndpointKind
	OwnerKey string
	RecordID uint
	Input    json.RawMessage
}

type pollCall struct {
	Kind     infra.EndpointKind
	RemoteID string
}

type fakeCompute struct {
	mu          sync.Mutex
	submits     []submitCall
	polls       []pollCall
	submitID    string
	submitRaw   string
	submitErr   error
	pollRaw     string
	pollErr     error
	correlation string
}

func (c *fakeCompute) Submit(_ context.Context, kind infra.EndpointKind, ownerKey string, recordID uint, input interface{}) (*infra.SubmitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	body, _ := json.Marshal(input)
	c.submits = append(c.submits, submitCall{Kind: kind, OwnerKey: ownerKey, RecordID: recordID, Input: body})
	if c.submitErr != nil {
		return nil, c.submitErr
	}
	raw := c.submitRaw
	if raw == "" {
		raw = `{"id":"` + c.submitID + `","status":"IN_QUEUE"}`
	}
	corr := c.correlation
	if corr == "" {
		corr = "job-test"
	}
	return &infra.SubmitResult{CorrelationID: corr, RemoteID: c.submitID, Raw: json.RawMessage(raw)}, nil
}

func (c *fakeCompute) Poll(_ context.Context, kind infra.EndpointKind, remoteID string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls = append(c.polls, pollCall{Kind: kind, RemoteID: remoteID})
	if c.pollErr != nil {
		return nil, c.pollErr
	}
	return json.RawMessage(c.pollRaw), nil
}

func (c *fakeCompute) calls() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.submits), len(c.polls)
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []produce.ModelEventMessage
	err      error
}

func (p *recordingPublisher) PublishModelEvent(_ context.Context, msg produce.ModelEventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return p.err
}

func (p *recordingPublisher) reasons() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.messages))
	for _, m := range p.messages {
		out = append(out, m.Reason)
	}
	return out
}

type memoryHistory struct {
	events []entity.ModelEvent
}

func (h *memoryHistory) ListByModel(_ context.Context, modelID, ownerID uint, limit int) ([]entity.ModelEvent, error) {
	var out []entity.ModelEvent
	for _, e := range h.events {
		if e.ModelID == modelID && e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type mapCache struct {
	entries map[string]json.RawMessage
	sets    int
}

func (c *mapCache) Get(_ context.Context, kind infra.EndpointKind, remoteID string) (json.RawMessage, bool) {
	raw, ok := c.entries[string(kind)+"/"+remoteID]
	return raw, ok
}

func (c *mapCache) Set(_ context.Context, kind infra.EndpointKind, remoteID string, raw json.RawMessage) {
	if c.entries == nil {
		c.entries = map[string]json.RawMessage{}
	}
	c.entries[string(kind)+"/"+remoteID] = raw
	c.sets++
}

func floatPtr(v float64) *float64 {
	return &v
}
