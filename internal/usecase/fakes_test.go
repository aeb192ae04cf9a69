package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fiapx/fiapx-video-extender/internal/domain/entity"
	"github.com/fiapx/fiapx-video-extender/internal/domain/port"
	"github.com/google/uuid"
)

type memRepo struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]entity.Job
	updates   []entity.Job
	updateErr error
}

func newMemRepo() *memRepo {
	return &memRepo{jobs: map[uuid.UUID]entity.Job{}}
}

func (r *memRepo) Create(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *memRepo) Update(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.jobs[job.ID]; !ok {
		return port.ErrJobNotFound
	}
	r.jobs[job.ID] = *job
	r.updates = append(r.updates, *job)
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, port.ErrJobNotFound
	}
	return &job, nil
}

func (r *memRepo) ListByUser(_ context.Context, userID string, limit int) ([]*entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Job
	for _, j := range r.jobs {
		if j.UserID == userID {
			j := j
			out = append(out, &j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) get(id uuid.UUID) entity.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id]
}

type memStorage struct {
	downloadErr error
	uploadErr   error
	frames      map[string][]byte
	results     map[string][]byte
	sources     map[string][]byte
	downloads   []string
}

func newMemStorage() *memStorage {
	return &memStorage{frames: map[string][]byte{}, results: map[string][]byte{}, sources: map[string][]byte{}}
}

func (s *memStorage) DownloadSource(_ context.Context, objectKey, destPath string) error {
	s.downloads = append(s.downloads, objectKey)
	if s.downloadErr != nil {
		return s.downloadErr
	}
	return os.WriteFile(destPath, []byte("video"), 0o644)
}

func (s *memStorage) UploadFrame(_ context.Context, objectKey string, data []byte, _ string) error {
	s.frames[objectKey] = data
	return nil
}

func (s *memStorage) UploadResult(_ context.Context, objectKey string, data []byte, _ string) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.results[objectKey] = data
	return nil
}

func (s *memStorage) UploadSource(_ context.Context, objectKey string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.sources[objectKey] = data
	return nil
}

func (s *memStorage) ResultURL(_ context.Context, objectKey string, ttl time.Duration) (string, error) {
	return "https://minio.local/extensions/" + objectKey + "?ttl=" + ttl.String(), nil
}

type fakeExtractor struct {
	err        error
	timestamps []float64
}

func (f *fakeExtractor) ExtractFrame(_ context.Context, _ string, ts float64) (entity.SourceFrame, error) {
	f.timestamps = append(f.timestamps, ts)
	if f.err != nil {
		return entity.SourceFrame{}, f.err
	}
	return entity.SourceFrame{Data: []byte("png"), MIMEType: "image/png", Width: 1, Height: 1}, nil
}

type fakeGenerator struct {
	submitErr error
	pollErr   error
	fetchErr  error
	progress  []string
	submitted []entity.GenerationRequest
	polled    []string
	fetched   *entity.GenerationJob
}

func (g *fakeGenerator) Submit(_ context.Context, req entity.GenerationRequest) (*entity.GenerationJob, error) {
	g.submitted = append(g.submitted, req)
	if g.submitErr != nil {
		return nil, g.submitErr
	}
	return &entity.GenerationJob{Name: "operations/abc"}, nil
}

func (g *fakeGenerator) PollUntilDone(_ context.Context, job *entity.GenerationJob, onProgress port.ProgressFunc) (*entity.GenerationJob, error) {
	g.polled = append(g.polled, job.Name)
	for _, msg := range g.progress {
		onProgress(msg)
	}
	if g.pollErr != nil {
		return nil, g.pollErr
	}
	return &entity.GenerationJob{Name: job.Name, Done: true, ResultLocator: "https://example/video.mp4"}, nil
}

func (g *fakeGenerator) FetchResult(_ context.Context, job *entity.GenerationJob) (*entity.MediaHandle, error) {
	g.fetched = job
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	return &entity.MediaHandle{Locator: job.ResultLocator, MIMEType: "video/mp4", Data: []byte("mp4")}, nil
}

type fakeCreds struct {
	selected    bool
	checkErr    error
	selectorErr error
	opened      int
	key         string
}

func (c *fakeCreds) HasSelectedCredential(context.Context) (bool, error) { return c.selected, c.checkErr }
func (c *fakeCreds) OpenCredentialSelector(context.Context) error {
	c.opened++
	c.selected = false
	return c.selectorErr
}
func (c *fakeCreds) APIKey(context.Context) (string, error) { return c.key, nil }
func (c *fakeCreds) SetAPIKey(_ context.Context, key string) error {
	c.key = key
	c.selected = true
	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	statuses []entity.ExtensionStatusMessage
	requests []entity.ExtensionRequestMessage
	dlq      []string
	err      error
}

func (p *recordingPublisher) PublishStatus(_ context.Context, msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var status entity.ExtensionStatusMessage
	if err := json.Unmarshal(msg, &status); err != nil {
		return err
	}
	p.statuses = append(p.statuses, status)
	return nil
}

func (p *recordingPublisher) PublishRequest(_ context.Context, msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	var req entity.ExtensionRequestMessage
	if err := json.Unmarshal(msg, &req); err != nil {
		return err
	}
	p.requests = append(p.requests, req)
	return nil
}

func (p *recordingPublisher) PublishToDLQ(_ context.Context, msg []byte, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dlq = append(p.dlq, reason)
	return nil
}

func (p *recordingPublisher) lastStatus() entity.ExtensionStatusMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statuses[len(p.statuses)-1]
}

type recordingNotifier struct {
	sent []string
}

func (n *recordingNotifier) NotifyFailure(_ context.Context, userEmail string, job *entity.Job) error {
	n.sent = append(n.sent, userEmail+":"+string(job.ErrorKind))
	return nil
}

var (
	errDatabaseDown = errors.New("database unavailable")
	errBrokerDown   = errors.New("broker unavailable")
)
