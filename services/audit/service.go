package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/upb/search-gateway/models"
	"github.com/upb/search-gateway/repositories"
	"github.com/upb/search-gateway/services/search"
)

// AuditService writes search attempts to the attempt log in the background.
// Recording never blocks a search; when the buffer is full the attempt is
// dropped.
type AuditService struct {
	repo        repositories.AttemptRepository
	logger      *zap.Logger
	eventChan   chan *models.SearchAttempt
	workerCount int
	bufferSize  int
	batchSize   int
	writeTimeout time.Duration
	wg          sync.WaitGroup
	started     bool
	stopped     bool
	mu          sync.Mutex
	dropped     atomic.Int64
	written     atomic.Int64
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize   int // Size of the attempt buffer channel
	WorkerCount  int // Number of concurrent workers
	BatchSize    int // Most attempts written per transaction
	WriteTimeout time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:   1000,
		WorkerCount:  2,
		BatchSize:    20,
		WriteTimeout: 5 * time.Second,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repositories.AttemptRepository, logger *zap.Logger, config Config) *AuditService {
	defaults := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AuditService{
		repo:         repo,
		logger:       logger,
		eventChan:    make(chan *models.SearchAttempt, config.BufferSize),
		workerCount:  config.WorkerCount,
		bufferSize:   config.BufferSize,
		batchSize:    config.BatchSize,
		writeTimeout: config.WriteTimeout,
	}
}

var _ search.AttemptRecorder = (*AuditService)(nil)

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("attempt log already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started attempt log",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop closes the buffer and waits for pending attempts to be written
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("attempt log not running")
	}
	s.stopped = true
	s.logger.Info("stopping attempt log", zap.Int("pending_attempts", len(s.eventChan)))
	close(s.eventChan)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("attempt log stopped gracefully", zap.Int64("written", s.written.Load()))
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("attempt log stop timeout after %v", timeout)
	}
}

// RecordAttempt queues one attempt for writing
func (s *AuditService) RecordAttempt(ctx context.Context, attempt search.Attempt) {
	if err := s.Enqueue(FromAttempt(attempt)); err != nil {
		s.logger.Debug("search attempt not logged",
			zap.String("request_id", attempt.RequestID),
			zap.String("engine", string(attempt.Engine)),
			zap.Error(err))
	}
}

// Enqueue queues a row without blocking
func (s *AuditService) Enqueue(row *models.SearchAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return fmt.Errorf("attempt log not running")
	}

	select {
	case s.eventChan <- row:
		return nil
	default:
		s.dropped.Add(1)
		s.logger.Warn("attempt log buffer full, dropping attempt",
			zap.String("request_id", row.RequestID),
			zap.String("engine", row.Engine))
		return fmt.Errorf("attempt log buffer full")
	}
}

// FromAttempt converts an orchestrator attempt into a log row
func FromAttempt(a search.Attempt) *models.SearchAttempt {
	return models.NewSearchAttempt(a.RequestID, string(a.Engine), string(a.IntentType), a.Outcome).
		WithTiming(a.StartedAt, a.Latency).
		WithResults(a.ResultCount).
		WithForced(a.Forced)
}

func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("attempt log worker started", zap.Int("worker_id", id))

	batch := make([]*models.SearchAttempt, 0, s.batchSize)
	for row := range s.eventChan {
		batch = append(batch[:0], row)
	drain:
		for len(batch) < s.batchSize {
			select {
			case next, ok := <-s.eventChan:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}

		if err := s.write(batch); err != nil {
			s.logger.Error("failed to write search attempts",
				zap.Int("worker_id", id),
				zap.Int("count", len(batch)),
				zap.Error(err))
		}
	}

	s.logger.Debug("attempt log worker stopped", zap.Int("worker_id", id))
}

func (s *AuditService) write(batch []*models.SearchAttempt) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	var err error
	if len(batch) == 1 {
		err = s.repo.Insert(ctx, batch[0])
	} else {
		err = s.repo.InsertBatch(ctx, batch)
	}
	if err != nil {
		return err
	}
	s.written.Add(int64(len(batch)))
	return nil
}

// GetStats returns statistics about the attempt log
func (s *AuditService) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:      s.bufferSize,
		PendingAttempts: len(s.eventChan),
		WorkerCount:     s.workerCount,
		Started:         s.started && !s.stopped,
		Written:         s.written.Load(),
		Dropped:         s.dropped.Load(),
	}
}

// Stats represents attempt log statistics
type Stats struct {
	BufferSize      int   `json:"buffer_size"`
	PendingAttempts int   `json:"pending_attempts"`
	WorkerCount     int   `json:"worker_count"`
	Started         bool  `json:"started"`
	Written         int64 `json:"written"`
	Dropped         int64 `json:"dropped"`
}
