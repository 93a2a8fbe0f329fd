package checkout

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/poscore/internal/cart"
)

// BatchProcessor обрабатывает чекауты нескольких терминалов пакетами.
// Каждая корзина принадлежит своему терминалу, поэтому параллельные
// чекауты разных корзин безопасны; конфликт остатков разрешает
// атомарный AdjustStock в хранилище.
type BatchProcessor struct {
	orchestrator Orchestrator
	logger       *log.Entry

	batchSize      int
	flushTimeout   time.Duration
	maxParallelOps int

	jobCh  chan checkoutJob
	stopCh chan struct{}
	wg     sync.WaitGroup

	batch []checkoutJob
	mu    sync.Mutex
}

type checkoutJob struct {
	cart     *cart.Cart
	req      Request
	resultCh chan Result
}

// NewBatchProcessor создаёт новый батч-процессор.
func NewBatchProcessor(orchestrator Orchestrator, logger *log.Entry) *BatchProcessor {
	if logger == nil {
		logger = log.New().WithField("component", "checkout-batch")
	}

	return &BatchProcessor{
		orchestrator:   orchestrator,
		logger:         logger,
		batchSize:      10,
		flushTimeout:   100 * time.Millisecond,
		maxParallelOps: 8,
		jobCh:          make(chan checkoutJob, 100),
		stopCh:         make(chan struct{}),
	}
}

// Start запускает батч-процессор.
func (bp *BatchProcessor) Start(ctx context.Context) {
	bp.wg.Add(1)
	go bp.processBatch(ctx)
	bp.logger.Info("checkout batch processor started")
}

// Stop останавливает батч-процессор, дождавшись текущего батча.
func (bp *BatchProcessor) Stop() {
	close(bp.stopCh)
	bp.wg.Wait()
	bp.logger.Info("checkout batch processor stopped")
}

// Submit ставит checkout в очередь и возвращает канал результата.
// При переполненной очереди checkout выполняется синхронно.
func (bp *BatchProcessor) Submit(c *cart.Cart, req Request) <-chan Result {
	resultCh := make(chan Result, 1)
	job := checkoutJob{cart: c, req: req, resultCh: resultCh}

	select {
	case bp.jobCh <- job:
	default:
		bp.logger.Warn("checkout queue full, processing synchronously")
		resultCh <- bp.orchestrator.Checkout(c, req)
	}
	return resultCh
}

func (bp *BatchProcessor) processBatch(ctx context.Context) {
	defer bp.wg.Done()

	ticker := time.NewTicker(bp.flushTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			bp.flush()
			return
		case <-bp.stopCh:
			bp.flush()
			return
		case job := <-bp.jobCh:
			bp.mu.Lock()
			bp.batch = append(bp.batch, job)
			shouldFlush := len(bp.batch) >= bp.batchSize
			bp.mu.Unlock()

			if shouldFlush {
				bp.flush()
			}
		case <-ticker.C:
			bp.flush()
		}
	}
}

func (bp *BatchProcessor) flush() {
	bp.mu.Lock()
	batch := bp.batch
	bp.batch = nil
	bp.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	bp.logger.WithField("batch_size", len(batch)).Debug("processing checkout batch")

	bp.processInParallel(len(batch), func(index int) {
		job := batch[index]
		job.resultCh <- bp.orchestrator.Checkout(job.cart, job.req)
	})
}

func (bp *BatchProcessor) processInParallel(size int, processFn func(index int)) {
	if size == 0 {
		return
	}

	limit := bp.maxParallelOps
	if limit <= 0 {
		limit = 1
	}
	if limit > size {
		limit = size
	}

	semaphore := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for idx := 0; idx < size; idx++ {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(index int) {
			defer wg.Done()
			defer func() { <-semaphore }()
			processFn(index)
		}(idx)
	}

	wg.Wait()
}
