package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

const defaultLoggerName = "entry-credits"

const JobIDOutboxDispatch = "entry_credits.outbox.dispatch"

type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	unitOfWork      UnitOfWork
	jobEnqueuer     JobEnqueuer
	now             func() time.Time
	sleep           func(ctx context.Context, delay time.Duration) error
}

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorFactory    ErrorFactory
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	UnitOfWork      UnitOfWork
	JobEnqueuer     JobEnqueuer
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve(defaultLoggerName, builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger(defaultLoggerName); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = utcNow
	}
	if builder.sleep == nil {
		builder.sleep = sleepContext
	}
	if builder.unitOfWork == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: unit of work is required"))
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		unitOfWork:      builder.unitOfWork,
		jobEnqueuer:     builder.jobEnqueuer,
		now:             builder.clock,
		sleep:           builder.sleep,
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorFactory:    s.errorFactory,
		ErrorMapper:     s.errorMapper,
		ConfigProvider:  s.configProvider,
		OptionsResolver: s.optionsResolver,
		UnitOfWork:      s.unitOfWork,
		JobEnqueuer:     s.jobEnqueuer,
	}
}

// Ingest runs one order through the pipeline inside its own unit of work.
// Contention is retried as a whole; a lost race on the order key resolves to
// ALREADY_PROCESSED.
func (s *Service) Ingest(ctx context.Context, order OrderNotification) (result IngestResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"external_order_id": order.ExternalOrderID,
		"external_source":   order.ExternalSource,
		"competition_id":    order.CompetitionID,
	}
	defer func() {
		fields["outcome"] = string(result.Outcome)
		if result.EntrantID != "" {
			fields["entrant_id"] = result.EntrantID
		}
		s.observeOperation(ctx, startedAt, "ingest", err, fields)
	}()

	if s == nil || s.unitOfWork == nil {
		return IngestResult{}, fmt.Errorf("core: service is not configured")
	}
	if order.Key().IsZero() {
		err = s.mapError(fmt.Errorf("core: external order id and source are required"))
		return IngestResult{}, err
	}

	var attempts int
	result, attempts, err = s.runWithRetry(ctx, func(ctx context.Context) (IngestResult, error) {
		var inTx IngestResult
		txErr := s.unitOfWork.RunInTx(ctx, func(ctx context.Context, stores Stores) error {
			r, ingestErr := s.IngestInTx(ctx, stores, order)
			if ingestErr != nil {
				return ingestErr
			}
			inTx = r
			return nil
		})
		return inTx, txErr
	})
	fields["attempts"] = attempts

	if errors.Is(err, ErrDuplicateOrder) {
		result, err = s.lookupAlreadyProcessed(ctx, order.Key())
	}
	if err != nil {
		if IsTransient(err) {
			err = NewTransientError(err)
		}
		err = s.mapError(err)
		return IngestResult{}, err
	}

	if result.Outcome != IngestOutcomeAlreadyProcessed {
		s.requestOutboxDispatch(ctx, order.Key())
	}
	return result, nil
}

// IngestInTx runs the pipeline against stores bound to an already open
// transaction. The caller owns commit and rollback.
func (s *Service) IngestInTx(ctx context.Context, stores Stores, order OrderNotification) (IngestResult, error) {
	if stores == nil {
		return IngestResult{}, fmt.Errorf("core: stores are required")
	}
	key := order.Key()
	if key.IsZero() {
		return IngestResult{}, fmt.Errorf("core: external order id and source are required")
	}
	if order.Quantity <= 0 {
		return IngestResult{}, fmt.Errorf("core: quantity must be positive")
	}

	detector := NewDuplicateDetector(stores.Credits(), stores.PendingOrders(), stores.Claims())
	detector.now = s.clock()
	check, err := detector.Check(ctx, key)
	if err != nil {
		return IngestResult{}, err
	}
	if check.Found {
		return AlreadyProcessed(check.EntrantID), nil
	}

	competition, err := stores.Catalog().GetCompetition(ctx, order.CompetitionID)
	if err != nil {
		return IngestResult{}, err
	}

	entrant, err := resolveEntrant(ctx, stores.Entrants(), order.Customer)
	if err != nil {
		return IngestResult{}, err
	}
	if err := stores.Locker().LockEntrant(ctx, entrant.ID); err != nil {
		return IngestResult{}, err
	}

	decision, err := NewExclusivityEngine(stores.Credits(), stores.Catalog()).Evaluate(ctx, entrant.ID, competition)
	if err != nil {
		return IngestResult{}, err
	}

	if decision.Violated {
		queue := NewReviewQueue(stores.PendingOrders(), stores.Outbox())
		queue.now = s.clock()
		pending, err := queue.Enqueue(ctx, order, entrant, decision.Reason)
		if err != nil {
			return IngestResult{}, err
		}
		if err := detector.Claim(ctx, key, ClaimOutcomeQueuedForReview, entrant.ID); err != nil {
			return IngestResult{}, err
		}
		return PendingReview(entrant.ID, pending), nil
	}

	credit, err := NewCreditLedger(stores.Credits(), stores.Outbox()).Issue(ctx, IssueCreditInput{
		Entrant:       entrant,
		CompetitionID: competition.ID,
		Quantity:      order.Quantity,
		Key:           key,
		PurchasedAt:   order.PurchasedAt,
	})
	if err != nil {
		return IngestResult{}, err
	}
	if err := detector.Claim(ctx, key, ClaimOutcomeCredited, entrant.ID); err != nil {
		return IngestResult{}, err
	}
	return Processed(entrant.ID, credit), nil
}

func resolveEntrant(ctx context.Context, directory EntrantDirectory, customer Customer) (Entrant, error) {
	if directory == nil {
		return Entrant{}, fmt.Errorf("core: entrant directory is required")
	}
	email := NormalizeEmail(customer.Email)
	if email == "" {
		return Entrant{}, fmt.Errorf("core: customer email is required")
	}
	entrant, found, err := directory.FindByEmail(ctx, email)
	if err != nil {
		return Entrant{}, err
	}
	if found {
		return entrant, nil
	}
	return directory.Create(ctx, CreateEntrantInput{
		Email:   email,
		Name:    strings.TrimSpace(customer.Name),
		Phone:   strings.TrimSpace(customer.Phone),
		Address: customer.Address,
	})
}

func (s *Service) lookupAlreadyProcessed(ctx context.Context, key OrderKey) (IngestResult, error) {
	var result IngestResult
	err := s.unitOfWork.RunInTx(ctx, func(ctx context.Context, stores Stores) error {
		check, err := NewDuplicateDetector(stores.Credits(), stores.PendingOrders(), stores.Claims()).Check(ctx, key)
		if err != nil {
			return err
		}
		result = AlreadyProcessed(check.EntrantID)
		return nil
	})
	if err != nil {
		return IngestResult{}, err
	}
	return result, nil
}

func (s *Service) runWithRetry(
	ctx context.Context,
	fn func(ctx context.Context) (IngestResult, error),
) (IngestResult, int, error) {
	maxAttempts := s.config.Ingest.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	backoff := s.config.Ingest.RetryBackoff()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == maxAttempts {
			return IngestResult{}, attempt, err
		}
		s.logWithLevel(ctx, "warn", "ingest attempt hit contention, retrying", map[string]any{
			"attempt": attempt,
			"error":   err.Error(),
		})
		if sleepErr := s.sleep(ctx, backoff*time.Duration(attempt)); sleepErr != nil {
			return IngestResult{}, attempt, joinErrors(lastErr, sleepErr)
		}
	}
	return IngestResult{}, maxAttempts, lastErr
}

func (s *Service) requestOutboxDispatch(ctx context.Context, key OrderKey) {
	if s == nil || s.jobEnqueuer == nil {
		return
	}
	err := s.jobEnqueuer.Enqueue(ctx, &JobExecutionMessage{
		JobID:          JobIDOutboxDispatch,
		ScriptPath:     JobIDOutboxDispatch,
		Parameters:     map[string]any{"batch_size": s.config.Outbox.BatchSize},
		IdempotencyKey: "outbox:" + key.String(),
		DedupPolicy:    "replace",
	})
	if err != nil {
		s.logWithLevel(ctx, "warn", "outbox dispatch enqueue failed", map[string]any{
			"external_order_id": key.ExternalOrderID,
			"external_source":   key.ExternalSource,
			"error":             err.Error(),
		})
	}
}

func (s *Service) ResolvePendingOrder(ctx context.Context, decision ReviewDecision) (PendingOrder, error) {
	return s.decidePendingOrder(ctx, "resolve_pending_order", decision, PendingOrderStatusResolved)
}

func (s *Service) CancelPendingOrder(ctx context.Context, decision ReviewDecision) (PendingOrder, error) {
	return s.decidePendingOrder(ctx, "cancel_pending_order", decision, PendingOrderStatusCancelled)
}

func (s *Service) decidePendingOrder(
	ctx context.Context,
	operation string,
	decision ReviewDecision,
	to PendingOrderStatus,
) (order PendingOrder, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"pending_order_id": decision.PendingOrderID,
		"actor":            decision.Actor,
	}
	defer func() {
		if order.ID != "" {
			fields["external_order_id"] = order.ExternalOrderID
			fields["external_source"] = order.ExternalSource
		}
		s.observeOperation(ctx, startedAt, operation, err, fields)
	}()

	if s == nil || s.unitOfWork == nil {
		return PendingOrder{}, fmt.Errorf("core: service is not configured")
	}
	err = s.unitOfWork.RunInTx(ctx, func(ctx context.Context, stores Stores) error {
		queue := NewReviewQueue(stores.PendingOrders(), stores.Outbox())
		queue.now = s.clock()
		var decideErr error
		if to == PendingOrderStatusCancelled {
			order, decideErr = queue.Cancel(ctx, decision)
		} else {
			order, decideErr = queue.Resolve(ctx, decision)
		}
		return decideErr
	})
	if err != nil {
		err = s.mapError(err)
		return PendingOrder{}, err
	}
	s.requestOutboxDispatch(ctx, order.Key())
	return order, nil
}

func (s *Service) ListPendingOrders(ctx context.Context, filter PendingOrderFilter) ([]PendingOrder, error) {
	if s == nil || s.unitOfWork == nil {
		return nil, fmt.Errorf("core: service is not configured")
	}
	var orders []PendingOrder
	err := s.unitOfWork.RunInTx(ctx, func(ctx context.Context, stores Stores) error {
		var listErr error
		orders, listErr = NewReviewQueue(stores.PendingOrders(), nil).List(ctx, filter)
		return listErr
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	return orders, nil
}

func (s *Service) GetPendingOrder(ctx context.Context, id string) (PendingOrder, error) {
	if s == nil || s.unitOfWork == nil {
		return PendingOrder{}, fmt.Errorf("core: service is not configured")
	}
	var order PendingOrder
	err := s.unitOfWork.RunInTx(ctx, func(ctx context.Context, stores Stores) error {
		var getErr error
		order, getErr = NewReviewQueue(stores.PendingOrders(), nil).Get(ctx, id)
		return getErr
	})
	if err != nil {
		return PendingOrder{}, s.mapError(err)
	}
	return order, nil
}

func (s *Service) CreditsByEntrant(ctx context.Context, entrantID string) ([]EntryCredit, error) {
	if s == nil || s.unitOfWork == nil {
		return nil, fmt.Errorf("core: service is not configured")
	}
	entrantID = strings.TrimSpace(entrantID)
	if entrantID == "" {
		return nil, s.mapError(fmt.Errorf("core: entrant id is required"))
	}
	var credits []EntryCredit
	err := s.unitOfWork.RunInTx(ctx, func(ctx context.Context, stores Stores) error {
		if _, err := stores.Entrants().Get(ctx, entrantID); err != nil {
			return err
		}
		var listErr error
		credits, listErr = NewCreditLedger(stores.Credits(), nil).CreditsByEntrant(ctx, entrantID)
		return listErr
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	return credits, nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) clock() func() time.Time {
	if s == nil || s.now == nil {
		return utcNow
	}
	return s.now
}
