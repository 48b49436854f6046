package refunds

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// CreditIssuerPort issues store credit when a store-credit refund settles.
type CreditIssuerPort interface {
	IssueCredit(ctx context.Context, customerID int64, amount shared.Money, reference string, actorID int64) (uuid.UUID, error)
}

// ProcessorResult is the outcome of an external gateway refund call.
type ProcessorResult struct {
	Completed   bool
	ProviderRef string
}

// ProcessorPort talks to the external payment gateway.
type ProcessorPort interface {
	Refund(ctx context.Context, reference string, amount shared.Money) (ProcessorResult, error)
}

// NotifierPort publishes workflow events without blocking the request.
type NotifierPort interface {
	Notify(ctx context.Context, event string, payload map[string]any)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts settled refunds.
type MetricsPort interface {
	RefundCompleted(method string)
}

// Escalation configures how long a pending request may wait per approval
// level before the overdue job flags it.
type Escalation struct {
	VendorTimeout time.Duration
	AdminTimeout  time.Duration
	// ProcessingTimeout bounds how long a gateway refund may sit in
	// PROCESSING without a completion callback before the sweep flags it.
	ProcessingTimeout time.Duration
}

// Service drives refund requests through the approval workflow.
type Service struct {
	repo       RepositoryPort
	credit     CreditIssuerPort
	processor  ProcessorPort
	notifier   NotifierPort
	audit      AuditPort
	metrics    MetricsPort
	thresholds Thresholds
	escalation Escalation
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(
	repo RepositoryPort,
	credit CreditIssuerPort,
	processor ProcessorPort,
	notifier NotifierPort,
	audit AuditPort,
	metrics MetricsPort,
	thresholds Thresholds,
	escalation Escalation,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:       repo,
		credit:     credit,
		processor:  processor,
		notifier:   notifier,
		audit:      audit,
		metrics:    metrics,
		thresholds: thresholds,
		escalation: escalation,
		logger:     logger,
		now:        time.Now,
	}
}

// CreateInput describes a new refund request.
type CreateInput struct {
	TransactionID int64
	ReturnID      *uuid.UUID
	Amount        shared.Money
	Method        Method
	Reason        string
	Actor         shared.Actor
}

// Create validates the request against the transaction's refundable balance
// and registers it. Requests at or under the auto-approval limit are
// approved and settled in the same call.
func (s *Service) Create(ctx context.Context, input CreateInput) (RefundRequest, error) {
	var req RefundRequest
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = CreateTx(ctx, tx, input, s.thresholds, s.now())
		return err
	})
	if err != nil {
		return RefundRequest{}, err
	}
	s.recordAudit(ctx, req.ID, "refund.requested", input.Actor)
	if s.notifier != nil {
		s.notifier.Notify(ctx, "refund.requested", map[string]any{
			"refund_id":      req.ID.String(),
			"transaction_id": req.TransactionID,
			"amount":         req.Amount.String(),
			"level":          string(req.RequiredLevel),
		})
	}
	if req.RequiredLevel == LevelAuto {
		return s.Approve(ctx, req.ID, "auto-approved", input.Actor)
	}
	return req, nil
}

// CreateTx registers a refund request inside an existing transaction. The
// return processor uses it so the request lands atomically with restock.
func CreateTx(ctx context.Context, tx TxRepository, input CreateInput, thresholds Thresholds, at time.Time) (RefundRequest, error) {
	if input.Amount <= 0 {
		return RefundRequest{}, ErrInvalidAmount
	}
	if !input.Method.Valid() {
		return RefundRequest{}, fmt.Errorf("refunds: unknown method %q", input.Method)
	}
	customerID, total, err := tx.TransactionSummaryForUpdate(ctx, input.TransactionID)
	if err != nil {
		return RefundRequest{}, err
	}
	if customerID == nil {
		return RefundRequest{}, ErrCustomerRequired
	}
	settled, err := tx.SumActive(ctx, input.TransactionID)
	if err != nil {
		return RefundRequest{}, err
	}
	if settled+input.Amount > total {
		return RefundRequest{}, ErrExceedsRefundable
	}
	req := RefundRequest{
		ID:            uuid.New(),
		TransactionID: input.TransactionID,
		ReturnID:      input.ReturnID,
		CustomerID:    *customerID,
		Amount:        input.Amount,
		Method:        input.Method,
		Reason:        input.Reason,
		Status:        StatusPending,
		RequiredLevel: thresholds.LevelFor(input.Amount),
		RequestedAt:   at,
	}
	if err := tx.Insert(ctx, req); err != nil {
		return RefundRequest{}, err
	}
	return req, nil
}

// Approve moves a pending request to approved and settles it according to
// its method. Settlement steps are each durable on their own so a gateway
// outage never loses an approved refund.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, notes string, actor shared.Actor) (RefundRequest, error) {
	req, err := s.transition(ctx, id, StatusApproved, func(r *RefundRequest) {
		at := s.now()
		r.ApprovedAt = &at
		if notes != "" {
			r.Notes = notes
		}
	})
	if err != nil {
		return RefundRequest{}, err
	}
	s.recordAudit(ctx, id, "refund.approved", actor)
	return s.settle(ctx, req, actor)
}

// Reject declines a pending or approved request. A reason is mandatory.
// Restocked inventory from an associated return is left untouched; the
// goods are back on the shelf regardless of how the money dispute ends.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason string, actor shared.Actor) (RefundRequest, error) {
	if reason == "" {
		return RefundRequest{}, ErrReasonRequired
	}
	req, err := s.transition(ctx, id, StatusRejected, func(r *RefundRequest) {
		at := s.now()
		r.RejectedAt = &at
		r.Notes = reason
	})
	if err != nil {
		return RefundRequest{}, err
	}
	s.recordAudit(ctx, id, "refund.rejected", actor)
	if s.notifier != nil {
		s.notifier.Notify(ctx, "refund.rejected", map[string]any{
			"refund_id": id.String(),
			"reason":    reason,
		})
	}
	return req, nil
}

// Cancel withdraws a pending request on behalf of the customer.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor shared.Actor) (RefundRequest, error) {
	req, err := s.transition(ctx, id, StatusCancelled, func(r *RefundRequest) {})
	if err != nil {
		return RefundRequest{}, err
	}
	s.recordAudit(ctx, id, "refund.cancelled", actor)
	return req, nil
}

// MarkCompleted finishes a processing request, typically from a gateway
// callback carrying the provider's reference.
func (s *Service) MarkCompleted(ctx context.Context, id uuid.UUID, providerRef string, actor shared.Actor) (RefundRequest, error) {
	req, err := s.transition(ctx, id, StatusCompleted, func(r *RefundRequest) {
		at := s.now()
		r.CompletedAt = &at
		if providerRef != "" {
			r.ProviderRef = &providerRef
		}
	})
	if err != nil {
		return RefundRequest{}, err
	}
	s.finishAudit(ctx, req, actor)
	return req, nil
}

// Get returns a single refund request.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (RefundRequest, error) {
	return s.repo.Get(ctx, id)
}

// ListByTransaction returns the refund trail of a transaction.
func (s *Service) ListByTransaction(ctx context.Context, transactionID int64) ([]RefundRequest, error) {
	return s.repo.ListByTransaction(ctx, transactionID)
}

// EscalateOverdue flags pending requests that outlived their approval
// window and processing requests whose gateway callback never arrived.
// Invoked by the scheduler; returns how many were flagged.
func (s *Service) EscalateOverdue(ctx context.Context) (int, error) {
	now := s.now()
	flagged := 0
	for level, timeout := range map[ApprovalLevel]time.Duration{
		LevelVendor: s.escalation.VendorTimeout,
		LevelAdmin:  s.escalation.AdminTimeout,
	} {
		if timeout <= 0 {
			continue
		}
		overdue, err := s.repo.ListOverdue(ctx, level, now.Add(-timeout))
		if err != nil {
			return flagged, err
		}
		for _, req := range overdue {
			flagged++
			s.logger.WarnContext(ctx, "refund approval overdue",
				slog.String("refund_id", req.ID.String()),
				slog.String("level", string(req.RequiredLevel)),
				slog.Time("requested_at", req.RequestedAt))
			if s.notifier != nil {
				s.notifier.Notify(ctx, "refund.escalated", map[string]any{
					"refund_id": req.ID.String(),
					"level":     string(req.RequiredLevel),
					"amount":    req.Amount.String(),
				})
			}
		}
	}
	if s.escalation.ProcessingTimeout > 0 {
		stuck, err := s.repo.ListStuckProcessing(ctx, now.Add(-s.escalation.ProcessingTimeout))
		if err != nil {
			return flagged, err
		}
		for _, req := range stuck {
			flagged++
			s.logger.WarnContext(ctx, "refund processing stalled",
				slog.String("refund_id", req.ID.String()),
				slog.String("method", string(req.Method)))
			if s.notifier != nil {
				s.notifier.Notify(ctx, "refund.stalled", map[string]any{
					"refund_id": req.ID.String(),
					"method":    string(req.Method),
					"amount":    req.Amount.String(),
				})
			}
		}
	}
	return flagged, nil
}

// settle pushes an approved request toward completion.
func (s *Service) settle(ctx context.Context, req RefundRequest, actor shared.Actor) (RefundRequest, error) {
	switch req.Method {
	case MethodStoreCredit:
		return s.settleStoreCredit(ctx, req, actor)
	case MethodGateway:
		return s.settleGateway(ctx, req, actor)
	default:
		// Bank transfer and manual refunds are settled out of band and
		// finished through MarkCompleted.
		return s.transition(ctx, req.ID, StatusProcessing, func(r *RefundRequest) {
			at := s.now()
			r.ProcessedAt = &at
		})
	}
}

func (s *Service) settleStoreCredit(ctx context.Context, req RefundRequest, actor shared.Actor) (RefundRequest, error) {
	reference := fmt.Sprintf("refund:%s", req.ID)
	noteID, err := s.credit.IssueCredit(ctx, req.CustomerID, req.Amount, reference, actor.ID)
	if err != nil {
		return req, fmt.Errorf("issue store credit: %w", err)
	}
	out, err := s.transition(ctx, req.ID, StatusCompleted, func(r *RefundRequest) {
		at := s.now()
		r.CompletedAt = &at
		r.CreditNoteID = &noteID
	})
	if err != nil {
		return RefundRequest{}, err
	}
	s.finishAudit(ctx, out, actor)
	return out, nil
}

func (s *Service) settleGateway(ctx context.Context, req RefundRequest, actor shared.Actor) (RefundRequest, error) {
	req, err := s.transition(ctx, req.ID, StatusProcessing, func(r *RefundRequest) {
		at := s.now()
		r.ProcessedAt = &at
	})
	if err != nil {
		return RefundRequest{}, err
	}
	res, err := s.processor.Refund(ctx, req.ID.String(), req.Amount)
	if err != nil {
		s.logger.ErrorContext(ctx, "gateway refund failed",
			slog.String("refund_id", req.ID.String()),
			slog.Any("error", err))
		return req, fmt.Errorf("%w: %v", ErrProcessorFailed, err)
	}
	if res.ProviderRef != "" {
		ref := res.ProviderRef
		req.ProviderRef = &ref
	}
	if !res.Completed {
		// Gateway accepted asynchronously; its callback completes us.
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.Update(ctx, req)
		})
		return req, err
	}
	out, err := s.transition(ctx, req.ID, StatusCompleted, func(r *RefundRequest) {
		at := s.now()
		r.CompletedAt = &at
		r.ProviderRef = req.ProviderRef
	})
	if err != nil {
		return RefundRequest{}, err
	}
	s.finishAudit(ctx, out, actor)
	return out, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, mutate func(*RefundRequest)) (RefundRequest, error) {
	var out RefundRequest
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !canTransition(req.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, req.Status, to)
		}
		req.Status = to
		mutate(&req)
		if err := tx.Update(ctx, req); err != nil {
			return err
		}
		out = req
		return nil
	})
	return out, err
}

func (s *Service) finishAudit(ctx context.Context, req RefundRequest, actor shared.Actor) {
	if s.metrics != nil {
		s.metrics.RefundCompleted(string(req.Method))
	}
	s.recordAudit(ctx, req.ID, "refund.completed", actor)
	if s.notifier != nil {
		s.notifier.Notify(ctx, "refund.completed", map[string]any{
			"refund_id": req.ID.String(),
			"method":    string(req.Method),
			"amount":    req.Amount.String(),
		})
	}
}

func (s *Service) recordAudit(ctx context.Context, id uuid.UUID, action string, actor shared.Actor) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "refund_request",
		EntityID: id.String(),
		At:       s.now(),
	})
}
