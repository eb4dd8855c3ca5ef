package withdrawals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sokonilabs/sokoni-backend/internal/notify"
	"github.com/sokonilabs/sokoni-backend/pkg/config"
	"github.com/sokonilabs/sokoni-backend/pkg/db/models"
	"github.com/sokonilabs/sokoni-backend/pkg/enums"
	errsokoni "github.com/sokonilabs/sokoni-backend/pkg/errors"
	"github.com/sokonilabs/sokoni-backend/pkg/logger"
	"github.com/sokonilabs/sokoni-backend/pkg/mobilepay"
	"github.com/sokonilabs/sokoni-backend/pkg/money"
	"github.com/sokonilabs/sokoni-backend/pkg/phone"
)

const (
	notifyKindProcessing = "withdrawal_processing"
	notifyKindCompleted  = "withdrawal_completed"
	notifyKindFailed     = "withdrawal_failed"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// provider is the external payout rail. Initiate failures of any shape
// (network, timeout, rejection) all trigger the compensating-credit path.
type provider interface {
	Initiate(ctx context.Context, phoneNumber string, amount decimal.Decimal, narration string) (*mobilepay.InitiateResult, error)
	CheckStatus(ctx context.Context, reference string) (*mobilepay.StatusResult, error)
}

type notifier interface {
	Enqueue(task notify.Task) error
}

// walletFunds is the slice of the wallets service the orchestrator needs:
// locked lookup, guarded debit and the compensating credit.
type walletFunds interface {
	FindForOwnerForUpdate(ctx context.Context, tx *gorm.DB, kind enums.WalletOwnerKind, ownerID uuid.UUID) (*models.Wallet, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	DebitLocked(ctx context.Context, tx *gorm.DB, wallet *models.Wallet, amount decimal.Decimal) error
	Credit(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, amount decimal.Decimal) error
}

// Input is a cash-out ask as received from the owner.
type Input struct {
	OwnerKind   enums.WalletOwnerKind `validate:"required"`
	OwnerID     uuid.UUID             `validate:"required"`
	Amount      decimal.Decimal       `validate:"required"`
	PhoneNumber string                `validate:"required"`
	AccountName string                `validate:"required,min=2"`
}

// ServiceParams configure the withdrawal orchestrator.
type ServiceParams struct {
	DB        txRunner
	Repo      Repository
	Wallets   walletFunds
	Provider  provider
	Notifier  notifier
	Logger    *logger.Logger
	Bounds    config.WithdrawalsConfig
	Fees      config.FeesConfig
	Narration string
}

// Service reserves funds synchronously, executes the provider call
// asynchronously, and compensates the wallet when the call fails.
type Service struct {
	db        txRunner
	repo      Repository
	wallets   walletFunds
	provider  provider
	notifier  notifier
	logg      *logger.Logger
	bounds    config.WithdrawalsConfig
	fees      config.FeesConfig
	narration string
	validate  *validator.Validate
	now       func() time.Time
	submit    func(requestID uuid.UUID) error
}

// SetSubmitter installs the executor hand-off called after a reservation
// commits. Without one, reserved requests wait for the reconciliation sweep.
func (s *Service) SetSubmitter(submit func(requestID uuid.UUID) error) {
	s.submit = submit
}

// NewService builds the withdrawal orchestrator.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallets repository required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("payout provider required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		db:        params.DB,
		repo:      params.Repo,
		wallets:   params.Wallets,
		provider:  params.Provider,
		notifier:  params.Notifier,
		logg:      params.Logger,
		bounds:    params.Bounds,
		fees:      params.Fees,
		narration: params.Narration,
		validate:  validator.New(),
		now:       time.Now,
	}, nil
}

// Request validates the ask and reserves funds in one transaction: it locks
// the wallet, checks the balance against the (possibly grossed-up)
// deduction, debits, and inserts the request with status processing. The
// external provider has not been called when this returns; Execute does that
// asynchronously.
func (s *Service) Request(ctx context.Context, in Input) (*models.WithdrawalRequest, error) {
	deduction, msisdn, err := s.validateInput(in)
	if err != nil {
		return nil, err
	}

	var request *models.WithdrawalRequest
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		wallet, err := s.wallets.FindForOwnerForUpdate(ctx, tx, in.OwnerKind, in.OwnerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errsokoni.New(errsokoni.CodeNotFound,
					fmt.Sprintf("no wallet for %s %s", in.OwnerKind, in.OwnerID))
			}
			return fmt.Errorf("lock wallet for %s %s: %w", in.OwnerKind, in.OwnerID, err)
		}
		if err := s.wallets.DebitLocked(ctx, tx, wallet, deduction); err != nil {
			return err
		}

		request = &models.WithdrawalRequest{
			WalletID:    wallet.ID,
			Amount:      in.Amount,
			Deduction:   deduction,
			PhoneNumber: msisdn,
			AccountName: in.AccountName,
			Status:      enums.WithdrawalStatusProcessing,
		}
		return s.repo.WithTx(tx).Create(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithWithdrawalID(ctx, request.ID.String())
	logCtx = s.logg.WithField(logCtx, "deduction", deduction.String())
	s.logg.Info(logCtx, "withdrawal reserved")

	if s.submit != nil {
		if submitErr := s.submit(request.ID); submitErr != nil {
			// The reservation stands; the reconciliation sweep will pick
			// the request up once it crosses the threshold.
			s.logg.Warn(logCtx, fmt.Sprintf("executor hand-off failed: %v", submitErr))
		}
	}
	return request, nil
}

// validateInput performs the in-memory phase: bounds, phone normalization
// and the gross-up math. No I/O happens here.
func (s *Service) validateInput(in Input) (decimal.Decimal, string, error) {
	if err := s.validate.Struct(in); err != nil {
		return decimal.Zero, "", errsokoni.Wrap(errsokoni.CodeValidation, err, "invalid withdrawal input")
	}
	if !in.OwnerKind.IsValid() {
		return decimal.Zero, "", errsokoni.New(errsokoni.CodeValidation,
			fmt.Sprintf("unknown wallet owner kind %q", in.OwnerKind))
	}
	if !in.Amount.IsPositive() {
		return decimal.Zero, "", errsokoni.New(errsokoni.CodeValidation, "amount must be positive")
	}
	if in.Amount.LessThan(s.bounds.Min()) || in.Amount.GreaterThan(s.bounds.Max()) {
		return decimal.Zero, "", errsokoni.New(errsokoni.CodeValidation,
			fmt.Sprintf("amount %s is outside the allowed range %s-%s", in.Amount, s.bounds.Min(), s.bounds.Max()))
	}
	msisdn, err := phone.Normalize(in.PhoneNumber)
	if err != nil {
		return decimal.Zero, "", errsokoni.Wrap(errsokoni.CodeValidation, err, "invalid phone number")
	}

	deduction := in.Amount
	if in.OwnerKind == enums.WalletOwnerEvent {
		deduction, err = money.GrossUp(in.Amount, s.fees.EventWithdrawFeeRate())
		if err != nil {
			return decimal.Zero, "", errsokoni.Wrap(errsokoni.CodeValidation, err, "gross-up failed")
		}
	}
	return deduction, msisdn, nil
}

// Execute performs the provider call for a reserved request. It runs outside
// any local transaction. Provider failure opens a new transaction that
// restores the deduction and marks the request failed; if that compensating
// credit itself fails, the condition is logged as critical for manual
// intervention.
func (s *Service) Execute(ctx context.Context, requestID uuid.UUID) error {
	ctx = s.logg.WithWithdrawalID(ctx, requestID.String())

	request, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errsokoni.New(errsokoni.CodeNotFound,
				fmt.Sprintf("withdrawal %s not found", requestID))
		}
		return fmt.Errorf("load withdrawal %s: %w", requestID, err)
	}
	if request.Status.IsTerminal() {
		s.logg.Warn(ctx, "withdrawal already in a terminal state; skipping execute")
		return nil
	}
	if request.ProviderRef != nil {
		s.logg.Warn(ctx, "withdrawal already submitted to provider; skipping execute")
		return nil
	}

	result, initErr := s.provider.Initiate(ctx, request.PhoneNumber, request.Amount, s.narration)
	if initErr != nil {
		s.logg.Error(ctx, "provider initiate failed", initErr)
		return s.failAndRefund(ctx, request, initErr)
	}

	updates := map[string]any{
		"provider_ref": result.Reference,
		"raw_response": []byte(result.Raw),
	}
	if err := s.repo.Update(ctx, request.ID, updates); err != nil {
		return fmt.Errorf("persist provider reference for %s: %w", request.ID, err)
	}

	s.send(ctx, request.PhoneNumber, notifyKindProcessing,
		fmt.Sprintf("Your withdrawal of %s is being processed.", request.Amount))
	return nil
}

// failAndRefund is the compensating transaction: credit the deduction back
// to the wallet and mark the request failed, atomically. The status check
// runs under the request's row lock so two callers holding the same stale
// view of the request can never credit twice.
func (s *Service) failAndRefund(ctx context.Context, request *models.WithdrawalRequest, cause error) error {
	apiError := cause.Error()
	alreadyResolved := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindByIDForUpdate(ctx, request.ID)
		if err != nil {
			return fmt.Errorf("lock withdrawal %s: %w", request.ID, err)
		}
		if locked.Status != enums.WithdrawalStatusProcessing {
			alreadyResolved = true
			return nil
		}
		if err := s.wallets.Credit(ctx, tx, request.WalletID, request.Deduction); err != nil {
			return fmt.Errorf("restore %s to wallet %s: %w", request.Deduction, request.WalletID, err)
		}
		return repo.Update(ctx, request.ID, map[string]any{
			"status":    enums.WithdrawalStatusFailed,
			"api_error": apiError,
		})
	})
	if err != nil {
		logCtx := s.logg.WithWalletID(ctx, request.WalletID.String())
		s.logg.Critical(logCtx, "compensating credit failed; wallet balance requires manual correction", err)
		return errsokoni.Wrap(errsokoni.CodeCritical, err,
			fmt.Sprintf("compensating credit for withdrawal %s failed", request.ID))
	}
	if alreadyResolved {
		s.logg.Warn(ctx, "withdrawal already left processing; skipping compensation")
		return nil
	}

	message := fmt.Sprintf("Your withdrawal of %s failed and the funds were returned.", request.Amount)
	if wallet, walletErr := s.wallets.FindByID(ctx, request.WalletID); walletErr == nil {
		message = fmt.Sprintf("Your withdrawal of %s failed. Your balance is back to %s.",
			request.Amount, wallet.Balance)
	}
	s.send(ctx, request.PhoneNumber, notifyKindFailed, message)
	return nil
}

func (s *Service) send(ctx context.Context, destination, kind, message string) {
	err := s.notifier.Enqueue(notify.Task{
		Destination: destination,
		Kind:        kind,
		Message:     message,
	})
	if err != nil {
		s.logg.Error(ctx, "failed to enqueue withdrawal notification", err)
	}
}
