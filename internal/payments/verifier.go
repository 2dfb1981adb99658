package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/adboard-backend/pkg/logger"
	"github.com/angelmondragon/adboard-backend/pkg/solana"
)

type rpcClient interface {
	GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error)
	GetAccountInfo(ctx context.Context, address string) (*solana.AccountInfo, error)
}

// RetryPolicy bounds transaction fetches while the node catches up.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

// Config configures a Verifier.
type Config struct {
	TreasuryAccount string
	// TokenMint is optional; when set only balances of this mint count.
	TokenMint      string
	ToleranceUnits int64
	Retry          RetryPolicy
}

// VerifiedPayment is the transient proof that a listing was paid for.
type VerifiedPayment struct {
	Signature string
	Payer     string
	Amount    decimal.Decimal
	Recipient string
	Slot      uint64
	Valid     bool
}

// Verifier checks token transfers to the treasury account.
type Verifier struct {
	rpc       rpcClient
	treasury  string
	mint      string
	tolerance decimal.Decimal
	retry     RetryPolicy
	logg      *logger.Logger
}

var defaultRetryPolicy = RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: time.Second,
	MaximumBackoff: 5 * time.Second,
}

// NewVerifier constructs a Verifier.
func NewVerifier(rpc rpcClient, cfg Config, logg *logger.Logger) (*Verifier, error) {
	if rpc == nil {
		return nil, fmt.Errorf("solana rpc client required")
	}
	treasury := strings.TrimSpace(cfg.TreasuryAccount)
	if treasury == "" {
		return nil, fmt.Errorf("treasury account required")
	}
	if cfg.ToleranceUnits < 0 {
		return nil, fmt.Errorf("tolerance must be non-negative")
	}

	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultRetryPolicy.MaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = defaultRetryPolicy.InitialBackoff
	}
	if retry.MaximumBackoff <= 0 {
		retry.MaximumBackoff = defaultRetryPolicy.MaximumBackoff
	}

	return &Verifier{
		rpc:       rpc,
		treasury:  treasury,
		mint:      strings.TrimSpace(cfg.TokenMint),
		tolerance: decimal.NewFromInt(cfg.ToleranceUnits),
		retry:     retry,
		logg:      logg,
	}, nil
}

// Treasury returns the configured recipient token account.
func (v *Verifier) Treasury() string {
	return v.treasury
}

// ExtractPayer returns the fee payer of a transaction. A signature the node
// has not indexed yet is retried under the same policy as Verify.
func (v *Verifier) ExtractPayer(ctx context.Context, signature string) (string, error) {
	tx, err := v.fetchWithRetry(ctx, signature)
	if err != nil {
		return "", err
	}
	payer, ok := tx.AccountKeyAt(0)
	if !ok {
		return "", ErrTransactionNotFound
	}
	return payer, nil
}

// Verify confirms that signature moved expectedUnits (within tolerance) into recipient.
// An empty recipient means the configured treasury.
func (v *Verifier) Verify(ctx context.Context, signature string, expectedUnits int64, recipient string) (*VerifiedPayment, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		recipient = v.treasury
	}
	expected := decimal.NewFromInt(expectedUnits)

	tx, err := v.fetchWithRetry(ctx, signature)
	if err != nil {
		return nil, err
	}

	if tx.Failed() {
		return nil, &VerificationError{Reason: ReasonTransactionFailed, Expected: expected, Err: fmt.Errorf("on-chain error %s", string(tx.Meta.Err))}
	}
	if tx.Slot == 0 || tx.Meta == nil {
		return nil, &VerificationError{Reason: ReasonNotConfirmed, Expected: expected}
	}

	delta, err := v.recipientDelta(tx, recipient)
	if err != nil {
		return nil, err
	}
	if !delta.IsPositive() {
		return nil, &VerificationError{Reason: ReasonNoTransfer, Expected: expected, Received: delta}
	}
	if delta.Sub(expected).Abs().GreaterThan(v.tolerance) {
		return nil, &VerificationError{Reason: ReasonAmountMismatch, Expected: expected, Received: delta}
	}

	payer, ok := tx.AccountKeyAt(0)
	if !ok {
		return nil, &VerificationError{Reason: ReasonNotConfirmed, Expected: expected, Err: errors.New("transaction has no account keys")}
	}

	return &VerifiedPayment{
		Signature: signature,
		Payer:     payer,
		Amount:    delta,
		Recipient: recipient,
		Slot:      tx.Slot,
		Valid:     true,
	}, nil
}

// CheckTreasury confirms the treasury exists and is a token account of the configured mint.
func (v *Verifier) CheckTreasury(ctx context.Context) error {
	info, err := v.rpc.GetAccountInfo(ctx, v.treasury)
	if err != nil {
		return fmt.Errorf("treasury account lookup: %w", err)
	}
	if !info.IsTokenAccount() {
		return fmt.Errorf("treasury %s is not a token account", v.treasury)
	}
	if v.mint != "" && info.Data.Parsed.Info.Mint != v.mint {
		return fmt.Errorf("treasury mint %s does not match %s", info.Data.Parsed.Info.Mint, v.mint)
	}
	return nil
}

func (v *Verifier) fetchWithRetry(ctx context.Context, signature string) (*solana.Transaction, error) {
	attempts := 0
	backoff := v.retry.InitialBackoff

	for {
		if err := ctx.Err(); err != nil {
			return nil, &VerificationError{Reason: ReasonRPCUnavailable, Err: err}
		}

		tx, err := v.rpc.GetTransaction(ctx, signature)
		if err == nil {
			return tx, nil
		}

		attempts++
		if attempts >= v.retry.MaxAttempts || !isRetryableFetchError(err) {
			return nil, fetchFailure(err)
		}
		if v.logg != nil {
			v.logg.Warn(ctx, fmt.Sprintf("transaction fetch attempt %d failed, retrying in %s: %v", attempts, backoff, err))
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &VerificationError{Reason: ReasonRPCUnavailable, Err: ctx.Err()}
		case <-timer.C:
		}
		timer.Stop()

		backoff = minDuration(backoff*2, v.retry.MaximumBackoff)
	}
}

// isRetryableFetchError retries indexing lag and transport failures; a
// JSON-RPC error object means the request itself is wrong.
func isRetryableFetchError(err error) bool {
	if errors.Is(err, solana.ErrTransactionNotFound) {
		return true
	}
	var rpcErr *solana.RPCError
	return !errors.As(err, &rpcErr)
}

func fetchFailure(err error) error {
	if errors.Is(err, solana.ErrTransactionNotFound) {
		return &VerificationError{Reason: ReasonTransactionNotFound, Err: ErrTransactionNotFound}
	}
	return &VerificationError{Reason: ReasonRPCUnavailable, Err: err}
}

func (v *Verifier) recipientDelta(tx *solana.Transaction, recipient string) (decimal.Decimal, error) {
	pre := make(map[int]solana.TokenBalance, len(tx.Meta.PreTokenBalances))
	for _, bal := range tx.Meta.PreTokenBalances {
		pre[bal.AccountIndex] = bal
	}

	for _, post := range tx.Meta.PostTokenBalances {
		key, ok := tx.AccountKeyAt(post.AccountIndex)
		if !ok || key != recipient {
			continue
		}
		if v.mint != "" && post.Mint != v.mint {
			continue
		}

		postAmount, err := parseAmount(post.UITokenAmount.Amount)
		if err != nil {
			return decimal.Zero, &VerificationError{Reason: ReasonNoTransfer, Err: fmt.Errorf("post balance: %w", err)}
		}
		preAmount := decimal.Zero
		if prior, found := pre[post.AccountIndex]; found {
			preAmount, err = parseAmount(prior.UITokenAmount.Amount)
			if err != nil {
				return decimal.Zero, &VerificationError{Reason: ReasonNoTransfer, Err: fmt.Errorf("pre balance: %w", err)}
			}
		}
		return postAmount.Sub(preAmount), nil
	}
	return decimal.Zero, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
