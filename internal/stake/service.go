package stake

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/coderomm/Xolana/internal/callbacks"
	"github.com/coderomm/Xolana/internal/config"
	"github.com/coderomm/Xolana/internal/logger"
	"github.com/coderomm/Xolana/internal/metrics"
	solanautil "github.com/coderomm/Xolana/internal/solana"
	"github.com/coderomm/Xolana/internal/storage"
)

// Validation errors surfaced to HTTP handlers.
var (
	ErrInvalidWallet    = errors.New("stake: invalid wallet address")
	ErrInvalidAmount    = errors.New("stake: amount must be a positive finite number")
	ErrMissingSignature = errors.New("stake: notification has no transaction signature")
)

// Outcome classifies how a transaction notification was handled.
type Outcome string

const (
	// OutcomeIgnored means no transfer into the pool was found.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeReplayed means the deposit signature was already processed.
	OutcomeReplayed Outcome = "replayed"
	// OutcomeMinted means reward tokens were minted and confirmed.
	OutcomeMinted Outcome = "minted"
)

// Result is the outcome of processing one transaction notification.
type Result struct {
	Outcome       Outcome
	Wallet        string
	Lamports      uint64
	MintSignature string
}

// PreparedStake is an unsigned deposit transaction ready for client signing.
type PreparedStake struct {
	TransactionBase64 string
	Lamports          uint64
}

// ChainClient is the slice of the Solana client the stake service needs.
type ChainClient interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	AccountExists(ctx context.Context, account solana.PublicKey) (bool, error)
	SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	Network() string
}

// Service owns the liquid staking flows: minting reward tokens for pool
// deposits and preparing unsigned deposit transactions.
type Service struct {
	pool           solana.PublicKey
	rewardMint     solana.PublicKey
	rewardDecimals uint8
	serviceWallet  solana.PrivateKey
	client         ChainClient
	store          storage.Store
	notifier       callbacks.Notifier
	metrics        *metrics.Metrics
	storageBackend string
}

// NewService constructs the staking service. The service wallet is the mint
// authority of the reward token and pays fees for mint transactions.
func NewService(cfg *config.Config, client ChainClient, store storage.Store, notifier callbacks.Notifier, metricsCollector *metrics.Metrics) (*Service, error) {
	pool, err := solana.PublicKeyFromBase58(cfg.Stake.PoolAddress)
	if err != nil {
		return nil, fmt.Errorf("parse pool address: %w", err)
	}
	rewardMint, err := solana.PublicKeyFromBase58(cfg.Stake.RewardMint)
	if err != nil {
		return nil, fmt.Errorf("parse reward mint: %w", err)
	}
	serviceWallet, err := solanautil.ParsePrivateKey(cfg.Stake.ServiceWalletKey)
	if err != nil {
		return nil, fmt.Errorf("parse service wallet: %w", err)
	}

	if notifier == nil {
		notifier = callbacks.NoopNotifier{}
	}

	decimals := cfg.Stake.RewardDecimals
	if decimals == 0 {
		decimals = 9
	}

	return &Service{
		pool:           pool,
		rewardMint:     rewardMint,
		rewardDecimals: decimals,
		serviceWallet:  serviceWallet,
		client:         client,
		store:          store,
		notifier:       notifier,
		metrics:        metricsCollector,
		storageBackend: cfg.Storage.Backend,
	}, nil
}

// PoolAddress returns the staking pool account.
func (s *Service) PoolAddress() solana.PublicKey {
	return s.pool
}

// ProcessNotification handles one inbound transaction notification. A deposit
// into the pool mints one reward token per staked SOL, scaled to the mint's
// decimals; anything else is acknowledged without touching the chain.
func (s *Service) ProcessNotification(ctx context.Context, n TransactionNotification) (Result, error) {
	start := time.Now()
	log := logger.FromContext(ctx)

	result, err := s.processNotification(ctx, n)

	outcome := string(result.Outcome)
	if err != nil {
		outcome = "failed"
	}
	if s.metrics != nil {
		s.metrics.ObserveNotification(outcome, time.Since(start))
	}

	if err == nil && result.Outcome == OutcomeMinted {
		log.Info().
			Str("wallet", logger.TruncateAddress(result.Wallet)).
			Uint64("lamports", result.Lamports).
			Str("mint_signature", result.MintSignature).
			Msg("reward tokens minted")
	}
	return result, err
}

func (s *Service) processNotification(ctx context.Context, n TransactionNotification) (Result, error) {
	transfer, ok := n.TransferTo(s.pool.String())
	if !ok {
		return Result{Outcome: OutcomeIgnored}, nil
	}

	if n.Signature == "" {
		return Result{}, ErrMissingSignature
	}

	processed, err := s.hasStakeBeenProcessed(ctx, n.Signature)
	if err != nil {
		return Result{}, fmt.Errorf("check processed stake: %w", err)
	}
	if processed {
		return Result{
			Outcome:  OutcomeReplayed,
			Wallet:   transfer.FromUserAccount,
			Lamports: transfer.Amount,
		}, nil
	}

	staker, err := solana.PublicKeyFromBase58(transfer.FromUserAccount)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidWallet, transfer.FromUserAccount)
	}

	rewardAmount := s.rewardBaseUnits(transfer.Amount)

	mintStart := time.Now()
	mintSig, err := s.mintReward(ctx, staker, rewardAmount)
	if s.metrics != nil {
		status := "success"
		if err != nil {
			status = "failed"
		}
		s.metrics.ObserveMint(status, s.client.Network(), transfer.Amount, time.Since(mintStart))
	}
	if err != nil {
		return Result{}, fmt.Errorf("mint reward: %w", err)
	}

	record := storage.ProcessedStake{
		Signature:     n.Signature,
		Wallet:        transfer.FromUserAccount,
		Lamports:      transfer.Amount,
		MintSignature: mintSig.String(),
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.recordStake(ctx, record); err != nil {
		if errors.Is(err, storage.ErrDuplicateSignature) {
			// A concurrent notification won the record race after our
			// pre-mint check. The mint already happened; acknowledge it.
			log := logger.FromContext(ctx)
			log.Warn().
				Str("signature", n.Signature).
				Msg("concurrent duplicate notification detected after mint")
		} else {
			// The tokens are on-chain but the record is not. Surface the
			// error so operators can reconcile; replay protection for this
			// signature is degraded until then.
			return Result{}, fmt.Errorf("record stake: %w", err)
		}
	}

	s.notifier.MintSucceeded(ctx, callbacks.MintEvent{
		Wallet:          transfer.FromUserAccount,
		StakeSignature:  n.Signature,
		MintSignature:   mintSig.String(),
		Lamports:        transfer.Amount,
		RewardBaseUnits: rewardAmount,
		Network:         s.client.Network(),
	})

	return Result{
		Outcome:       OutcomeMinted,
		Wallet:        transfer.FromUserAccount,
		Lamports:      transfer.Amount,
		MintSignature: mintSig.String(),
	}, nil
}

// rewardBaseUnits converts staked lamports into reward token base units.
// Lamports carry 9 decimals; a mint configured with fewer decimals receives
// proportionally fewer base units so one staked SOL is one reward token.
func (s *Service) rewardBaseUnits(lamports uint64) uint64 {
	switch {
	case s.rewardDecimals == 9:
		return lamports
	case s.rewardDecimals < 9:
		return lamports / pow10(9-s.rewardDecimals)
	default:
		return lamports * pow10(s.rewardDecimals-9)
	}
}

func pow10(n uint8) uint64 {
	out := uint64(1)
	for i := uint8(0); i < n; i++ {
		out *= 10
	}
	return out
}

// mintReward credits `amount` base units of the reward token to the staker's
// Token-2022 associated token account, creating it if missing.
func (s *Service) mintReward(ctx context.Context, staker solana.PublicKey, amount uint64) (solana.Signature, error) {
	ata, err := solanautil.DeriveAssociatedTokenAddress(staker, s.rewardMint)
	if err != nil {
		return solana.Signature{}, err
	}

	exists, err := s.client.AccountExists(ctx, ata)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("check token account: %w", err)
	}

	var instructions []solana.Instruction
	if !exists {
		instructions = append(instructions, solanautil.NewCreateAssociatedTokenAccountInstruction(
			s.serviceWallet.PublicKey(), ata, staker, s.rewardMint,
		))
	}
	instructions = append(instructions, solanautil.NewMintToInstruction(
		s.rewardMint, ata, s.serviceWallet.PublicKey(), amount,
	))

	blockhash, err := s.client.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("fetch blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		blockhash,
		solana.TransactionPayer(s.serviceWallet.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.serviceWallet.PublicKey()) {
			return &s.serviceWallet
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := s.client.SendAndConfirm(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("submit transaction: %w", err)
	}
	return sig, nil
}

// PrepareStake builds an unsigned SOL transfer from the sender into the pool.
// The amount is whole SOL; the sender signs and broadcasts client-side, so no
// balance check happens here.
func (s *Service) PrepareStake(ctx context.Context, senderPublicKey string, amountSOL float64) (PreparedStake, error) {
	prepared, err := s.prepareStake(ctx, senderPublicKey, amountSOL)
	if s.metrics != nil {
		status := "success"
		if err != nil {
			status = "failed"
		}
		s.metrics.ObserveStakePrepared(status)
	}
	return prepared, err
}

func (s *Service) prepareStake(ctx context.Context, senderPublicKey string, amountSOL float64) (PreparedStake, error) {
	sender, err := solana.PublicKeyFromBase58(senderPublicKey)
	if err != nil {
		return PreparedStake{}, fmt.Errorf("%w: %s", ErrInvalidWallet, senderPublicKey)
	}
	if amountSOL <= 0 || math.IsNaN(amountSOL) || math.IsInf(amountSOL, 0) {
		return PreparedStake{}, ErrInvalidAmount
	}

	lamports := uint64(math.Round(amountSOL * float64(solana.LAMPORTS_PER_SOL)))
	if lamports == 0 {
		return PreparedStake{}, ErrInvalidAmount
	}

	blockhash, err := s.client.LatestBlockhash(ctx)
	if err != nil {
		return PreparedStake{}, fmt.Errorf("fetch blockhash: %w", err)
	}

	transfer := system.NewTransferInstruction(lamports, sender, s.pool).Build()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{transfer},
		blockhash,
		solana.TransactionPayer(sender),
	)
	if err != nil {
		return PreparedStake{}, fmt.Errorf("build transaction: %w", err)
	}

	serialized, err := tx.ToBase64()
	if err != nil {
		return PreparedStake{}, fmt.Errorf("serialize transaction: %w", err)
	}

	return PreparedStake{
		TransactionBase64: serialized,
		Lamports:          lamports,
	}, nil
}

// GetProcessedStake looks up a recorded stake by deposit signature.
func (s *Service) GetProcessedStake(ctx context.Context, signature string) (storage.ProcessedStake, error) {
	defer metrics.MeasureDBQuery(s.metrics, "get_stake", s.storageBackend)()
	return s.store.GetStake(ctx, signature)
}

func (s *Service) hasStakeBeenProcessed(ctx context.Context, signature string) (bool, error) {
	defer metrics.MeasureDBQuery(s.metrics, "has_stake_been_processed", s.storageBackend)()
	return s.store.HasStakeBeenProcessed(ctx, signature)
}

func (s *Service) recordStake(ctx context.Context, record storage.ProcessedStake) error {
	defer metrics.MeasureDBQuery(s.metrics, "record_stake", s.storageBackend)()
	return s.store.RecordStake(ctx, record)
}
