package relayer

import (
	"context"
	"crypto/rand"
	"io"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"onchaindice/internal/eip712"
	"onchaindice/internal/fhe"
	"onchaindice/internal/platform/config"
)

// ACLReader answers ledger ACL queries.
type ACLReader interface {
	IsAllowed(ctx context.Context, h fhe.Handle, p common.Address) (bool, error)
}

// Decrypter returns plaintexts; it is the coprocessor in practice.
type Decrypter interface {
	Decrypt(ctx context.Context, h fhe.Handle) (uint64, error)
}

type Config struct {
	ListenAddr  string        `env:"RELAYER_ADDR" envDefault:"127.0.0.1:8646"`
	ChainID     uint64        `env:"CHAIN_NUMERIC_ID" envDefault:"9000"`
	MaxHandles  int           `env:"RELAYER_MAX_HANDLES" envDefault:"16"`
	MaxDuration time.Duration `env:"RELAYER_MAX_DURATION" envDefault:"720h"`
	Concurrency int           `env:"RELAYER_CONCURRENCY" envDefault:"4"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithRand(r io.Reader) Option {
	return func(s *Service) { s.rand = r }
}

// WithDomainSource reads the signing domain on every request, for nodes
// whose ledger address is only known after genesis.
func WithDomainSource(fn func() eip712.Domain) Option {
	return func(s *Service) { s.domain = fn }
}

type Service struct {
	cfg    Config
	domain func() eip712.Domain
	acl    ACLReader
	dec    Decrypter
	now    func() time.Time
	rand   io.Reader
	logger log.Logger
	tracer trace.Tracer
}

// NewService builds a relayer for the ledger at ledger. Signatures are
// checked against the domain (cfg.ChainID, ledger).
func NewService(cfg Config, ledger common.Address, acl ACLReader, dec Decrypter, opts ...Option) *Service {
	if cfg.MaxHandles <= 0 {
		cfg.MaxHandles = 16
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	fixed := eip712.Domain{ChainID: cfg.ChainID, VerifyingContract: ledger}
	s := &Service{
		cfg:    cfg,
		domain: func() eip712.Domain { return fixed },
		acl:    acl,
		dec:    dec,
		now:    time.Now,
		rand:   rand.Reader,
		logger: log.NewNopLogger(),
		tracer: otel.Tracer("onchaindice/relayer"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Domain() eip712.Domain { return s.domain() }

func (s *Service) checkWindow(req *UserDecryptRequest) error {
	if req.DurationSeconds == 0 {
		return errorsmod.Wrap(ErrInvalidRequest, "durationSeconds is zero")
	}
	if s.cfg.MaxDuration > 0 && req.DurationSeconds > uint64(s.cfg.MaxDuration/time.Second) {
		return errorsmod.Wrapf(ErrInvalidRequest, "durationSeconds %d exceeds %s", req.DurationSeconds, s.cfg.MaxDuration)
	}
	end := req.StartTimestamp + req.DurationSeconds
	if end < req.StartTimestamp {
		return errorsmod.Wrap(ErrInvalidRequest, "window overflows")
	}
	now := s.now().Unix()
	if now < 0 || uint64(now) < req.StartTimestamp {
		return errorsmod.Wrapf(ErrWindow, "starts at %d, now %d", req.StartTimestamp, now)
	}
	if uint64(now) >= end {
		return errorsmod.Wrapf(ErrWindow, "expired at %d, now %d", end, now)
	}
	return nil
}

func (s *Service) checkSignature(req *UserDecryptRequest) error {
	signer, err := eip712.Recover(s.Domain(), eip712.Authorization{
		PublicKey:         req.PublicKey,
		ContractAddresses: req.ContractAddresses,
		StartTimestamp:    req.StartTimestamp,
		DurationSeconds:   req.DurationSeconds,
	}, req.Signature)
	if err != nil {
		return errorsmod.Wrap(ErrBadSignature, err.Error())
	}
	if signer != req.UserAddress {
		return errorsmod.Wrapf(ErrBadSignature, "recovered %s, user %s", signer.Hex(), req.UserAddress.Hex())
	}
	return nil
}

// authorize validates req and returns the distinct handles to decrypt.
func (s *Service) authorize(ctx context.Context, req *UserDecryptRequest) ([]fhe.Handle, error) {
	if req == nil || len(req.HandleContractPairs) == 0 {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "no handles requested")
	}
	if len(req.HandleContractPairs) > s.cfg.MaxHandles {
		return nil, errorsmod.Wrapf(ErrInvalidRequest, "%d handles requested, limit %d", len(req.HandleContractPairs), s.cfg.MaxHandles)
	}
	if len(req.PublicKey) != KeySize {
		return nil, errorsmod.Wrapf(ErrInvalidRequest, "publicKey must be %d bytes", KeySize)
	}
	if req.UserAddress == (common.Address{}) {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "missing userAddress")
	}
	if err := s.checkWindow(req); err != nil {
		return nil, err
	}
	if err := s.checkSignature(req); err != nil {
		return nil, err
	}

	covered := make(map[common.Address]struct{}, len(req.ContractAddresses))
	for _, c := range req.ContractAddresses {
		covered[c] = struct{}{}
	}
	seen := make(map[fhe.Handle]struct{}, len(req.HandleContractPairs))
	handles := make([]fhe.Handle, 0, len(req.HandleContractPairs))
	for _, p := range req.HandleContractPairs {
		if p.Handle.IsEmpty() {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "empty handle")
		}
		if _, ok := covered[p.ContractAddress]; !ok {
			return nil, errorsmod.Wrapf(ErrContractNotCovered, "%s", p.ContractAddress.Hex())
		}
		for _, principal := range []common.Address{req.UserAddress, p.ContractAddress} {
			ok, err := s.acl.IsAllowed(ctx, p.Handle, principal)
			if err != nil {
				return nil, errorsmod.Wrap(ErrUnavailable, err.Error())
			}
			if !ok {
				return nil, errorsmod.Wrapf(ErrNotAllowed, "%s for %s", p.Handle, principal.Hex())
			}
		}
		if _, dup := seen[p.Handle]; dup {
			continue
		}
		seen[p.Handle] = struct{}{}
		handles = append(handles, p.Handle)
	}
	return handles, nil
}

// Seal authorizes req and returns every requested plaintext sealed to
// req.PublicKey.
func (s *Service) Seal(ctx context.Context, req *UserDecryptRequest) (_ *UserDecryptResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "relayer.Seal")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	handles, err := s.authorize(ctx, req)
	if err != nil {
		s.logger.Debug("rejected decryption request", "err", err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("user", req.UserAddress.Hex()),
		attribute.Int("handles", len(handles)),
	)

	var pub [KeySize]byte
	copy(pub[:], req.PublicKey)
	results := make([]SealedResult, len(handles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, h := range handles {
		g.Go(func() error {
			v, err := s.dec.Decrypt(gctx, h)
			if err != nil {
				return errorsmod.Wrapf(ErrUnavailable, "decrypt %s: %v", h, err)
			}
			sealed, err := sealValue(&pub, v, s.rand)
			if err != nil {
				return errorsmod.Wrapf(ErrUnavailable, "seal %s: %v", h, err)
			}
			results[i] = SealedResult{Handle: h, Sealed: sealed}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("decryption failed", "user", req.UserAddress.Hex(), "err", err)
		return nil, err
	}
	s.logger.Info("served decryption request", "user", req.UserAddress.Hex(), "handles", len(handles))
	return &UserDecryptResponse{Results: results}, nil
}

// UserDecrypt serves req in process and opens the results with
// req.PrivateKey.
func (s *Service) UserDecrypt(ctx context.Context, req *UserDecryptRequest) (map[fhe.Handle]uint64, error) {
	resp, err := s.Seal(ctx, req)
	if err != nil {
		return nil, err
	}
	return Open(resp, req.PublicKey, req.PrivateKey)
}
