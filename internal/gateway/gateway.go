// Package gateway reveals a participant's encrypted ledger values to that
// participant. It never talks to the ledger: callers pass the handles they
// read, and the gateway obtains plaintexts from the relayer under a fresh
// signed authorization.
package gateway

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"io"
	"time"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"onchaindice/internal/eip712"
	"onchaindice/internal/fhe"
	"onchaindice/internal/platform/config"
	"onchaindice/internal/relayer"
)

type Field string

const (
	FieldBalance Field = "balance"
	FieldDice    Field = "dice"
	FieldGuess   Field = "guess"
	FieldOutcome Field = "outcome"
)

type Status string

const (
	StatusOK                 Status = "ok"
	StatusNothingToDecrypt   Status = "nothing_to_decrypt"
	StatusNoSigner           Status = "no_signer"
	StatusKeygenFailed       Status = "keygen_failed"
	StatusSignatureRejected  Status = "signature_rejected"
	StatusDenied             Status = "denied"
	StatusRelayerUnavailable Status = "relayer_unavailable"
)

// Handles is the set a caller wants revealed. Empty handles are skipped.
type Handles struct {
	Balance fhe.Handle
	Dice    fhe.Handle
	Guess   fhe.Handle
	Outcome fhe.Handle
}

func (h Handles) byField() []struct {
	field  Field
	handle fhe.Handle
} {
	return []struct {
		field  Field
		handle fhe.Handle
	}{
		{FieldBalance, h.Balance},
		{FieldDice, h.Dice},
		{FieldGuess, h.Guess},
		{FieldOutcome, h.Outcome},
	}
}

// Result reports a reveal. Err carries the underlying cause for every
// status other than StatusOK and StatusNothingToDecrypt.
type Result struct {
	Status Status
	Values map[Field]uint64
	Err    error
}

type Config struct {
	Validity time.Duration `env:"GATEWAY_VALIDITY" envDefault:"24h"`
	// Backdate shifts the window start into the past to absorb clock skew
	// between client and relayer.
	Backdate time.Duration `env:"GATEWAY_BACKDATE" envDefault:"1m"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type Option func(*Gateway)

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

func WithRand(r io.Reader) Option {
	return func(g *Gateway) { g.rand = r }
}

func WithLogger(l log.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

func WithConfig(cfg Config) Option {
	return func(g *Gateway) { g.cfg = cfg }
}

type Gateway struct {
	relayer relayer.Relayer
	signer  Signer
	domain  eip712.Domain
	cfg     Config
	now     func() time.Time
	rand    io.Reader
	logger  log.Logger
	tracer  trace.Tracer
}

// New builds a gateway for the ledger identified by domain. signer may be
// nil, in which case every reveal with eligible handles reports
// StatusNoSigner.
func New(r relayer.Relayer, signer Signer, domain eip712.Domain, opts ...Option) *Gateway {
	g := &Gateway{
		relayer: r,
		signer:  signer,
		domain:  domain,
		cfg:     Config{Validity: 24 * time.Hour, Backdate: time.Minute},
		now:     time.Now,
		rand:    rand.Reader,
		logger:  log.NewNopLogger(),
		tracer:  otel.Tracer("onchaindice/gateway"),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Reveal decrypts the non-empty handles in hs for the signer.
func (g *Gateway) Reveal(ctx context.Context, hs Handles) Result {
	ctx, span := g.tracer.Start(ctx, "gateway.Reveal")
	defer span.End()

	res := g.reveal(ctx, hs)
	span.SetAttributes(attribute.String("status", string(res.Status)), attribute.Int("values", len(res.Values)))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, string(res.Status))
		g.logger.Debug("reveal failed", "status", res.Status, "err", res.Err)
	}
	return res
}

func (g *Gateway) reveal(ctx context.Context, hs Handles) Result {
	fields := map[fhe.Handle][]Field{}
	var pairsOrder []fhe.Handle
	for _, e := range hs.byField() {
		if e.handle.IsEmpty() {
			continue
		}
		if _, ok := fields[e.handle]; !ok {
			pairsOrder = append(pairsOrder, e.handle)
		}
		fields[e.handle] = append(fields[e.handle], e.field)
	}
	if len(pairsOrder) == 0 {
		return Result{Status: StatusNothingToDecrypt}
	}
	if g.signer == nil {
		return Result{Status: StatusNoSigner, Err: errors.New("no signer configured")}
	}

	kp, err := GenerateKeypair(g.rand)
	if err != nil {
		return Result{Status: StatusKeygenFailed, Err: err}
	}
	contract := g.domain.VerifyingContract
	start := g.now().Add(-g.cfg.Backdate).Unix()
	if start < 0 {
		start = 0
	}
	auth := eip712.Authorization{
		PublicKey:         kp.PublicKey[:],
		ContractAddresses: []common.Address{contract},
		StartTimestamp:    uint64(start),
		DurationSeconds:   uint64((g.cfg.Validity + g.cfg.Backdate) / time.Second),
	}
	sig, err := g.signer.SignTypedData(ctx, g.domain, auth)
	if err != nil {
		return Result{Status: StatusSignatureRejected, Err: err}
	}

	req := &relayer.UserDecryptRequest{
		PublicKey:         kp.PublicKey[:],
		PrivateKey:        kp.PrivateKey[:],
		Signature:         sig,
		ContractAddresses: auth.ContractAddresses,
		UserAddress:       g.signer.Address(),
		StartTimestamp:    auth.StartTimestamp,
		DurationSeconds:   auth.DurationSeconds,
	}
	for _, h := range pairsOrder {
		req.HandleContractPairs = append(req.HandleContractPairs, relayer.HandleContractPair{Handle: h, ContractAddress: contract})
	}

	plain, err := g.relayer.UserDecrypt(ctx, req)
	if err != nil {
		return Result{Status: relayerStatus(err), Err: err}
	}

	values := make(map[Field]uint64, len(fields))
	for h, fs := range fields {
		v, ok := plain[h]
		if !ok {
			continue
		}
		for _, f := range fs {
			values[f] = v
		}
	}
	return Result{Status: StatusOK, Values: values}
}

func relayerStatus(err error) Status {
	switch {
	case errors.Is(err, relayer.ErrBadSignature):
		return StatusSignatureRejected
	case errors.Is(err, relayer.ErrNotAllowed),
		errors.Is(err, relayer.ErrContractNotCovered),
		errors.Is(err, relayer.ErrWindow),
		errors.Is(err, relayer.ErrInvalidRequest):
		return StatusDenied
	default:
		return StatusRelayerUnavailable
	}
}

func ethAddress(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
