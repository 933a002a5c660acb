package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/propertyx/internal/contract"
	"github.com/alanyoungcy/propertyx/internal/domain"
	"github.com/alanyoungcy/propertyx/internal/platform/ipfs"
)

// DefaultVotePeriod is how long a new proposal stays open for voting.
const DefaultVotePeriod = 7 * 24 * time.Hour

// DocumentStore stores metadata documents by content identifier.
type DocumentStore interface {
	Put(ctx context.Context, cid string, doc []byte) error
}

// Notifier surfaces user-visible notifications.
type Notifier interface {
	Notify(ctx context.Context, address, title, message string) error
}

// TokenizeRequest describes a real-world asset submitted for tokenization.
type TokenizeRequest struct {
	AssetID     uint64
	AssetType   string
	Name        string
	Symbol      string
	Location    string
	Description string
	// Value is the requested value in display units.
	Value  float64
	Images []string
}

// assetDocument is the metadata document published for a tokenized asset.
type assetDocument struct {
	AssetType   string    `json:"assetType,omitempty"`
	AssetName   string    `json:"assetName"`
	Symbol      string    `json:"symbol,omitempty"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	Images      []string  `json:"images,omitempty"`
	Owner       string    `json:"owner"`
	Timestamp   time.Time `json:"timestamp"`
}

// TokenizationService submits assets for tokenization and records the
// community vote on them.
type TokenizationService struct {
	caller     ContractCaller
	sessions   SessionSource
	documents  DocumentStore
	proposals  domain.ProposalStore
	events     domain.EventPublisher
	notifier   Notifier
	contracts  Contracts
	votePeriod time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// TokenizationConfig holds a TokenizationService's collaborators. Events
// and Notifier are optional.
type TokenizationConfig struct {
	Caller     ContractCaller
	Sessions   SessionSource
	Documents  DocumentStore
	Proposals  domain.ProposalStore
	Events     domain.EventPublisher
	Notifier   Notifier
	Contracts  Contracts
	VotePeriod time.Duration
	Logger     *slog.Logger
}

// NewTokenizationService creates a TokenizationService.
func NewTokenizationService(cfg TokenizationConfig) *TokenizationService {
	period := cfg.VotePeriod
	if period <= 0 {
		period = DefaultVotePeriod
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenizationService{
		caller:     cfg.Caller,
		sessions:   cfg.Sessions,
		documents:  cfg.Documents,
		proposals:  cfg.Proposals,
		events:     cfg.Events,
		notifier:   cfg.Notifier,
		contracts:  cfg.Contracts,
		votePeriod: period,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
}

// AddForTokenization publishes the asset's metadata document, calls
// add-for-tokenization on the RWS contract, and records a proposal.
func (s *TokenizationService) AddForTokenization(ctx context.Context, req TokenizeRequest) (domain.TokenizationProposal, error) {
	owner, err := connectedAddress(s.sessions)
	if err != nil {
		return domain.TokenizationProposal{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.TokenizationProposal{}, fmt.Errorf("%w: asset name is required", domain.ErrInvalidInput)
	}
	value, err := toMicro(req.Value, "value")
	if err != nil {
		return domain.TokenizationProposal{}, err
	}

	now := s.now()
	doc, err := json.Marshal(assetDocument{
		AssetType:   req.AssetType,
		AssetName:   name,
		Symbol:      req.Symbol,
		Location:    req.Location,
		Description: req.Description,
		Images:      req.Images,
		Owner:       owner,
		Timestamp:   now,
	})
	if err != nil {
		return domain.TokenizationProposal{}, fmt.Errorf("tokenization_service: encode metadata: %w", err)
	}
	id, err := ipfs.ComputeCID(doc)
	if err != nil {
		return domain.TokenizationProposal{}, fmt.Errorf("tokenization_service: %w", err)
	}
	if err := s.documents.Put(ctx, id, doc); err != nil {
		return domain.TokenizationProposal{}, fmt.Errorf("tokenization_service: store metadata: %w", err)
	}
	uri := "ipfs://" + id

	res, err := s.caller.Call(ctx, newCall(s.contracts.RWS, "add-for-tokenization",
		contract.Uint(req.AssetID),
		contract.Text(name),
		contract.Uint(value),
		contract.Text(uri),
	))
	if err != nil {
		s.notify(ctx, owner, "Submission Failed", err.Error())
		return domain.TokenizationProposal{}, err
	}

	p := domain.TokenizationProposal{
		ID:             uuid.NewString(),
		AssetOwner:     owner,
		AssetID:        req.AssetID,
		AssetName:      name,
		Description:    req.Description,
		RequestedValue: value,
		IPFSData:       uri,
		VoteEnds:       now.Add(s.votePeriod),
		TxID:           res.TxID,
		CreatedAt:      now,
	}
	if err := s.proposals.Create(ctx, p); err != nil {
		return p, fmt.Errorf("tokenization_service: record proposal: %w", err)
	}

	s.logger.InfoContext(ctx, "tokenization_service: proposal created",
		slog.String("proposal_id", p.ID),
		slog.Uint64("asset_id", p.AssetID),
		slog.String("cid", id),
		slog.String("tx_id", p.TxID),
	)
	if s.events != nil {
		ev := domain.Event{
			Kind:    domain.EventProposalCreated,
			Address: owner,
			Data: map[string]any{
				"proposalId": p.ID,
				"assetId":    p.AssetID,
				"assetName":  p.AssetName,
				"ipfsData":   p.IPFSData,
				"txId":       p.TxID,
			},
		}
		if err := s.events.PublishEvent(ctx, domain.ChannelFor(ev.Kind), ev); err != nil {
			s.logger.WarnContext(ctx, "tokenization_service: publish event failed", slog.String("error", err.Error()))
		}
	}
	s.notify(ctx, owner, "Tokenization Submitted",
		"Your asset has been submitted for tokenization and awaits community approval.")
	return p, nil
}

// VoteTokenize calls vote-tokenize on the RWS contract and tallies the vote
// on the matching proposal. A vote on an asset with no recorded proposal
// is submitted but not tallied.
func (s *TokenizationService) VoteTokenize(ctx context.Context, owner string, assetID uint64, yes bool) (domain.TxResult, error) {
	voter, err := connectedAddress(s.sessions)
	if err != nil {
		return domain.TxResult{}, err
	}

	res, err := s.caller.Call(ctx, newCall(s.contracts.RWS, "vote-tokenize",
		contract.Principal(owner),
		contract.Uint(assetID),
		contract.Bool(yes),
	))
	if err != nil {
		return res, err
	}

	p, err := s.proposals.GetByAsset(ctx, owner, assetID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.logger.DebugContext(ctx, "tokenization_service: vote for untracked asset",
			slog.String("owner", owner),
			slog.Uint64("asset_id", assetID),
		)
		return res, nil
	case err != nil:
		return res, fmt.Errorf("tokenization_service: find proposal: %w", err)
	}
	if err := s.proposals.RecordVote(ctx, p.ID, voter, yes, res.TxID); err != nil {
		return res, fmt.Errorf("tokenization_service: record vote: %w", err)
	}
	return res, nil
}

// ListProposals returns recorded proposals, optionally only those still
// open for voting.
func (s *TokenizationService) ListProposals(ctx context.Context, activeOnly bool, opts domain.ListOpts) ([]domain.TokenizationProposal, error) {
	ps, err := s.proposals.List(ctx, activeOnly, opts)
	if err != nil {
		return nil, fmt.Errorf("tokenization_service: list proposals: %w", err)
	}
	return ps, nil
}

// GetProposal returns one proposal by id.
func (s *TokenizationService) GetProposal(ctx context.Context, id string) (domain.TokenizationProposal, error) {
	return s.proposals.GetByID(ctx, id)
}

func (s *TokenizationService) notify(ctx context.Context, address, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, address, title, message); err != nil {
		s.logger.WarnContext(ctx, "tokenization_service: notify failed", slog.String("error", err.Error()))
	}
}
