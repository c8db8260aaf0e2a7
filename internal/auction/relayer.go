package auction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rawblock/swap-resolver/pkg/chain"
	"github.com/rawblock/swap-resolver/pkg/models"
)

// AuctionDTO is the relayer's wire representation of an active
// auction: every field the resolver needs to evaluate and execute the
// underlying order is included here rather than requiring a second
// round-trip to a separate order-detail endpoint.
type AuctionDTO struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	StartRate float64   `json:"startRate"`
	EndRate   float64   `json:"endRate"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Status    string    `json:"status"`

	Maker              string `json:"maker"`
	SourceChainID      string `json:"sourceChainId"`
	SourceToken        string `json:"sourceToken"`
	SourceAddress      string `json:"sourceAddress"`
	SourceAmount       string `json:"sourceAmount"`
	SourceTimelock     int64  `json:"sourceTimelock"`
	DestChainID        string `json:"destinationChainId"`
	DestToken          string `json:"destinationToken"`
	DestAddress        string `json:"destinationAddress"`
	DestAmount         string `json:"destinationAmount"`
	DestTimelock       int64  `json:"destinationTimelock"`
	SecretHash         string `json:"secretHash"`
}

func (d AuctionDTO) validate() error {
	if d.ID == "" {
		return fmt.Errorf("auction: missing id in relayer response")
	}
	if d.OrderID == "" {
		return fmt.Errorf("auction: missing orderId in relayer response")
	}
	if !d.EndTime.After(d.StartTime) {
		return fmt.Errorf("auction: endTime must be after startTime")
	}
	return nil
}

// ToOrder converts the relayer's wire order fields into the
// resolver's CrossChainSwapState, validating amounts and the secret
// hash explicitly rather than trusting the wire representation.
func (d AuctionDTO) ToOrder() (models.CrossChainSwapState, error) {
	srcAmount, err := chain.NewAmountFromString(d.SourceAmount)
	if err != nil {
		return models.CrossChainSwapState{}, fmt.Errorf("auction: order %s: source amount: %w", d.OrderID, err)
	}
	dstAmount, err := chain.NewAmountFromString(d.DestAmount)
	if err != nil {
		return models.CrossChainSwapState{}, fmt.Errorf("auction: order %s: destination amount: %w", d.OrderID, err)
	}
	secretHash, err := chain.HashFromHex(d.SecretHash)
	if err != nil {
		return models.CrossChainSwapState{}, fmt.Errorf("auction: order %s: secret hash: %w", d.OrderID, err)
	}

	return models.CrossChainSwapState{
		OrderID: d.OrderID,
		Maker:   chain.Address(d.Maker),
		Source: models.ChainLeg{
			ChainID: chain.ID(d.SourceChainID),
			Token:   chain.Token(d.SourceToken),
			Address: chain.Address(d.SourceAddress),
		},
		Destination: models.ChainLeg{
			ChainID: chain.ID(d.DestChainID),
			Token:   chain.Token(d.DestToken),
			Address: chain.Address(d.DestAddress),
		},
		Amounts:    models.Amounts{Source: srcAmount, Destination: dstAmount},
		Timelocks:  models.Timelocks{Source: d.SourceTimelock, Destination: d.DestTimelock},
		SecretHash: secretHash,
		Status:     models.StatusDiscovered,
	}, nil
}

// BidRequest is the body POSTed to /api/auctions/{id}/bids.
type BidRequest struct {
	Resolver  string    `json:"resolver"`
	Price     float64   `json:"price"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// BidResponseDTO is the relayer's accepted-bid acknowledgement.
type BidResponseDTO struct {
	BidID       string    `json:"bidId"`
	OrderID     string    `json:"orderId"`
	Accepted    bool      `json:"accepted"`
	SubmittedAt time.Time `json:"submittedAt"`
}

func (d BidResponseDTO) validate() error {
	if d.BidID == "" {
		return fmt.Errorf("auction: missing bidId in bid response")
	}
	return nil
}

// ResultDTO is the relayer's settlement outcome for an auction.
type ResultDTO struct {
	Status         string `json:"status"` // "settled" or "pending"
	WinningBidID   string `json:"winningBidId,omitempty"`
	WinnerResolver string `json:"winnerResolver,omitempty"`
}

// ErrNotSettled is returned by GetResult when the relayer answers 404:
// a 404 means the auction hasn't settled yet, not that it's missing.
var ErrNotSettled = fmt.Errorf("auction: not settled yet")

// RelayerClient is the resolver's view of the relayer HTTP contract,
// kept as an interface so production code can run against
// HTTPRelayerClient while tests run against a deterministic fake.
type RelayerClient interface {
	ListActiveAuctions(ctx context.Context) ([]AuctionDTO, error)
	CurrentPrice(ctx context.Context, auctionID string) (float64, error)
	Status(ctx context.Context, auctionID string) (string, error)
	GetResult(ctx context.Context, auctionID string) (ResultDTO, error)
	SubmitBid(ctx context.Context, auctionID string, req BidRequest) (BidResponseDTO, error)
}

// HTTPRelayerClient is the production RelayerClient, speaking JSON over
// net/http to the relayer's documented endpoints.
type HTTPRelayerClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPRelayerClient constructs a client with a bounded request
// timeout so a stalled relayer can't hang the auction loop forever.
func NewHTTPRelayerClient(baseURL string, timeout time.Duration) *HTTPRelayerClient {
	return &HTTPRelayerClient{BaseURL: baseURL, HTTP: &http.Client{Timeout: timeout}}
}

func (c *HTTPRelayerClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("auction: build request: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("auction: relayer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotSettled
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("auction: relayer returned status %d for %s", resp.StatusCode, path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("auction: decode relayer response: %w", err)
	}
	return nil
}

func (c *HTTPRelayerClient) ListActiveAuctions(ctx context.Context) ([]AuctionDTO, error) {
	var dtos []AuctionDTO
	if err := c.get(ctx, "/api/auctions/active", &dtos); err != nil {
		return nil, err
	}
	for _, d := range dtos {
		if err := d.validate(); err != nil {
			return nil, err
		}
	}
	return dtos, nil
}

func (c *HTTPRelayerClient) CurrentPrice(ctx context.Context, auctionID string) (float64, error) {
	var body struct {
		Price float64 `json:"price"`
	}
	if err := c.get(ctx, fmt.Sprintf("/api/auctions/%s/price", auctionID), &body); err != nil {
		return 0, err
	}
	return body.Price, nil
}

func (c *HTTPRelayerClient) Status(ctx context.Context, auctionID string) (string, error) {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, fmt.Sprintf("/api/auctions/%s/status", auctionID), &body); err != nil {
		return "", err
	}
	if body.Status == "" {
		return "", fmt.Errorf("auction: missing status in relayer response")
	}
	return body.Status, nil
}

func (c *HTTPRelayerClient) GetResult(ctx context.Context, auctionID string) (ResultDTO, error) {
	var dto ResultDTO
	if err := c.get(ctx, fmt.Sprintf("/api/auctions/%s/result", auctionID), &dto); err != nil {
		return ResultDTO{}, err
	}
	return dto, nil
}

func (c *HTTPRelayerClient) SubmitBid(ctx context.Context, auctionID string, req BidRequest) (BidResponseDTO, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return BidResponseDTO{}, fmt.Errorf("auction: marshal bid request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/auctions/%s/bids", c.BaseURL, auctionID), bytes.NewReader(payload))
	if err != nil {
		return BidResponseDTO{}, fmt.Errorf("auction: build bid request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return BidResponseDTO{}, fmt.Errorf("auction: submit bid failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return BidResponseDTO{}, fmt.Errorf("auction: relayer rejected bid with status %d", resp.StatusCode)
	}

	var dto BidResponseDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return BidResponseDTO{}, fmt.Errorf("auction: decode bid response: %w", err)
	}
	if err := dto.validate(); err != nil {
		return BidResponseDTO{}, err
	}
	return dto, nil
}

// FakeRelayerClient is a deterministic, in-memory RelayerClient for
// tests: every method reads from/writes to plain fields instead of
// making network calls.
type FakeRelayerClient struct {
	Auctions []AuctionDTO
	Prices   map[string]float64
	Statuses map[string]string
	Results  map[string]ResultDTO
	Bids     []BidRequest

	SubmitErr error
}

func NewFakeRelayerClient() *FakeRelayerClient {
	return &FakeRelayerClient{
		Prices:   make(map[string]float64),
		Statuses: make(map[string]string),
		Results:  make(map[string]ResultDTO),
	}
}

func (f *FakeRelayerClient) ListActiveAuctions(ctx context.Context) ([]AuctionDTO, error) {
	return f.Auctions, nil
}

func (f *FakeRelayerClient) CurrentPrice(ctx context.Context, auctionID string) (float64, error) {
	return f.Prices[auctionID], nil
}

func (f *FakeRelayerClient) Status(ctx context.Context, auctionID string) (string, error) {
	return f.Statuses[auctionID], nil
}

func (f *FakeRelayerClient) GetResult(ctx context.Context, auctionID string) (ResultDTO, error) {
	r, ok := f.Results[auctionID]
	if !ok {
		return ResultDTO{}, ErrNotSettled
	}
	return r, nil
}

func (f *FakeRelayerClient) SubmitBid(ctx context.Context, auctionID string, req BidRequest) (BidResponseDTO, error) {
	if f.SubmitErr != nil {
		return BidResponseDTO{}, f.SubmitErr
	}
	f.Bids = append(f.Bids, req)
	return BidResponseDTO{BidID: "fake-" + auctionID, OrderID: auctionID, Accepted: true, SubmittedAt: time.Now()}, nil
}
