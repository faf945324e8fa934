package venue

import (
	"context"

	"github.com/shopspring/decimal"

	"calc/internal/ledger"
)

// QuoteRequest asks Thorchain for a streaming swap quote.
type QuoteRequest struct {
	FromAsset         string          `json:"from_asset"`
	ToAsset           string          `json:"to_asset"`
	Amount            decimal.Decimal `json:"amount"`
	StreamingInterval uint64          `json:"streaming_interval"`
	StreamingQuantity uint64          `json:"streaming_quantity"`
	Destination       string          `json:"destination,omitempty"`
	RefundAddress     string          `json:"refund_address,omitempty"`
	Affiliate         []string        `json:"affiliate,omitempty"`
	AffiliateBps      []uint64        `json:"affiliate_bps,omitempty"`
}

// QuoteFees is the fee breakdown of a quote.
type QuoteFees struct {
	Asset       string          `json:"asset"`
	Total       decimal.Decimal `json:"total"`
	SlippageBps uint64          `json:"slippage_bps"`
}

// Quote is Thorchain's answer to a QuoteRequest.
type Quote struct {
	ExpectedAmountOut      decimal.Decimal `json:"expected_amount_out"`
	RecommendedMinAmountIn decimal.Decimal `json:"recommended_min_amount_in"`
	Memo                   string          `json:"memo"`
	StreamingSwapBlocks    uint64          `json:"streaming_swap_blocks"`
	MaxStreamingQuantity   uint64          `json:"max_streaming_quantity"`
	Fees                   *QuoteFees      `json:"fees,omitempty"`
}

// Thorchain quotes cross-chain swaps.
type Thorchain interface {
	QuoteSwap(ctx context.Context, req QuoteRequest) (Quote, error)
}

// DepositSwapMsg submits coins to Thorchain with the swap memo.
func DepositSwapMsg(memo string, coins ledger.Coins) ledger.Msg {
	return ledger.DepositMsg(memo, coins)
}
