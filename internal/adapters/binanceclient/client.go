package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"tradejournal/internal/domain"
	"tradejournal/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	// Binance caps both account-trade and income pages at 1000 entries.
	pageLimit = 1000

	// The account-trade endpoint rejects startTime/endTime spans above 7 days,
	// so time-anchored requests are sliced to fit.
	maxAnchorSpan = 7 * 24 * time.Hour
)

// Client implements the ports.FillSource interface using the go-binance
// futures client.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: account trade history requires API credentials", ports.ErrConfigurationError)
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using the global futures.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
	}

	return &Client{futuresClient: client, logger: cfg.Logger}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var finalErr error
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Invalid signature
			mappedErr = ports.ErrAuthenticationFailed
		case -2014, -2015: // API-key format invalid / bad key, IP or permissions
			mappedErr = ports.ErrInvalidAPIKeys
		default:
			if apiErr.Code <= -1100 && apiErr.Code >= -1199 {
				mappedErr = ports.ErrInvalidRequest
			} else {
				mappedErr = ports.ErrExchangeUnavailable
			}
		}
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// SetServerTime synchronizes the client's time with the server's time.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	_, err := c.futuresClient.NewSetServerTimeService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// Ping checks connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	return nil
}

// FetchFills retrieves all account fills for a symbol executed in [start, end),
// paging with fromId the way the trades endpoint expects. The endpoint returns
// fills in id order, which is also time order per symbol.
func (c *Client) FetchFills(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Fill, error) {
	op := "FetchFills"
	c.logger.Debug(ctx, "Fetching account fills", map[string]interface{}{
		"symbol": symbol, "start": start, "end": end,
	})

	var all []*domain.Fill
	var fromID int64
	anchored := false
	slices := anchorSlices(start, end, maxAnchorSpan)
	if len(slices) == 0 {
		return nil, nil
	}
	slice := 0

	for {
		svc := c.futuresClient.NewListAccountTradeService().
			Symbol(symbol).
			Limit(pageLimit)
		if !anchored {
			// startTime/endTime cannot be combined with fromId, and the
			// endpoint caps the span; the anchor request walks the slices
			// until a trade is found, then fromId pages carry on from it.
			svc = svc.StartTime(slices[slice].start.UnixMilli()).EndTime(slices[slice].end.UnixMilli())
		} else {
			svc = svc.FromID(fromID)
		}

		page, err := svc.Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(page) == 0 {
			if anchored {
				break
			}
			slice++
			if slice >= len(slices) {
				break
			}
			continue
		}

		done := false
		for _, t := range page {
			executedAt := time.UnixMilli(t.Time).UTC()
			if executedAt.Before(start) {
				continue
			}
			if !executedAt.Before(end) {
				done = true
				break
			}
			fill, err := translateAccountTrade(t)
			if err != nil {
				return nil, c.handleError(ctx, err, op)
			}
			all = append(all, fill)
		}
		if done || (anchored && len(page) < pageLimit) {
			break
		}
		fromID = page[len(page)-1].ID + 1
		anchored = true
	}

	c.logger.Info(ctx, "Fetched account fills", map[string]interface{}{"symbol": symbol, "count": len(all)})
	return all, nil
}

// TradedSymbols returns the distinct symbols with realized trading activity in
// [start, end), discovered from the income history (one paginated scan instead
// of probing the trade endpoint per symbol).
func (c *Client) TradedSymbols(ctx context.Context, start, end time.Time) ([]string, error) {
	op := "TradedSymbols"
	symbols := make(map[string]struct{})
	from := start.UnixMilli()
	endMs := end.UnixMilli()

	for {
		page, err := c.futuresClient.NewGetIncomeHistoryService().
			StartTime(from).
			EndTime(endMs).
			Limit(pageLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(page) == 0 {
			break
		}
		for _, income := range page {
			if income.Symbol != "" && (income.IncomeType == "REALIZED_PNL" || income.IncomeType == "COMMISSION") {
				symbols[income.Symbol] = struct{}{}
			}
		}
		if len(page) < pageLimit {
			break
		}
		last := page[len(page)-1].Time
		if last <= from {
			break
		}
		from = last + 1
	}

	out := make([]string, 0, len(symbols))
	for s := range symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	c.logger.Info(ctx, "Discovered traded symbols", map[string]interface{}{"count": len(out)})
	return out, nil
}

type timeSlice struct {
	start, end time.Time
}

// anchorSlices cuts [start, end) into consecutive slices no longer than
// maxSpan, suitable for time-anchored requests against endpoints that cap the
// startTime/endTime span.
func anchorSlices(start, end time.Time, maxSpan time.Duration) []timeSlice {
	var out []timeSlice
	for cur := start; cur.Before(end); cur = cur.Add(maxSpan) {
		sliceEnd := cur.Add(maxSpan)
		if sliceEnd.After(end) {
			sliceEnd = end
		}
		out = append(out, timeSlice{start: cur, end: sliceEnd})
	}
	return out
}

// translateAccountTrade converts a Binance futures account trade into a
// domain fill. Execution ids are the exchange trade ids rendered as strings.
func translateAccountTrade(t *futures.AccountTrade) (*domain.Fill, error) {
	qty, err := decimal.NewFromString(t.Quantity)
	if err != nil {
		return nil, fmt.Errorf("could not parse quantity %q for trade %d: %w", t.Quantity, t.ID, err)
	}
	price, err := decimal.NewFromString(t.Price)
	if err != nil {
		return nil, fmt.Errorf("could not parse price %q for trade %d: %w", t.Price, t.ID, err)
	}
	fee, err := decimal.NewFromString(t.Commission)
	if err != nil {
		return nil, fmt.Errorf("could not parse commission %q for trade %d: %w", t.Commission, t.ID, err)
	}
	reportedPnL, err := decimal.NewFromString(t.RealizedPnl)
	if err != nil {
		return nil, fmt.Errorf("could not parse realized pnl %q for trade %d: %w", t.RealizedPnl, t.ID, err)
	}

	return &domain.Fill{
		ExecutionID: strconv.FormatInt(t.ID, 10),
		Symbol:      t.Symbol,
		Side:        domain.OrderSide(t.Side),
		Quantity:    qty,
		Price:       price,
		Fee:         fee,
		FeeAsset:    t.CommissionAsset,
		Time:        time.UnixMilli(t.Time).UTC(),
		ReportedPnL: reportedPnL,
	}, nil
}
