// Package ibkr downloads statements from the Interactive Brokers Flex web service.
package ibkr

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
)

// Flex error codes that mean "statement not ready yet, try again".
var retryableCodes = map[int]bool{1018: true, 1019: true, 1021: true}

// Client defines the interface for fetching statements from Interactive Brokers.
// This interface enables dependency injection and testing with mock implementations.
type Client interface {
	FetchStatement(ctx context.Context) (Report, error)
}

// FlexClient requests a Flex query and polls until the statement is generated.
type FlexClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	queryID    string
	log        zerolog.Logger

	// InitialBackoff, MaxBackoff and MaxAttempts bound the polling loop.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int
}

// NewFlexClient creates a client for the Flex web service rooted at baseURL.
func NewFlexClient(baseURL, token, queryID string, log zerolog.Logger) *FlexClient {
	return &FlexClient{
		httpClient:     &http.Client{Timeout: 60 * time.Second},
		baseURL:        strings.TrimRight(baseURL, "/"),
		token:          token,
		queryID:        queryID,
		log:            log.With().Str("component", "ibkr_flex").Logger(),
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		MaxAttempts:    10,
	}
}

// FetchStatement runs the configured query and returns the statement as CSV.
func (c *FlexClient) FetchStatement(ctx context.Context) (Report, error) {
	if c.token == "" || c.queryID == "" {
		return Report{}, fmt.Errorf("%w: token and query id are required", apperrors.ErrFailedToGetFlexReport)
	}

	request, err := c.sendRequest(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %w", apperrors.ErrFailedToGetFlexReport, err)
	}

	data, err := c.getStatement(ctx, request)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %w", apperrors.ErrFailedToGetFlexReport, err)
	}

	report := Report{
		ReferenceCode: request.ReferenceCode,
		FileName:      fmt.Sprintf("flex-%s-%s.csv", c.queryID, request.ReferenceCode),
		ImportedAt:    time.Now().UTC(),
	}

	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '<' {
		var statement FlexQueryResponse
		if err := xml.Unmarshal(data, &statement); err != nil {
			return Report{}, fmt.Errorf("%w: invalid statement: %w", apperrors.ErrFailedToGetFlexReport, err)
		}
		report.Data, report.Trades, err = statement.TradesCSV()
		if err != nil {
			return Report{}, fmt.Errorf("%w: %w", apperrors.ErrFailedToGetFlexReport, err)
		}
	} else {
		report.Data = data
	}

	c.log.Info().Str("reference", report.ReferenceCode).Int("bytes", len(report.Data)).Msg("flex statement downloaded")
	return report, nil
}

func (c *FlexClient) sendRequest(ctx context.Context) (FlexRequestResponse, error) {
	queryURL := fmt.Sprintf("%s/SendRequest?t=%s&q=%s&v=3", c.baseURL, url.QueryEscape(c.token), url.QueryEscape(c.queryID))

	data, err := c.get(ctx, queryURL)
	if err != nil {
		return FlexRequestResponse{}, err
	}

	var response FlexRequestResponse
	if err := xml.Unmarshal(data, &response); err != nil {
		return FlexRequestResponse{}, fmt.Errorf("invalid request response: %w", err)
	}
	if response.ErrorCode != nil {
		return response, flexError(response)
	}
	if !strings.EqualFold(response.Status, "success") || response.ReferenceCode == "" {
		return response, fmt.Errorf("request status %q", response.Status)
	}
	if response.URL == "" {
		response.URL = c.baseURL + "/GetStatement"
	}
	return response, nil
}

// getStatement polls with exponential backoff while the service reports the statement
// is still being generated.
func (c *FlexClient) getStatement(ctx context.Context, request FlexRequestResponse) ([]byte, error) {
	queryURL := fmt.Sprintf("%s?t=%s&q=%s&v=3", request.URL, url.QueryEscape(c.token), url.QueryEscape(request.ReferenceCode))

	backoff := c.InitialBackoff
	for attempt := 0; attempt < c.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.MaxBackoff {
				backoff = c.MaxBackoff
			}
		}

		data, err := c.get(ctx, queryURL)
		if err != nil {
			return nil, err
		}

		var errResponse FlexRequestResponse
		if xml.Unmarshal(data, &errResponse) != nil || errResponse.ErrorCode == nil {
			return data, nil
		}
		if retryableCodes[*errResponse.ErrorCode] {
			c.log.Debug().Int("attempt", attempt+1).Int("code", *errResponse.ErrorCode).Msg("statement not ready")
			continue
		}
		return nil, flexError(errResponse)
	}
	return nil, fmt.Errorf("statement not ready after %d attempts", c.MaxAttempts)
}

func (c *FlexClient) get(ctx context.Context, queryURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func flexError(r FlexRequestResponse) error {
	msg := ""
	if r.ErrorMessage != nil {
		msg = *r.ErrorMessage
	}
	return fmt.Errorf("ibkr error %d: %s", *r.ErrorCode, msg)
}

// flexColumns are the IBKR trade export headers the field mapper reads.
var flexColumns = []string{
	"Account", "Asset Category", "Currency", "Symbol", "Description", "Date/Time", "Settle Date",
	"Quantity", "T. Price", "Proceeds", "Comm/Fee", "Basis", "Realized P/L", "Code",
	"Multiplier", "IBOrderID", "IBExecID",
}

// TradesCSV renders the execution-level trades of every statement as an IBKR trade export.
// Summary rows (levelOfDetail other than EXECUTION) are skipped when the detail is present.
func (r FlexQueryResponse) TradesCSV() ([]byte, int, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(flexColumns); err != nil {
		return nil, 0, err
	}

	count := 0
	for _, st := range r.FlexStatements.FlexStatement {
		for _, t := range st.Trades.Trade {
			if t.LevelOfDetail != "" && !strings.EqualFold(t.LevelOfDetail, "EXECUTION") {
				continue
			}
			account := t.AccountID
			if account == "" {
				account = st.AccountID
			}
			when := t.DateTime
			if when == "" {
				when = t.TradeDate
			}
			execID := t.IBExecID
			if execID == "" {
				execID = t.TradeID
			}
			code := ""
			switch strings.ToUpper(t.OpenCloseIndicator) {
			case "O":
				code = "O"
			case "C":
				code = "C"
			}
			row := []string{
				account, t.AssetCategory, t.Currency, t.Symbol, t.Description, when, t.SettleDate,
				t.Quantity, t.TradePrice, t.Proceeds, t.IBCommission, t.CostBasis, t.FifoPnlRealized, code,
				t.Multiplier, t.IBOrderID, execID,
			}
			if err := w.Write(row); err != nil {
				return nil, 0, err
			}
			count++
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), count, nil
}
