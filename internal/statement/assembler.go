package statement

import (
	"fmt"
	"strings"
	"time"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/broker"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/occ"
)

// Section names of an activity statement.
const (
	SectionStatement      = "Statement"
	SectionAccount        = "Account Information"
	SectionNetAssetValue  = "Net Asset Value"
	SectionOpenPositions  = "Open Positions"
	SectionTrades         = "Trades"
	SectionInstrumentInfo = "Financial Instrument Information"
)

// Options tune Assemble.
type Options struct {
	// AccountID is used when the statement has no Account Information section.
	AccountID string
	// StatementDate is used when the statement header carries no usable date.
	StatementDate time.Time
	Corrections   UnitCorrections
}

type instrument struct {
	description string
	multiplier  float64
	expiry      string
	strike      string
	right       string
	underlying  string
}

// Assemble builds the account, positions, raw trades and option trades of one statement.
// Problems with individual rows are reported in the result; Assemble itself never fails.
func Assemble(sections map[string]*model.RawSection, opts Options) *model.ImportResult {
	if opts.Corrections == nil {
		opts.Corrections = DefaultUnitCorrections()
	}

	result := &model.ImportResult{
		Positions:    []model.Position{},
		Trades:       []model.RawTradeRow{},
		OptionTrades: []model.Trade{},
		Errors:       []model.ValidationIssue{},
		Warnings:     []model.ValidationIssue{},
	}

	result.StatementDate = statementDate(sections[SectionStatement], opts.StatementDate)
	result.Account = assembleAccount(sections[SectionAccount], sections[SectionNetAssetValue])

	accountID := opts.AccountID
	if result.Account != nil && result.Account.AccountID != "" {
		accountID = result.Account.AccountID
	}

	instruments := instrumentIndex(sections[SectionInstrumentInfo])
	result.Positions = assemblePositions(sections[SectionOpenPositions], instruments, accountID, result.StatementDate)
	result.Trades = assembleTrades(sections[SectionTrades])

	for _, p := range result.Positions {
		if p.AssetCategory != model.AssetOption {
			continue
		}
		trade, err := optionPositionTrade(p, instruments[p.Symbol], opts.Corrections)
		if err != nil {
			result.Errors = append(result.Errors, model.ValidationIssue{
				Field:    "symbol",
				Code:     "option_symbol",
				Severity: model.SeverityError,
				Message:  fmt.Sprintf("open position %q: %v", p.Symbol, err),
			})
			continue
		}
		result.OptionTrades = append(result.OptionTrades, trade)
	}

	return result
}

// assembleAccount reads the Field Name/Field Value rows of the account section and the
// total of the net asset value section.
func assembleAccount(section, nav *model.RawSection) *model.Account {
	if section == nil {
		return nil
	}

	fields := make(map[string]string)
	for _, row := range section.Rows {
		if len(row.Cells) < 2 {
			continue
		}
		fields[row.Cells[0]] = row.Cells[1]
	}

	account := &model.Account{
		AccountID:    fields["Account"],
		AccountName:  fields["Name"],
		AccountType:  fields["Account Type"],
		BaseCurrency: fields["Base Currency"],
	}
	if nav != nil {
		for _, row := range nav.Rows {
			if nav.Value(row, "Asset Class") != "Total" {
				continue
			}
			if v, err := broker.ParseAmount(nav.Value(row, "Current Total")); err == nil {
				account.Balance = model.Float(v)
			}
		}
	}
	return account
}

// statementDate prefers the "Period" end date, then "WhenGenerated", then the fallback.
func statementDate(section *model.RawSection, fallback time.Time) time.Time {
	if section != nil {
		fields := make(map[string]string)
		for _, row := range section.Rows {
			if len(row.Cells) >= 2 {
				fields[row.Cells[0]] = row.Cells[1]
			}
		}
		if period := fields["Period"]; period != "" {
			end := period
			if i := strings.LastIndex(period, " - "); i >= 0 {
				end = period[i+3:]
			}
			if t, err := time.Parse("January 2, 2006", strings.TrimSpace(end)); err == nil {
				return t
			}
		}
		if generated := fields["WhenGenerated"]; len(generated) >= 10 {
			if t, err := time.Parse("2006-01-02", generated[:10]); err == nil {
				return t
			}
		}
	}
	if fallback.IsZero() {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	return fallback
}

func instrumentIndex(section *model.RawSection) map[string]instrument {
	index := make(map[string]instrument)
	if section == nil {
		return index
	}
	for _, row := range section.Rows {
		if row.Kind != model.RowKindData {
			continue
		}
		symbol := section.Value(row, "Symbol")
		if symbol == "" {
			continue
		}
		mult, err := broker.ParseAmount(section.Value(row, "Multiplier"))
		if err != nil {
			mult = 0
		}
		index[symbol] = instrument{
			description: section.Value(row, "Description"),
			multiplier:  mult,
			expiry:      section.Value(row, "Expiry"),
			strike:      section.Value(row, "Strike"),
			right:       section.Value(row, "Type"),
			underlying:  section.Value(row, "Underlying"),
		}
	}
	return index
}

func assemblePositions(section *model.RawSection, instruments map[string]instrument, accountID string, asOf time.Time) []model.Position {
	positions := []model.Position{}
	if section == nil {
		return positions
	}

	for _, row := range section.Rows {
		if row.Kind == model.RowKindTotal || row.Kind == model.RowKindSubTotal {
			continue
		}
		category := section.Value(row, "Asset Category")
		if strings.HasPrefix(category, "Total") {
			continue
		}
		// Lot rows repeat the summary row they belong to.
		if d := section.Value(row, "DataDiscriminator"); d != "" && d != "Summary" {
			continue
		}
		symbol := section.Value(row, "Symbol")
		if symbol == "" {
			continue
		}

		p := model.Position{
			AccountID:     accountID,
			Symbol:        symbol,
			AssetCategory: positionCategory(category, symbol),
			Currency:      section.Value(row, "Currency"),
			Quantity:      amount(section.Value(row, "Quantity")),
			Multiplier:    amount(section.Value(row, "Mult")),
			CostPrice:     amount(section.Value(row, "Cost Price")),
			CostBasis:     amount(section.Value(row, "Cost Basis")),
			MarketPrice:   amount(section.Value(row, "Close Price")),
			MarketValue:   amount(section.Value(row, "Value")),
			UnrealizedPL:  amount(section.Value(row, "Unrealized P/L")),
			RealizedPL:    amount(section.Value(row, "Realized P/L")),
			StatementDate: asOf,
		}
		if info, ok := instruments[symbol]; ok {
			p.Description = info.description
			if p.Multiplier == 0 {
				p.Multiplier = info.multiplier
			}
		}
		if p.Multiplier == 0 {
			p.Multiplier = 1
		}
		if p.AssetCategory == model.AssetOption {
			if c, err := occ.ParseOptionSymbol(symbol); err == nil {
				p.PutCall = c.PutCall
				p.Strike = model.Float(c.Strike)
				p.Expiry = model.Time(c.Expiry)
			}
		}
		p.ID = model.NewRecordID("position", accountID, symbol)
		positions = append(positions, p)
	}
	return positions
}

func assembleTrades(section *model.RawSection) []model.RawTradeRow {
	trades := []model.RawTradeRow{}
	if section == nil {
		return trades
	}

	for _, row := range section.Rows {
		if row.Kind == model.RowKindTotal || row.Kind == model.RowKindSubTotal {
			continue
		}
		// Closed lots are detail rows of the order above them.
		if d := section.Value(row, "DataDiscriminator"); d != "" && d != "Order" && d != "Trade" {
			continue
		}
		trades = append(trades, model.RawTradeRow{
			AssetCategory: section.Value(row, "Asset Category"),
			Currency:      section.Value(row, "Currency"),
			Symbol:        section.Value(row, "Symbol"),
			DateTime:      section.Value(row, "Date/Time"),
			Quantity:      section.Value(row, "Quantity"),
			Price:         section.Value(row, "T. Price"),
			Proceeds:      section.Value(row, "Proceeds"),
			Commission:    section.Value(row, "Comm/Fee"),
			RealizedPL:    section.Value(row, "Realized P/L"),
			Code:          section.Value(row, "Code"),
			Fields:        section.Record(row),
		})
	}
	return trades
}

// optionPositionTrade turns an open option position into the synthetic trade that opened it.
func optionPositionTrade(p model.Position, info instrument, corrections UnitCorrections) (model.Trade, error) {
	c, err := occ.ParseOptionSymbol(p.Symbol)
	if err != nil {
		c, err = contractFromInstrument(p.Symbol, info)
		if err != nil {
			return model.Trade{}, err
		}
	}

	multiplier := p.Multiplier
	if multiplier <= 1 {
		multiplier = 100
	}

	qty := p.Quantity
	price := p.CostPrice
	if price == 0 && qty != 0 {
		price = abs(p.CostBasis) / (abs(qty) * multiplier)
	}
	if corrected, correctedPrice, ok := corrections.Apply(c.Root, qty, p.CostBasis, multiplier); ok {
		qty, price = corrected, correctedPrice
	}

	action := model.ActionBuy
	if qty < 0 {
		action = model.ActionSell
	}
	optionSymbol := occ.Encode(c)

	return model.Trade{
		ID:            model.NewRecordID(string(model.BrokerIBKR), p.AccountID, "position", optionSymbol, p.StatementDate.Format("2006-01-02")),
		Broker:        model.BrokerIBKR,
		AccountID:     p.AccountID,
		TradeDate:     p.StatementDate,
		Symbol:        c.Root,
		Description:   p.Description,
		AssetCategory: model.AssetOption,
		Action:        action,
		Quantity:      qty,
		TradePrice:    price,
		Currency:      p.Currency,
		NetAmount:     -p.CostBasis,
		OpenClose:     model.Open,
		CostBasis:     model.Float(p.CostBasis),
		OptionSymbol:  optionSymbol,
		ExpiryDate:    model.Time(c.Expiry),
		StrikePrice:   model.Float(c.Strike),
		PutCall:       c.PutCall,
		Multiplier:    model.Float(multiplier),
		Notes:         "derived from open position",
	}, nil
}

// contractFromInstrument falls back to the instrument information columns.
func contractFromInstrument(symbol string, info instrument) (occ.Contract, error) {
	if info.expiry == "" || info.strike == "" || info.right == "" {
		return occ.Contract{}, fmt.Errorf("cannot decode option symbol %q", symbol)
	}
	expiry, err := time.Parse("2006-01-02", info.expiry)
	if err != nil {
		return occ.Contract{}, fmt.Errorf("invalid expiry %q: %w", info.expiry, err)
	}
	strike, err := broker.ParseAmount(info.strike)
	if err != nil {
		return occ.Contract{}, fmt.Errorf("invalid strike %q: %w", info.strike, err)
	}
	root := info.underlying
	if root == "" {
		root = strings.Fields(symbol)[0]
	}
	right := model.PutCallCall
	if strings.HasPrefix(strings.ToUpper(info.right), "P") {
		right = model.PutCallPut
	}
	return occ.Contract{Root: root, Expiry: expiry, PutCall: right, Strike: strike}, nil
}

func positionCategory(category, symbol string) model.AssetCategory {
	switch strings.ToLower(category) {
	case "stocks", "stk", "etf":
		return model.AssetStock
	case "equity and index options", "options", "opt":
		return model.AssetOption
	}
	if occ.LooksLikeOption(symbol) {
		return model.AssetOption
	}
	return model.AssetUnknown
}

func amount(s string) float64 {
	v, err := broker.ParseAmount(s)
	if err != nil {
		return 0
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
