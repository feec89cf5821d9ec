package ibkr

import (
	"encoding/xml"
	"time"
)

// FlexRequestResponse is the reply to SendRequest, and the error reply of GetStatement.
type FlexRequestResponse struct {
	XMLName       xml.Name `xml:"FlexStatementResponse"`
	Timestamp     string   `xml:"timestamp,attr"`
	Status        string   `xml:"Status"`        // Success or Fail
	ReferenceCode string   `xml:"ReferenceCode"` // Code to download the requested statement
	URL           string   `xml:"Url"`           // URL to download statement
	ErrorCode     *int     `xml:"ErrorCode"`     // If error, the error code
	ErrorMessage  *string  `xml:"ErrorMessage"`  // If error, the verbose message
}

// FlexQueryResponse is an XML Flex statement. Only the trade rows are read.
type FlexQueryResponse struct {
	XMLName        xml.Name `xml:"FlexQueryResponse"`
	QueryName      string   `xml:"queryName,attr"`
	Type           string   `xml:"type,attr"`
	FlexStatements struct {
		Count         string          `xml:"count,attr"`
		FlexStatement []FlexStatement `xml:"FlexStatement"`
	} `xml:"FlexStatements"`
}

// FlexStatement is one account's statement inside a Flex response.
type FlexStatement struct {
	AccountID     string `xml:"accountId,attr"`
	FromDate      string `xml:"fromDate,attr"`
	ToDate        string `xml:"toDate,attr"`
	WhenGenerated string `xml:"whenGenerated,attr"`
	Trades        struct {
		Trade []FlexTrade `xml:"Trade"`
	} `xml:"Trades"`
}

// FlexTrade keeps the attributes as text; they are handed to the IBKR field mapper unchanged.
type FlexTrade struct {
	AccountID          string `xml:"accountId,attr"`
	AssetCategory      string `xml:"assetCategory,attr"`
	Currency           string `xml:"currency,attr"`
	Symbol             string `xml:"symbol,attr"`
	Description        string `xml:"description,attr"`
	DateTime           string `xml:"dateTime,attr"`
	TradeDate          string `xml:"tradeDate,attr"`
	SettleDate         string `xml:"settleDateTarget,attr"`
	Quantity           string `xml:"quantity,attr"`
	TradePrice         string `xml:"tradePrice,attr"`
	Proceeds           string `xml:"proceeds,attr"`
	IBCommission       string `xml:"ibCommission,attr"`
	CostBasis          string `xml:"cost,attr"`
	FifoPnlRealized    string `xml:"fifoPnlRealized,attr"`
	OpenCloseIndicator string `xml:"openCloseIndicator,attr"`
	Multiplier         string `xml:"multiplier,attr"`
	IBOrderID          string `xml:"ibOrderID,attr"`
	IBExecID           string `xml:"ibExecID,attr"`
	TradeID            string `xml:"tradeID,attr"`
	LevelOfDetail      string `xml:"levelOfDetail,attr"`
}

// Report is a downloaded statement, always as CSV ready for import.
type Report struct {
	ReferenceCode string
	FileName      string
	Data          []byte
	Trades        int
	ImportedAt    time.Time
}
