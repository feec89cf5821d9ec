package testutil

// IBKRTradesCSV is a flat IBKR trade export: two valid trades, one unmappable row and
// one trade flagged for its quantity.
const IBKRTradesCSV = `DataDiscriminator,Asset Category,Currency,Symbol,Date/Time,Quantity,T. Price,C. Price,Proceeds,Comm/Fee,Basis,Realized P/L,MTM P/L,Code
Order,Stocks,USD,AAPL,"2025-01-02, 09:30:00",10,185.5,186,-1855,-1,1856,0,5,O
Order,Stocks,USD,MSFT,"2025-01-02, 11:00:00",-5,420,421,2100,-1,-2050,49,5,C
Order,Stocks,USD,TSLA,not-a-date,1,250,250,-250,-1,251,0,0,O
Order,Stocks,USD,F,"2025-01-03, 10:00:00",20000,12,12,-240000,-5,240005,0,0,O
`

// SchwabTradesCSV is a flat Schwab export with one stock and one option trade.
const SchwabTradesCSV = `Date,Action,Symbol,Description,Quantity,Price,Fees & Comm,Amount
01/06/2025,Buy,NVDA,NVIDIA CORP,5,140.25,$0.00,-$701.25
01/07/2025,Sell to Close,SPY 01/17/2025 570.00 C,CALL SPDR S&P 500,1,2.10,$0.66,$209.34
`

// SchwabRepeatedFillsCSV holds two separate fills that export as identical lines.
const SchwabRepeatedFillsCSV = `Date,Action,Symbol,Description,Quantity,Price,Fees & Comm,Amount
01/15/2025,Buy,AAPL,APPLE INC,10,$150.00,$0.00,-$1500.00
01/15/2025,Buy,AAPL,APPLE INC,10,$150.00,$0.00,-$1500.00
`

// UnknownHeaderCSV has a header no broker schema matches.
const UnknownHeaderCSV = "Date,Symbol,Quantity,Price\n2025-01-02,AAPL,10,185\n"

// ActivityStatement is a multi-section activity statement with one account, two open
// positions (one of them the SPY 570 call) and two trades.
const ActivityStatement = `Statement,Header,Field Name,Field Value
Statement,Data,BrokerName,Interactive Brokers LLC
Statement,Data,Title,Activity Statement
Statement,Data,Period,"January 1, 2025 - January 31, 2025"
Statement,Data,WhenGenerated,"2025-02-01, 08:00:00 EST"
Account Information,Header,Field Name,Field Value
Account Information,Data,Name,Jane Doe
Account Information,Data,Account,U1234567
Account Information,Data,Account Type,Individual
Account Information,Data,Base Currency,USD
Net Asset Value,Header,Asset Class,Prior Total,Current Long,Current Short,Current Total,Change
Net Asset Value,Data,Total,12000,"12,345.67",0,"12,345.67",345.67
Open Positions,Header,DataDiscriminator,Asset Category,Currency,Symbol,Quantity,Mult,Cost Price,Cost Basis,Close Price,Value,Unrealized P/L,Code
Open Positions,Data,Summary,Stocks,USD,AAPL,10,1,185.6,1856,190,1900,44,
Open Positions,Data,Summary,Equity and Index Options,USD,SPY 17JAN25 570 C,1,100,0.8315665,83.15665,1.2,120,36.84335,
Trades,Header,DataDiscriminator,Asset Category,Currency,Symbol,Date/Time,Quantity,T. Price,C. Price,Proceeds,Comm/Fee,Basis,Realized P/L,MTM P/L,Code
Trades,Data,Order,Stocks,USD,AAPL,"2025-01-02, 09:30:00",10,185.5,186,"-1,855",-1,1856,0,5,O
Trades,SubTotal,,Stocks,USD,AAPL,,10,,,"-1,855",-1,1856,0,5,
Trades,Data,Order,Equity and Index Options,USD,SPY 17JAN25 570 C,"2025-01-03, 10:15:00",1,0.82,0.9,-82,-1.15665,83.15665,0,8,O
Trades,Total,,,,,,,,,"-1,937",-2.15665,,0,13,
Financial Instrument Information,Header,Asset Category,Symbol,Description,Conid,Underlying,Listing Exch,Multiplier,Expiry,Delivery Month,Type,Strike,Code
Financial Instrument Information,Data,Equity and Index Options,SPY 17JAN25 570 C,SPY 17JAN25 570 C,123456,SPY,CBOE,100,2025-01-17,2025-01,C,570,
`
