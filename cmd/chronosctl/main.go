// chronosctl is a small operator CLI for a running chronos-markets
// server: list markets, inspect prices and history, query portfolios,
// and submit orders from the terminal.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/model"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/trade"
)

const usage = `usage: chronosctl [-server URL] <command> [args]

commands:
  markets [category]                       list markets
  price <marketID>                         show spot prices
  history <marketID>                       show trade history
  portfolio <accountID>                    show positions and P&L
  deposit <accountID> <amount>             credit settlement funds
  order <accountID> <marketID> <YES|NO> <BUY|SELL> <shares>
  resolve <accountID> <marketID> <yes|no>  resolve a market (creator only)
  claim <accountID> <marketID>             claim winnings
`

func main() {
	server := flag.String("server", envOr("CHRONOS_SERVER", "http://localhost:8080"), "server base URL")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	c := &client{http: resty.New().
		SetBaseURL(*server + "/api/v1").
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")}

	var err error
	switch cmd := args[0]; cmd {
	case "markets":
		category := ""
		if len(args) > 1 {
			category = args[1]
		}
		err = c.markets(category)
	case "price":
		err = withArgs(args, 2, func() error { return c.price(args[1]) })
	case "history":
		err = withArgs(args, 2, func() error { return c.history(args[1]) })
	case "portfolio":
		err = withArgs(args, 2, func() error { return c.portfolio(args[1]) })
	case "deposit":
		err = withArgs(args, 3, func() error { return c.deposit(args[1], args[2]) })
	case "order":
		err = withArgs(args, 6, func() error {
			return c.order(args[1], args[2], args[3], args[4], args[5])
		})
	case "resolve":
		err = withArgs(args, 4, func() error { return c.resolve(args[1], args[2], args[3]) })
	case "claim":
		err = withArgs(args, 3, func() error { return c.claim(args[1], args[2]) })
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func withArgs(args []string, n int, fn func() error) error {
	if len(args) != n {
		return fmt.Errorf("wrong number of arguments (want %d, got %d)", n-1, len(args)-1)
	}
	return fn()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type client struct {
	http *resty.Client
}

type apiError struct {
	Error string `json:"error"`
}

func (c *client) get(path string, out interface{}) error {
	var apiErr apiError
	resp, err := c.http.R().SetResult(out).SetError(&apiErr).Get(path)
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%s: %s", resp.Status(), apiErr.Error)
	}
	return nil
}

func (c *client) post(path string, body, out interface{}) error {
	var apiErr apiError
	resp, err := c.http.R().SetBody(body).SetResult(out).SetError(&apiErr).Post(path)
	if err != nil {
		return err
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("%s: %s", resp.Status(), apiErr.Error)
	}
	return nil
}

func (c *client) markets(category string) error {
	path := "/markets"
	if category != "" {
		path += "?category=" + category
	}
	var markets []model.Market
	if err := c.get(path, &markets); err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Question", "YES", "NO", "Volume", "Status", "Ends")
	for _, m := range markets {
		status := "open"
		if m.Resolved {
			status = "resolved"
			if m.Outcome != nil && *m.Outcome {
				status = "resolved YES"
			} else if m.Outcome != nil {
				status = "resolved NO"
			}
		} else if !m.Open(time.Now()) {
			status = "closed"
		}
		total := m.YesPool.Add(m.NoPool)
		yes, no := "0.5", "0.5"
		if total.IsPositive() {
			yes = m.NoPool.Div(total).Round(4).String()
			no = m.YesPool.Div(total).Round(4).String()
		}
		table.Append(m.ID, truncate(m.Question, 40), yes, no,
			m.Volume.Round(2).String(), status, m.EndTime.Format("2006-01-02"))
	}
	table.Render()
	return nil
}

func (c *client) price(marketID string) error {
	var prices map[string]decimal.Decimal
	if err := c.get("/markets/"+marketID+"/price", &prices); err != nil {
		return err
	}
	fmt.Printf("YES %s  NO %s\n", prices["yes"], prices["no"])
	return nil
}

func (c *client) history(marketID string) error {
	var trades []model.TradeRecord
	if err := c.get("/markets/"+marketID+"/history", &trades); err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Time", "Account", "Side", "Type", "Shares", "Price", "Cost")
	for _, tr := range trades {
		table.Append(tr.Timestamp.Format(time.RFC3339), tr.AccountID,
			string(tr.Side), string(tr.Type),
			tr.Shares.String(), tr.Price.Round(4).String(), tr.Cost.Round(4).String())
	}
	table.Render()
	return nil
}

func (c *client) portfolio(accountID string) error {
	var summary model.PortfolioSummary
	if err := c.get("/portfolio/"+accountID, &summary); err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Market", "Side", "Shares", "Avg Cost", "Value", "Unrealized")
	for _, p := range summary.Positions {
		table.Append(p.MarketID, string(p.Side),
			p.Shares.String(), p.AvgCost.Round(4).String(),
			p.CurrentValue.Round(2).String(), p.UnrealizedPL.Round(2).String())
	}
	table.Render()

	fmt.Printf("cash %s  realized %s  unrealized %s  total %s\n",
		summary.AvailableFunds.Round(2), summary.TotalRealizedPL.Round(2),
		summary.TotalUnrealizedPL.Round(2), summary.TotalValue.Round(2))
	return nil
}

func (c *client) deposit(accountID, amount string) error {
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("bad amount %q: %w", amount, err)
	}
	var resp map[string]decimal.Decimal
	if err := c.post("/deposit", trade.DepositRequest{AccountID: accountID, Amount: amt}, &resp); err != nil {
		return err
	}
	fmt.Printf("available funds: %s\n", resp["available_funds"])
	return nil
}

func (c *client) order(accountID, marketID, side, typ, shares string) error {
	qty, err := decimal.NewFromString(shares)
	if err != nil {
		return fmt.Errorf("bad share quantity %q: %w", shares, err)
	}
	var resp trade.OrderResponse
	req := trade.OrderRequest{
		AccountID: accountID,
		MarketID:  marketID,
		Side:      side,
		Type:      typ,
		Shares:    qty,
	}
	if err := c.post("/orders", req, &resp); err != nil {
		return err
	}
	fmt.Printf("filled %s %s %s @ %s (total %s), position %s shares\n",
		resp.Type, resp.Shares, resp.Side, resp.FillPrice.Round(4),
		resp.Cost.Round(4), resp.Position.Shares)
	return nil
}

func (c *client) resolve(accountID, marketID, outcome string) error {
	var out bool
	switch outcome {
	case "yes", "YES", "true":
		out = true
	case "no", "NO", "false":
		out = false
	default:
		return fmt.Errorf("outcome must be yes or no, got %q", outcome)
	}
	if err := c.post("/markets/"+marketID+"/resolve",
		trade.ResolveRequest{AccountID: accountID, Outcome: out}, nil); err != nil {
		return err
	}
	fmt.Println("resolved")
	return nil
}

func (c *client) claim(accountID, marketID string) error {
	var resp map[string]decimal.Decimal
	if err := c.post("/markets/"+marketID+"/claim",
		trade.ClaimRequest{AccountID: accountID}, &resp); err != nil {
		return err
	}
	fmt.Printf("payout %s, available funds %s\n", resp["payout"], resp["available_funds"])
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
