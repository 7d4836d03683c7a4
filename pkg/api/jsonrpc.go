// Package api exposes the engine over JSON-RPC 2.0.
package api

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"github.com/luxfi/log"
	"github.com/shopspring/decimal"

	"github.com/luxfi/dsc/pkg/dsc"
)

// JSONRPCServer handles JSON-RPC 2.0 requests against the engine.
type JSONRPCServer struct {
	engine *dsc.Engine
	logger log.Logger
}

// NewJSONRPCServer creates a server for the engine.
func NewJSONRPCServer(engine *dsc.Engine, logger log.Logger) *JSONRPCServer {
	return &JSONRPCServer{engine: engine, logger: logger}
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// RPCError represents a JSON-RPC error.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC Error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes, plus the engine error range.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
	EngineError    = -32000
)

// ServeHTTP implements http.Handler.
func (s *JSONRPCServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, nil, &RPCError{Code: ParseError, Message: "Parse error"})
		return
	}
	if req.JSONRPC != "2.0" {
		s.sendError(w, req.ID, &RPCError{Code: InvalidRequest, Message: "Invalid Request"})
		return
	}

	result, err := s.handleMethod(req.Method, req.Params)
	if err != nil {
		rpcErr, ok := err.(*RPCError)
		if !ok {
			rpcErr = engineError(err)
		}
		s.sendError(w, req.ID, rpcErr)
		return
	}

	resp := JSONRPCResponse{JSONRPC: "2.0", Result: result, ID: req.ID}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// engineError maps a domain error into the engine error range with the
// taxonomy kind as message.
func engineError(err error) *RPCError {
	return &RPCError{Code: EngineError, Message: dsc.ErrorKind(err), Data: err.Error()}
}

func (s *JSONRPCServer) handleMethod(method string, params json.RawMessage) (interface{}, error) {
	switch method {
	case "dsc_depositCollateral":
		return s.depositCollateral(params)
	case "dsc_depositAndMint":
		return s.depositAndMint(params)
	case "dsc_mint":
		return s.mint(params)
	case "dsc_burn":
		return s.burn(params)
	case "dsc_redeemCollateral":
		return s.redeemCollateral(params)
	case "dsc_redeemCollateralForDsc":
		return s.redeemCollateralForDsc(params)
	case "dsc_liquidate":
		return s.liquidate(params)

	case "dsc_healthFactor":
		return s.healthFactor(params)
	case "dsc_accountInformation":
		return s.accountInformation(params)
	case "dsc_collateralValue":
		return s.collateralValue(params)
	case "dsc_withdrawable":
		return s.withdrawable(params)
	case "dsc_getPrice":
		return s.getPrice(params)
	case "dsc_listAssets":
		return s.engine.Oracle().Assets(), nil
	case "dsc_ping":
		return "pong", nil

	default:
		return nil, &RPCError{Code: MethodNotFound, Message: "Method not found"}
	}
}

type userParams struct {
	User string `json:"user"`
}

type amountParams struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

type assetAmountParams struct {
	User   string `json:"user"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type depositMintParams struct {
	User             string `json:"user"`
	Asset            string `json:"asset"`
	CollateralAmount string `json:"collateralAmount"`
	DscAmount        string `json:"dscAmount"`
}

type liquidateParams struct {
	Caller      string `json:"caller"`
	User        string `json:"user"`
	Asset       string `json:"asset"`
	DebtToCover string `json:"debtToCover"`
}

type assetParams struct {
	User  string `json:"user"`
	Asset string `json:"asset"`
}

func decodeParams(params json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(params, v); err != nil {
		return &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}
	return nil
}

func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid amount"}
	}
	return amount, nil
}

// formatUSD renders a 1e18 fixed-point value as a decimal string.
func formatUSD(v *big.Int) string {
	return decimal.NewFromBigInt(v, -dsc.PrecisionDecimals).String()
}

// formatHealthFactor renders the ratio, collapsing the zero-debt sentinel.
func formatHealthFactor(hf *big.Int) string {
	if hf.Cmp(dsc.MaxHealthFactor) >= 0 {
		return "inf"
	}
	return decimal.NewFromBigInt(hf, -dsc.PrecisionDecimals).String()
}

func (s *JSONRPCServer) depositCollateral(params json.RawMessage) (interface{}, error) {
	var p assetAmountParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.engine.DepositCollateral(p.User, p.Asset, amount); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "ok"}, nil
}

func (s *JSONRPCServer) depositAndMint(params json.RawMessage) (interface{}, error) {
	var p depositMintParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	collateral, err := parseAmount(p.CollateralAmount)
	if err != nil {
		return nil, err
	}
	dscAmount, err := parseAmount(p.DscAmount)
	if err != nil {
		return nil, err
	}
	if err := s.engine.DepositCollateralAndMint(p.User, p.Asset, collateral, dscAmount); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "ok"}, nil
}

func (s *JSONRPCServer) mint(params json.RawMessage) (interface{}, error) {
	var p amountParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Mint(p.User, amount); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "ok"}, nil
}

func (s *JSONRPCServer) burn(params json.RawMessage) (interface{}, error) {
	var p amountParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Burn(p.User, amount); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "ok"}, nil
}

func (s *JSONRPCServer) redeemCollateral(params json.RawMessage) (interface{}, error) {
	var p assetAmountParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.engine.RedeemCollateral(p.User, p.Asset, amount); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "ok"}, nil
}

func (s *JSONRPCServer) redeemCollateralForDsc(params json.RawMessage) (interface{}, error) {
	var p depositMintParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	collateral, err := parseAmount(p.CollateralAmount)
	if err != nil {
		return nil, err
	}
	dscAmount, err := parseAmount(p.DscAmount)
	if err != nil {
		return nil, err
	}
	if err := s.engine.RedeemCollateralForDSC(p.User, p.Asset, collateral, dscAmount); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "ok"}, nil
}

func (s *JSONRPCServer) liquidate(params json.RawMessage) (interface{}, error) {
	var p liquidateParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	debtToCover, err := parseAmount(p.DebtToCover)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Liquidate(p.Caller, p.User, p.Asset, debtToCover)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"debtCovered": res.DebtCovered.String(),
		"seized":      res.Seized.String(),
		"clamped":     res.Clamped,
		"startingHF":  formatHealthFactor(res.StartingHF),
		"endingHF":    formatHealthFactor(res.EndingHF),
		"bonusBps":    res.BonusApplied,
	}, nil
}

func (s *JSONRPCServer) healthFactor(params json.RawMessage) (interface{}, error) {
	var p userParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	hf, err := s.engine.HealthFactorOf(p.User)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"healthFactor": formatHealthFactor(hf)}, nil
}

func (s *JSONRPCServer) accountInformation(params json.RawMessage) (interface{}, error) {
	var p userParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	info, err := s.engine.AccountInformation(p.User)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"user":               info.User,
		"debtUsd":            formatUSD(info.DebtUSD),
		"collateralValueUsd": formatUSD(info.CollateralValueUSD),
		"healthFactor":       formatHealthFactor(info.HealthFactor),
	}, nil
}

func (s *JSONRPCServer) collateralValue(params json.RawMessage) (interface{}, error) {
	var p userParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	value, err := s.engine.TotalCollateralValueUSD(p.User)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"collateralValueUsd": formatUSD(value)}, nil
}

func (s *JSONRPCServer) withdrawable(params json.RawMessage) (interface{}, error) {
	var p assetParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	amount, err := s.engine.WithdrawableAmount(p.User, p.Asset)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"withdrawable": amount.String()}, nil
}

func (s *JSONRPCServer) getPrice(params json.RawMessage) (interface{}, error) {
	var p assetParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	quote, err := s.engine.Oracle().GetPrice(p.Asset)
	if err != nil {
		return nil, err
	}
	normalized, err := s.engine.Oracle().NormalizedPrice(p.Asset)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"symbol":    quote.Symbol,
		"raw":       quote.Price.String(),
		"usd":       formatUSD(normalized),
		"timestamp": quote.Timestamp.Unix(),
		"round":     quote.RoundID,
	}, nil
}

func (s *JSONRPCServer) sendError(w http.ResponseWriter, id interface{}, rpcErr *RPCError) {
	resp := JSONRPCResponse{JSONRPC: "2.0", Error: rpcErr, ID: id}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
