package handler

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/quote-cache/internal/core/domain"
)

type GRPCHandler struct {
	quotes     QuoteService
	portfolios PortfolioService
	log        *slog.Logger
}

func NewGRPCHandler(quotes QuoteService, portfolios PortfolioService, log *slog.Logger) *GRPCHandler {
	return &GRPCHandler{quotes: quotes, portfolios: portfolios, log: log}
}

func (h *GRPCHandler) ResolveQuote(ctx context.Context, req *ResolveQuoteRequest) (*domain.Quote, error) {
	q, err := h.quotes.ResolveQuote(ctx, req.Symbol, incomingCredential(ctx))
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &q, nil
}

func (h *GRPCHandler) PortfolioValue(ctx context.Context, req *PortfolioValueRequest) (*domain.AggregateResult, error) {
	owner := strings.TrimSpace(req.OwnerID)
	if owner == "" {
		return nil, status.Error(codes.InvalidArgument, "owner id is required")
	}
	res, err := h.portfolios.PortfolioValue(ctx, owner, incomingCredential(ctx))
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &res, nil
}

func (h *GRPCHandler) toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidSymbol):
		return status.Error(codes.InvalidArgument, "invalid symbol")
	case errors.Is(err, domain.ErrSymbolNotFound):
		return status.Error(codes.NotFound, "symbol not found")
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return status.Error(codes.Unavailable, "quote service unavailable")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		h.log.Error("grpc request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}

// incomingCredential reads the caller's authorization metadata, passed on
// upstream unchanged.
func incomingCredential(ctx context.Context) domain.Credential {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get("authorization"); len(v) > 0 {
		return domain.Credential(v[0])
	}
	return ""
}
