package handler

import (
	"context"

	"google.golang.org/grpc"

	"github.com/rl1809/quote-cache/internal/core/domain"
)

const (
	QuoteServiceName         = "quotecache.v1.QuoteService"
	resolveQuoteFullMethod   = "/" + QuoteServiceName + "/ResolveQuote"
	portfolioValueFullMethod = "/" + QuoteServiceName + "/PortfolioValue"
)

type ResolveQuoteRequest struct {
	Symbol string `json:"symbol"`
}

type PortfolioValueRequest struct {
	OwnerID string `json:"ownerId"`
}

// QuoteServiceServer is implemented by GRPCHandler.
type QuoteServiceServer interface {
	ResolveQuote(ctx context.Context, req *ResolveQuoteRequest) (*domain.Quote, error)
	PortfolioValue(ctx context.Context, req *PortfolioValueRequest) (*domain.AggregateResult, error)
}

var QuoteServiceDesc = grpc.ServiceDesc{
	ServiceName: QuoteServiceName,
	HandlerType: (*QuoteServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ResolveQuote", Handler: resolveQuoteHandler},
		{MethodName: "PortfolioValue", Handler: portfolioValueHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterQuoteServiceServer(s grpc.ServiceRegistrar, srv QuoteServiceServer) {
	s.RegisterService(&QuoteServiceDesc, srv)
}

func resolveQuoteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ResolveQuoteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QuoteServiceServer).ResolveQuote(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: resolveQuoteFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(QuoteServiceServer).ResolveQuote(ctx, req.(*ResolveQuoteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func portfolioValueHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PortfolioValueRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QuoteServiceServer).PortfolioValue(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: portfolioValueFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(QuoteServiceServer).PortfolioValue(ctx, req.(*PortfolioValueRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// QuoteServiceClient calls the quote service with the JSON codec.
type QuoteServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewQuoteServiceClient(cc grpc.ClientConnInterface) *QuoteServiceClient {
	return &QuoteServiceClient{cc: cc}
}

func (c *QuoteServiceClient) ResolveQuote(ctx context.Context, req *ResolveQuoteRequest, opts ...grpc.CallOption) (*domain.Quote, error) {
	out := new(domain.Quote)
	opts = append(opts, grpc.CallContentSubtype(JSONCodecName))
	if err := c.cc.Invoke(ctx, resolveQuoteFullMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *QuoteServiceClient) PortfolioValue(ctx context.Context, req *PortfolioValueRequest, opts ...grpc.CallOption) (*domain.AggregateResult, error) {
	out := new(domain.AggregateResult)
	opts = append(opts, grpc.CallContentSubtype(JSONCodecName))
	if err := c.cc.Invoke(ctx, portfolioValueFullMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
