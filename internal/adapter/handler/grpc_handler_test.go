package handler

import (
	"context"
	"net"
	"testing"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/quote-cache/internal/logger"
)

func newGRPCClient(t *testing.T) (*QuoteServiceClient, *fakeQuotes) {
	t.Helper()
	quotes, ports := newFakes()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterQuoteServiceServer(srv, NewGRPCHandler(quotes, ports, logger.Discard()))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return NewQuoteServiceClient(conn), quotes
}

func TestGRPC_ResolveQuote(t *testing.T) {
	client, quotes := newGRPCClient(t)

	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer t")
	q, err := client.ResolveQuote(ctx, &ResolveQuoteRequest{Symbol: "xyz"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Symbol != "XYZ" || !q.CurrentPrice.Equal(decimal.NewFromInt(7)) {
		t.Errorf("unexpected quote %+v", q)
	}
	if quotes.lastCred != "Bearer t" {
		t.Errorf("expected credential from metadata, got %q", quotes.lastCred)
	}
}

func TestGRPC_ResolveQuoteCodes(t *testing.T) {
	client, _ := newGRPCClient(t)

	tests := []struct {
		symbol string
		want   codes.Code
	}{
		{"NOPE", codes.NotFound},
		{"DOWN", codes.Unavailable},
		{"  ", codes.InvalidArgument},
	}
	for _, tt := range tests {
		_, err := client.ResolveQuote(context.Background(), &ResolveQuoteRequest{Symbol: tt.symbol})
		if got := status.Code(err); got != tt.want {
			t.Errorf("%q: expected %v, got %v (%v)", tt.symbol, tt.want, got, err)
		}
	}
}

func TestGRPC_PortfolioValue(t *testing.T) {
	client, _ := newGRPCClient(t)

	res, err := client.PortfolioValue(context.Background(), &PortfolioValueRequest{OwnerID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.TotalValue.Equal(decimal.NewFromInt(70)) || !res.TotalCost.Equal(decimal.NewFromInt(50)) {
		t.Errorf("unexpected aggregate %+v", res)
	}

	_, err = client.PortfolioValue(context.Background(), &PortfolioValueRequest{})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument for empty owner, got %v", err)
	}
}
