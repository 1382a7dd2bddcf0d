package tenant

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	if got := FromContext(ctx); got != nil {
		t.Fatalf("FromContext on empty context = %+v, want nil", got)
	}

	info := &Info{ID: uuid.New(), Code: "acme"}
	ctx = NewContext(ctx, info)

	got := FromContext(ctx)
	if got == nil || got.ID != info.ID || got.Code != info.Code {
		t.Fatalf("FromContext() = %+v, want %+v", got, info)
	}
}

func TestConnContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := ConnFromContext(ctx); got != nil {
		t.Fatalf("ConnFromContext on empty context = %+v, want nil", got)
	}

	conn := &pgxpool.Conn{}
	ctx = NewConnContext(ctx, conn)
	if got := ConnFromContext(ctx); got != conn {
		t.Fatalf("ConnFromContext() = %p, want %p", got, conn)
	}
}
