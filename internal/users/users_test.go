package users

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/justestif/playgroup/internal/db/memdb"
	"github.com/justestif/playgroup/internal/identity"
)

func TestResolveFarcaster(t *testing.T) {
	ctx := context.Background()
	svc := New(memdb.New())

	first, err := svc.ResolveFarcaster(ctx, Farcaster{FID: 42, Username: "alice"})
	if err != nil {
		t.Fatalf("ResolveFarcaster() error = %v", err)
	}
	again, err := svc.ResolveFarcaster(ctx, Farcaster{FID: 42, Username: "renamed"})
	if err != nil {
		t.Fatalf("ResolveFarcaster() error = %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("second resolve created a new user: %v != %v", again.ID, first.ID)
	}
	if got := Identity(first); !got.Equal(identity.FromFID(42)) {
		t.Errorf("Identity() = %v, want fid:42", got)
	}

	if _, err := svc.ResolveFarcaster(ctx, Farcaster{FID: 0}); !errors.Is(err, ErrInvalidLogin) {
		t.Errorf("ResolveFarcaster(0) error = %v, want ErrInvalidLogin", err)
	}
}

func TestResolveExternalLinksWallet(t *testing.T) {
	ctx := context.Background()
	svc := New(memdb.New())

	legacy, err := svc.ResolveFarcaster(ctx, Farcaster{FID: 7, Wallet: "0xABCdef", Username: "bob"})
	if err != nil {
		t.Fatalf("ResolveFarcaster() error = %v", err)
	}

	linked, err := svc.ResolveExternal(ctx, Login{AuthID: "did:privy:1", Wallet: " 0xabcDEF "})
	if err != nil {
		t.Fatalf("ResolveExternal() error = %v", err)
	}
	if linked.ID != legacy.ID {
		t.Fatalf("ResolveExternal() id = %v, want linked record %v", linked.ID, legacy.ID)
	}
	if got := Identity(linked); !got.Equal(identity.FromFID(7)) {
		t.Errorf("Identity() = %v, want the linked record's fid:7", got)
	}

	// A second account with the same wallet gets its own record.
	other, err := svc.ResolveExternal(ctx, Login{AuthID: "did:privy:2", Wallet: "0xabcdef"})
	if err != nil {
		t.Fatalf("ResolveExternal() error = %v", err)
	}
	if other.ID == legacy.ID {
		t.Error("wallet linked twice")
	}

	again, err := svc.ResolveExternal(ctx, Login{AuthID: "did:privy:1"})
	if err != nil || again.ID != legacy.ID {
		t.Errorf("ResolveExternal() = %v, %v, want %v", again, err, legacy.ID)
	}
}

func TestResolveExternal(t *testing.T) {
	ctx := context.Background()
	svc := New(memdb.New())

	tests := []struct {
		name    string
		login   Login
		wantErr error
	}{
		{"no wallet", Login{AuthID: "a1", Username: "carol"}, nil},
		{"unknown wallet", Login{AuthID: "a2", Wallet: "0x99"}, nil},
		{"blank auth id", Login{AuthID: "  "}, ErrInvalidLogin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := svc.ResolveExternal(ctx, tt.login)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ResolveExternal() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && Identity(u).Kind() != identity.KindUUID {
				t.Errorf("Identity() kind = %v, want uuid", Identity(u).Kind())
			}
		})
	}
}

func TestResolveExternalConcurrent(t *testing.T) {
	ctx := context.Background()
	svc := New(memdb.New())

	const n = 8
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := svc.ResolveExternal(ctx, Login{AuthID: "same"})
			if err != nil {
				t.Errorf("ResolveExternal() error = %v", err)
				return
			}
			ids <- u.ID.String()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 1 {
		t.Errorf("concurrent logins created %d users, want 1", len(seen))
	}
}

func TestUser(t *testing.T) {
	ctx := context.Background()
	svc := New(memdb.New())
	u, err := svc.ResolveFarcaster(ctx, Farcaster{FID: 3})
	if err != nil {
		t.Fatalf("ResolveFarcaster() error = %v", err)
	}

	got, err := svc.User(ctx, identity.FromFID(3))
	if err != nil || got.ID != u.ID {
		t.Errorf("User(fid) = %v, %v", got, err)
	}
	got, err = svc.User(ctx, identity.FromUUID(u.ID))
	if err != nil || got.ID != u.ID {
		t.Errorf("User(uuid) = %v, %v", got, err)
	}
	if _, err := svc.User(ctx, identity.Identity{}); !errors.Is(err, identity.ErrAuthenticationRequired) {
		t.Errorf("User(zero) error = %v, want ErrAuthenticationRequired", err)
	}
}

func TestResolveFarcasterRecordsLateWallet(t *testing.T) {
	ctx := context.Background()
	svc := New(memdb.New())

	first, err := svc.ResolveFarcaster(ctx, Farcaster{FID: 9})
	if err != nil {
		t.Fatalf("ResolveFarcaster() error = %v", err)
	}
	if first.WalletAddress != nil {
		t.Fatalf("WalletAddress = %q, want none", *first.WalletAddress)
	}

	withWallet, err := svc.ResolveFarcaster(ctx, Farcaster{FID: 9, Wallet: "0xFEED"})
	if err != nil {
		t.Fatalf("ResolveFarcaster() error = %v", err)
	}
	if withWallet.WalletAddress == nil || *withWallet.WalletAddress != "0xfeed" {
		t.Errorf("WalletAddress = %v, want 0xfeed", withWallet.WalletAddress)
	}

	// A recorded wallet is not replaced.
	other, err := svc.ResolveFarcaster(ctx, Farcaster{FID: 9, Wallet: "0xBEEF"})
	if err != nil {
		t.Fatalf("ResolveFarcaster() error = %v", err)
	}
	if *other.WalletAddress != "0xfeed" {
		t.Errorf("WalletAddress = %q, want unchanged 0xfeed", *other.WalletAddress)
	}

	linked, err := svc.ResolveExternal(ctx, Login{AuthID: "did:privy:9", Wallet: "0xfeed"})
	if err != nil {
		t.Fatalf("ResolveExternal() error = %v", err)
	}
	if linked.ID != first.ID || !Identity(linked).Equal(identity.FromFID(9)) {
		t.Errorf("ResolveExternal() = %v as %v, want record %v as fid:9", linked.ID, Identity(linked), first.ID)
	}
}
