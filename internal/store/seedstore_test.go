package store_test

import (
	"context"
	"crypto/rand"
	"testing"

	"ratchetroom/internal/domain/interfaces"
	"ratchetroom/internal/store"
)

func TestSeedFileStore_SaveLoad(t *testing.T) {
	home := t.TempDir()
	var seeds interfaces.SeedStore = store.NewSeedFileStore(home)

	var want [32]byte
	if _, err := rand.Read(want[:]); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	ctx := context.Background()
	if err := seeds.SaveSeed(ctx, "0xAbCd", want); err != nil {
		t.Fatalf("SaveSeed: %v", err)
	}

	got, ok, err := seeds.LoadSeed(ctx, "0xabcd")
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if !ok {
		t.Fatal("LoadSeed reported not found for a saved address")
	}
	if got != want {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestSeedFileStore_LoadMissingAddress(t *testing.T) {
	home := t.TempDir()
	seeds := store.NewSeedFileStore(home)

	_, ok, err := seeds.LoadSeed(context.Background(), "0xnobody")
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if ok {
		t.Fatal("LoadSeed reported found for an address never saved")
	}
}
