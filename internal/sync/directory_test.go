package sync

import (
	"context"
	"testing"
	"time"

	"github.com/matheus3301/teamchat/internal/models"
)

// blockingUsers holds every Users call until release is closed.
type blockingUsers struct {
	fakeUsers
	release chan struct{}
}

func (b *blockingUsers) Users(ctx context.Context) ([]models.User, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.fakeUsers.Users(ctx)
}

func (f *fakeUsers) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestDirectoryRememberIgnoresZeroID(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := NewDirectory(ctx, nil, 0, nil)

	d.Remember(models.User{Username: "ghost"})
	if _, ok := d.cached(0); ok {
		t.Error("zero id cached")
	}
	if _, ok := d.Resolve(0); ok {
		t.Error("resolve of zero id succeeded")
	}
}

func TestDirectoryFillAndResolve(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	users := &fakeUsers{users: []models.User{{ID: 1, Username: "a"}, {ID: 2, Username: "b"}}}
	d := NewDirectory(ctx, users, time.Minute, nil)

	if err := d.Fill(ctx); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if u, ok := d.Resolve(2); !ok || u.Username != "b" {
		t.Errorf("Resolve(2) = %+v, %v", u, ok)
	}
	if _, ok := d.Resolve(7); ok {
		t.Error("Resolve(7) found a user")
	}
	d.Wait()
	// One explicit fill plus one refresh for the miss.
	if got := users.callCount(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestDirectoryResolveDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	users := &blockingUsers{
		fakeUsers: fakeUsers{users: []models.User{{ID: 3, Username: "bo"}}},
		release:   make(chan struct{}),
	}
	d := NewDirectory(ctx, users, time.Minute, nil)

	done := make(chan bool, 1)
	go func() {
		_, ok := d.Resolve(3)
		done <- ok
	}()
	select {
	case ok := <-done:
		if ok {
			t.Error("Resolve(3) hit before the refresh finished")
		}
	case <-time.After(time.Second):
		t.Fatal("Resolve blocked on the user list")
	}

	close(users.release)
	d.Wait()
	if u, ok := d.Resolve(3); !ok || u.Username != "bo" {
		t.Errorf("Resolve(3) after refresh = %+v, %v", u, ok)
	}
}

func TestDirectoryRepeatedMissRefreshesOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	users := &fakeUsers{}
	d := NewDirectory(ctx, users, time.Minute, nil)

	for range 5 {
		if _, ok := d.Resolve(9); ok {
			t.Fatal("Resolve(9) found a user")
		}
		d.Wait()
	}
	if got := users.callCount(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestDirectoryRememberClearsMiss(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := NewDirectory(ctx, &fakeUsers{}, time.Minute, nil)

	d.Resolve(4)
	d.Wait()
	d.Remember(models.User{ID: 4, Username: "cy"})
	if u, ok := d.Resolve(4); !ok || u.Username != "cy" {
		t.Errorf("Resolve(4) = %+v, %v", u, ok)
	}
}
