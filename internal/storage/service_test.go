package storage_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/quozen/internal/models"
	"github.com/mmynk/quozen/internal/storage"
	"github.com/mmynk/quozen/internal/storage/memory"
)

var (
	alice = models.User{ID: "u-alice", Email: "alice@example.com", Name: "Alice"}
	bob   = models.User{ID: "u-bob", Email: "bob@example.com", Name: "Bob"}
	dave  = models.User{ID: "u-dave", Email: "dave@example.com", Name: "Dave"}
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	store *memory.Store
	svc   *storage.Service
	clock *clock
	ids   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{clock: &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}}
	f.store = memory.New(memory.WithClock(f.clock.now))
	f.svc = f.newService()
	return f
}

// newService returns a second client over the same store, with a cold
// settings-document cache.
func (f *fixture) newService() *storage.Service {
	return storage.NewService(storage.Instrument(f.store),
		storage.WithClock(f.clock.now),
		storage.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		storage.WithIDGenerator(func() string {
			f.ids++
			return fmt.Sprintf("id-%d", f.ids)
		}),
	)
}

func (f *fixture) createGroup(t *testing.T, name string, invitees ...models.MemberInput) *models.Group {
	t.Helper()
	g, err := f.svc.CreateGroup(context.Background(), alice, name, invitees)
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	return g
}

func (f *fixture) addExpense(t *testing.T, groupID, paidBy string, amount float64, splits ...models.Split) *models.Expense {
	t.Helper()
	e, err := f.svc.AddExpense(context.Background(), alice, groupID, models.Expense{
		Date:        f.clock.now(),
		Description: "Dinner",
		Amount:      decimal.NewFromFloat(amount),
		PaidBy:      paidBy,
		Splits:      splits,
	})
	if err != nil {
		t.Fatalf("AddExpense failed: %v", err)
	}
	return e
}

func split(userID string, amount float64) models.Split {
	return models.Split{UserID: userID, Amount: decimal.NewFromFloat(amount)}
}

func assertKind(t *testing.T, err error, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("Expected %v, got %v", want, err)
	}
}

func findMember(data *models.GroupData, userID string) *models.Member {
	for i := range data.Members {
		if data.Members[i].UserID == userID {
			return &data.Members[i]
		}
	}
	return nil
}

func d(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}
