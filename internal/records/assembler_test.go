package records_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"hemlock/internal/auth"
	"hemlock/internal/gateway"
	"hemlock/internal/idl"
	"hemlock/internal/mockosrf"
	"hemlock/internal/records"
	"hemlock/internal/wire"
)

type recordsEnv struct {
	sim *mockosrf.Server
	asm *records.Assembler
}

func newRecordsEnv(t *testing.T, patron mockosrf.User) *recordsEnv {
	t.Helper()
	sim := mockosrf.New()
	sim.AddBib(mockosrf.Bib{DocID: 101, Title: "The Left Hand of Darkness", Author: "Le Guin, Ursula K.", PubDate: 1969}, 9001)
	sim.AddBib(mockosrf.Bib{DocID: 102, Title: "Parable of the Sower", Author: "Butler, Octavia E.", PubDate: 1993}, 9002)
	sim.AddBib(mockosrf.Bib{DocID: 103, Title: "Kindred", Author: "Butler, Octavia E.", PubDate: 1979}, 9003)
	sim.AddBib(mockosrf.Bib{DocID: 104, Title: "A Wizard of Earthsea", Author: "Le Guin, Ursula K.", PubDate: 1968}, 9004)
	sim.AddBib(mockosrf.Bib{DocID: 105, Title: "The Dispossessed", Author: "Le Guin, Ursula K.", PubDate: 1974}, 9005)
	sim.AddUser(patron)
	srv := httptest.NewServer(sim.Handler())
	t.Cleanup(srv.Close)

	reg := wire.NewRegistry()
	idl.Register(reg)
	gw := gateway.NewClient(srv.URL, reg)
	sess := auth.NewSession(gw)
	if err := sess.Login(context.Background(), auth.Credential{Username: patron.Username, Password: patron.Password}); err != nil {
		t.Fatal(err)
	}
	return &recordsEnv{sim: sim, asm: records.NewAssembler(gw, sess)}
}

func TestFetchCheckoutIDsOverdueFirst(t *testing.T) {
	env := newRecordsEnv(t, mockosrf.User{
		ID: 1, Username: "p", Password: "pw",
		Circs: []mockosrf.Circ{
			{ID: 7001, TargetCopy: 9001, DueDate: "2026-09-12T23:59:59-0400"},
			{ID: 7002, TargetCopy: 9002, DueDate: "2026-08-01T23:59:59-0400", Overdue: true},
			{ID: 7003, TargetCopy: 9003, DueDate: "2026-09-20T23:59:59-0400"},
		},
	})
	recs, err := env.asm.FetchCheckoutIDs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("len = %d", len(recs))
	}
	if recs[0].ID != 7002 || !recs[0].Overdue {
		t.Errorf("first record = %d overdue=%v, want the overdue circ first", recs[0].ID, recs[0].Overdue)
	}
	for _, r := range recs[1:] {
		if r.Overdue {
			t.Errorf("record %d wrongly marked overdue", r.ID)
		}
		if r.Fleshed() {
			t.Errorf("record %d fleshed before any detail fetch", r.ID)
		}
	}
}

func TestFleshCheckouts(t *testing.T) {
	env := newRecordsEnv(t, mockosrf.User{
		ID: 1, Username: "p", Password: "pw",
		Circs: []mockosrf.Circ{
			{ID: 7001, TargetCopy: 9001, DueDate: "2026-09-12T23:59:59-0400", RenewalsRemaining: 2},
		},
	})
	ctx := context.Background()
	recs, err := env.asm.FetchCheckoutIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	env.asm.FleshCheckouts(ctx, recs)

	r := recs[0]
	if err := r.Err(); err != nil {
		t.Fatal(err)
	}
	if r.Title() != "The Left Hand of Darkness" {
		t.Errorf("title = %q", r.Title())
	}
	if r.Author() != "Le Guin, Ursula K." {
		t.Errorf("author = %q", r.Author())
	}
	if r.RenewalsRemaining() != 2 {
		t.Errorf("renewals = %d", r.RenewalsRemaining())
	}
	due, ok := r.DueDate()
	if !ok || due.Year() != 2026 {
		t.Errorf("due = %v, %v", due, ok)
	}
	if copyID, _ := r.TargetCopy(); copyID != 9001 {
		t.Errorf("target copy = %d", copyID)
	}
	if r.Bib().PubDate() != 1969 {
		t.Errorf("pubdate = %d", r.Bib().PubDate())
	}
}

func TestFleshCheckoutsPartialFailure(t *testing.T) {
	circs := []mockosrf.Circ{
		{ID: 7001, TargetCopy: 9001, DueDate: "2026-09-01"},
		{ID: 7002, TargetCopy: 9002, DueDate: "2026-09-02"},
		{ID: 7003, TargetCopy: 9003, DueDate: "2026-09-03"},
		{ID: 7004, TargetCopy: 9004, DueDate: "2026-09-04"},
		{ID: 7005, TargetCopy: 9005, DueDate: "2026-09-05"},
	}
	env := newRecordsEnv(t, mockosrf.User{ID: 1, Username: "p", Password: "pw", Circs: circs})
	env.sim.FailCirc(7003)

	ctx := context.Background()
	recs, err := env.asm.FetchCheckoutIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	env.asm.FleshCheckouts(ctx, recs)

	if len(recs) != 5 {
		t.Fatalf("len = %d, a single failure must not drop siblings", len(recs))
	}
	var failed, fleshed int
	for _, r := range recs {
		if r.ID == 7003 {
			if r.Err() == nil {
				t.Error("failed circ carries no error")
			}
			var ge *gateway.GatewayError
			if !errors.As(r.Err(), &ge) {
				t.Errorf("circ 7003 err = %v", r.Err())
			}
			failed++
			continue
		}
		if r.Err() != nil {
			t.Errorf("circ %d: %v", r.ID, r.Err())
		}
		if !r.Fleshed() || r.Title() == "" {
			t.Errorf("circ %d not fleshed", r.ID)
		}
		fleshed++
	}
	if failed != 1 || fleshed != 4 {
		t.Errorf("failed=%d fleshed=%d", failed, fleshed)
	}
}

func TestFleshHolds(t *testing.T) {
	env := newRecordsEnv(t, mockosrf.User{
		ID: 1, Username: "p", Password: "pw",
		Holds: []mockosrf.Hold{
			{ID: 8001, Target: 104, QueuePosition: 3, TotalHolds: 11, Status: 0},
			{ID: 8002, Target: 103, QueuePosition: 1, TotalHolds: 1, Status: 4},
		},
	})
	ctx := context.Background()
	recs, err := env.asm.FetchHoldIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d", len(recs))
	}
	env.asm.FleshHolds(ctx, recs)

	byID := map[int]*records.HoldRecord{}
	for _, r := range recs {
		if r.Err() != nil {
			t.Fatalf("hold %d: %v", r.ID, r.Err())
		}
		byID[r.ID] = r
	}
	waiting := byID[8001]
	if waiting.QueuePosition() != 3 || waiting.TotalHolds() != 11 {
		t.Errorf("queue stats = %d/%d", waiting.QueuePosition(), waiting.TotalHolds())
	}
	if waiting.Status() != "waiting (position 3)" {
		t.Errorf("status = %q", waiting.Status())
	}
	if waiting.Title() != "A Wizard of Earthsea" {
		t.Errorf("title = %q", waiting.Title())
	}
	ready := byID[8002]
	if ready.Status() != "ready for pickup" {
		t.Errorf("status = %q", ready.Status())
	}
}

func TestFetchHoldIDsEmpty(t *testing.T) {
	env := newRecordsEnv(t, mockosrf.User{ID: 1, Username: "p", Password: "pw"})
	recs, err := env.asm.FetchHoldIDs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("len = %d", len(recs))
	}
}

func TestHistory(t *testing.T) {
	env := newRecordsEnv(t, mockosrf.User{
		ID: 1, Username: "p", Password: "pw",
		History: []mockosrf.HistoryEntry{
			{ID: 6001, TargetCopy: 9004, XactStart: "2026-05-01T10:00:00-0400", CheckinTime: "2026-05-20T16:30:00-0400"},
		},
	})
	ctx := context.Background()
	recs, err := env.asm.FetchHistoryIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("len = %d", len(recs))
	}
	env.asm.FleshHistory(ctx, recs)

	r := recs[0]
	if r.Err() != nil {
		t.Fatal(r.Err())
	}
	if r.Title() != "A Wizard of Earthsea" {
		t.Errorf("title = %q", r.Title())
	}
	out, ok := r.CheckoutDate()
	if !ok || out.Month() != 5 || out.Day() != 1 {
		t.Errorf("checkout = %v, %v", out, ok)
	}
	back, ok := r.ReturnedDate()
	if !ok || back.Day() != 20 {
		t.Errorf("returned = %v, %v", back, ok)
	}
}

func TestFleshCheckoutsExpiredSessionRecovers(t *testing.T) {
	env := newRecordsEnv(t, mockosrf.User{
		ID: 1, Username: "p", Password: "pw",
		Circs: []mockosrf.Circ{{ID: 7001, TargetCopy: 9001, DueDate: "2026-09-01"}},
	})
	ctx := context.Background()
	recs, err := env.asm.FetchCheckoutIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	env.sim.RevokeTokens()
	env.asm.FleshCheckouts(ctx, recs)
	if err := recs[0].Err(); err != nil {
		t.Fatalf("expired session not recovered: %v", err)
	}
	if recs[0].Title() == "" {
		t.Error("record not fleshed after re-auth")
	}
}
