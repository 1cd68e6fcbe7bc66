// Scratch harness: spin up the seeded gateway simulator in-process,
// log in as the demo patron, and dump fleshed checkouts and holds.
package main

import (
	"context"
	"fmt"
	"net/http/httptest"

	"hemlock/internal/app"
	"hemlock/internal/auth"
	"hemlock/internal/library"
	"hemlock/internal/mockosrf"
)

func main() {
	sim := mockosrf.New()
	patron := mockosrf.Seed(sim)
	srv := httptest.NewServer(sim.Handler())
	defer srv.Close()

	lib := &library.Library{
		ID: "demo", Name: "Demo", BaseURL: srv.URL,
		Flags: library.Flags{ShowQueuePosition: true, EnableHistory: true},
	}
	ctx := context.Background()
	env, err := app.Connect(ctx, lib, auth.Credential{Username: patron.Username, Password: patron.Password})
	if err != nil {
		panic(err)
	}

	circs, err := env.Assembler.FetchCheckoutIDs(ctx)
	if err != nil {
		panic(err)
	}
	env.Assembler.FleshCheckouts(ctx, circs)
	fmt.Println("checkouts:")
	for _, c := range circs {
		due, _ := c.DueDate()
		fmt.Printf("  %d %q by %q due %s overdue=%v err=%v\n",
			c.ID, c.Title(), c.Author(), due.Format("2006-01-02"), c.Overdue, c.Err())
	}

	holds, err := env.Assembler.FetchHoldIDs(ctx)
	if err != nil {
		panic(err)
	}
	env.Assembler.FleshHolds(ctx, holds)
	fmt.Println("holds:")
	for _, h := range holds {
		fmt.Printf("  %d %q status=%q position=%d err=%v\n",
			h.ID, h.Title(), h.Status(), h.QueuePosition(), h.Err())
	}
}
