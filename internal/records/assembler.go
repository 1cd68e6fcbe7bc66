package records

import (
	"context"
	"log"
	"sync"

	"hemlock/internal/auth"
	"hemlock/internal/gateway"
	"hemlock/internal/wire"
)

const (
	actorService  = "open-ils.actor"
	circService   = "open-ils.circ"
	searchService = "open-ils.search"
)

// Assembler builds domain records: one bulk call for IDs, then one
// detail fetch per skeleton issued concurrently, with cross-referenced
// bib data chained off each detail. A single record's failure never
// aborts its siblings; partial results are what the caller renders.
// Display ordering is the caller's business (see sort.go).
type Assembler struct {
	Gateway *gateway.Client
	Session *auth.Session
}

func NewAssembler(gw *gateway.Client, sess *auth.Session) *Assembler {
	return &Assembler{Gateway: gw, Session: sess}
}

// FetchCheckoutIDs returns skeleton circ records for everything the
// patron has out, overdue items first. The server is inconsistent about
// whether the ID lists hold strings or integers.
func (a *Assembler) FetchCheckoutIDs(ctx context.Context) ([]*CircRecord, error) {
	var recs []*CircRecord
	err := a.Session.WithRetry(ctx, func(ctx context.Context, token string) error {
		resp, err := a.Gateway.Request(ctx, actorService, "open-ils.actor.user.checked_out",
			token, a.Session.UserID())
		if err != nil {
			return err
		}
		obj, err := resp.Object()
		if err != nil {
			return err
		}
		recs = recs[:0]
		for _, id := range obj.GetIDList("overdue") {
			rec := NewCircRecord(id)
			rec.Overdue = true
			recs = append(recs, rec)
		}
		for _, id := range obj.GetIDList("out") {
			recs = append(recs, NewCircRecord(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// FleshCheckouts fetches circ detail for every skeleton concurrently and
// chains the bib fetch off each circ's target copy. It waits for all
// records to finish or fail.
func (a *Assembler) FleshCheckouts(ctx context.Context, recs []*CircRecord) {
	var wg sync.WaitGroup
	for _, rec := range recs {
		wg.Add(1)
		go func(rec *CircRecord) {
			defer wg.Done()
			if err := a.fleshCheckout(ctx, rec); err != nil {
				rec.SetError(err)
				log.Printf("flesh circ %d: %v", rec.ID, err)
			}
		}(rec)
	}
	wg.Wait()
}

func (a *Assembler) fleshCheckout(ctx context.Context, rec *CircRecord) error {
	return a.Session.WithRetry(ctx, func(ctx context.Context, token string) error {
		resp, err := a.Gateway.Request(ctx, circService, "open-ils.circ.retrieve", token, rec.ID)
		if err != nil {
			return err
		}
		circ, err := resp.Object()
		if err != nil {
			return err
		}
		rec.AttachCirc(circ)

		copyID, ok := circ.GetInt("target_copy")
		if !ok {
			// A circulation always targets a copy; degrade this record
			// but keep the circ data we have.
			log.Printf("circ %d: %v", rec.ID, &ShouldNotHappenError{Message: "circulation with no target copy"})
			return nil
		}
		bib, err := a.fetchBibFromCopy(ctx, copyID)
		if err != nil {
			return err
		}
		rec.AttachBib(bib)
		return nil
	})
}

// fetchBibFromCopy resolves a copy ID to its bib summary (the
// second-order fetch chained off a circ detail). The search service
// takes no auth token.
func (a *Assembler) fetchBibFromCopy(ctx context.Context, copyID int) (*BibRecord, error) {
	resp, err := a.Gateway.Request(ctx, searchService,
		"open-ils.search.biblio.mods_from_copy", copyID)
	if err != nil {
		return nil, err
	}
	mvr, err := resp.Object()
	if err != nil {
		return nil, err
	}
	docID, _ := mvr.GetInt("doc_id")
	bib := NewBibRecord(docID)
	bib.Attach(mvr)
	return bib, nil
}

// FetchHoldIDs returns skeleton hold records from the bulk ID-list call.
func (a *Assembler) FetchHoldIDs(ctx context.Context) ([]*HoldRecord, error) {
	ids, err := a.fetchIDList(ctx, circService, "open-ils.circ.holds.id_list.retrieve")
	if err != nil {
		return nil, err
	}
	recs := make([]*HoldRecord, 0, len(ids))
	for _, id := range ids {
		recs = append(recs, NewHoldRecord(id))
	}
	return recs, nil
}

// FleshHolds fetches hold details concurrently. One details call carries
// the hold object, queue statistics, and the bib summary together.
func (a *Assembler) FleshHolds(ctx context.Context, recs []*HoldRecord) {
	var wg sync.WaitGroup
	for _, rec := range recs {
		wg.Add(1)
		go func(rec *HoldRecord) {
			defer wg.Done()
			if err := a.fleshHold(ctx, rec); err != nil {
				rec.SetError(err)
				log.Printf("flesh hold %d: %v", rec.ID, err)
			}
		}(rec)
	}
	wg.Wait()
}

func (a *Assembler) fleshHold(ctx context.Context, rec *HoldRecord) error {
	return a.Session.WithRetry(ctx, func(ctx context.Context, token string) error {
		resp, err := a.Gateway.Request(ctx, circService,
			"open-ils.circ.hold.details.retrieve", token, rec.ID)
		if err != nil {
			return err
		}
		details, err := resp.Object()
		if err != nil {
			return err
		}
		hold := details.GetObject("hold")
		if hold == nil {
			return &ShouldNotHappenError{Message: "hold details with no hold object"}
		}
		rec.AttachHold(hold)

		qstats := wire.NewObject()
		for _, key := range []string{"queue_position", "potential_copies", "total_holds", "status", "estimated_wait"} {
			if details.Has(key) {
				qstats.Set(key, details.Get(key))
			}
		}
		rec.AttachQueueStats(qstats)

		if mvr := details.GetObject("mvr"); mvr != nil {
			docID, _ := mvr.GetInt("doc_id")
			bib := NewBibRecord(docID)
			bib.Attach(mvr)
			rec.AttachBib(bib)
		}
		return nil
	})
}

// FetchHistoryIDs returns skeleton history records from the bulk ID-list
// call.
func (a *Assembler) FetchHistoryIDs(ctx context.Context) ([]*HistoryRecord, error) {
	ids, err := a.fetchIDList(ctx, actorService, "open-ils.actor.history.circ.id_list")
	if err != nil {
		return nil, err
	}
	recs := make([]*HistoryRecord, 0, len(ids))
	for _, id := range ids {
		recs = append(recs, NewHistoryRecord(id))
	}
	return recs, nil
}

// FleshHistory fetches history detail concurrently, chaining the bib
// fetch off each entry's target copy.
func (a *Assembler) FleshHistory(ctx context.Context, recs []*HistoryRecord) {
	var wg sync.WaitGroup
	for _, rec := range recs {
		wg.Add(1)
		go func(rec *HistoryRecord) {
			defer wg.Done()
			if err := a.fleshHistory(ctx, rec); err != nil {
				rec.SetError(err)
				log.Printf("flesh history %d: %v", rec.ID, err)
			}
		}(rec)
	}
	wg.Wait()
}

func (a *Assembler) fleshHistory(ctx context.Context, rec *HistoryRecord) error {
	return a.Session.WithRetry(ctx, func(ctx context.Context, token string) error {
		resp, err := a.Gateway.Request(ctx, actorService,
			"open-ils.actor.history.circ.retrieve", token, rec.ID)
		if err != nil {
			return err
		}
		obj, err := resp.Object()
		if err != nil {
			return err
		}
		rec.Attach(obj)

		copyID, ok := obj.GetInt("target_copy")
		if !ok {
			return nil
		}
		bib, err := a.fetchBibFromCopy(ctx, copyID)
		if err != nil {
			return err
		}
		rec.AttachBib(bib)
		return nil
	})
}

// fetchIDList runs one bulk call whose payload is a bare list of IDs,
// normalizing the string/integer ambiguity.
func (a *Assembler) fetchIDList(ctx context.Context, service, method string) ([]int, error) {
	var ids []int
	err := a.Session.WithRetry(ctx, func(ctx context.Context, token string) error {
		resp, err := a.Gateway.Request(ctx, service, method, token, a.Session.UserID())
		if err != nil {
			return err
		}
		if resp.Failed() {
			return resp.Err
		}
		switch resp.Type {
		case gateway.PayloadEmpty:
			ids = nil
			return nil
		case gateway.PayloadArray:
			list, err := resp.List()
			if err != nil {
				return err
			}
			ids = wire.IDList(list)
			return nil
		case gateway.PayloadObject:
			// An empty result sometimes arrives as the empty-object
			// quirk rather than an empty list.
			obj, err := resp.Object()
			if err == nil && obj.Len() == 0 {
				ids = nil
				return nil
			}
		}
		return &gateway.ShapeError{Expected: "array"}
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
