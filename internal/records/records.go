// Package records holds the patron-facing domain records and the
// assembler that builds them from bulk-ID responses plus fanned-out
// detail fetches. Records begin as skeletons (an ID and nothing else)
// and are fleshed out by attaching wire objects as detail calls land;
// attaches and reads are serialized per record because sibling fetches
// complete concurrently.
package records

import (
	"fmt"
	"sync"
	"time"

	"hemlock/internal/wire"
)

// ShouldNotHappenError is an internal invariant violation (a record with
// no linked transaction, a detail object missing its key). It degrades
// the affected record only and is logged, never swallowed silently and
// never fatal.
type ShouldNotHappenError struct {
	Message string
}

func (e *ShouldNotHappenError) Error() string { return "should not happen: " + e.Message }

// BibRecord is the bibliographic summary (title/author level data)
// linked from circulations and holds.
type BibRecord struct {
	mu  sync.Mutex
	ID  int
	obj *wire.Object // mvr
}

func NewBibRecord(id int) *BibRecord { return &BibRecord{ID: id} }

// Attach sets the mvr detail object.
func (b *BibRecord) Attach(obj *wire.Object) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.obj = obj
}

func (b *BibRecord) get(key string) string {
	if b == nil {
		return ""
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.obj.GetString(key)
}

func (b *BibRecord) Title() string  { return b.get("title") }
func (b *BibRecord) Author() string { return b.get("author") }
func (b *BibRecord) ISBN() string   { return b.get("isbn") }

// PubDate returns the publication year, 0 when unknown.
func (b *BibRecord) PubDate() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	year, _ := b.obj.GetInt("pubdate")
	return year
}

// OnlineLocations returns the raw online_loc entries, alternating
// href/text the way the server sends them.
func (b *BibRecord) OnlineLocations() []string {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var locs []string
	for _, v := range b.obj.GetList("online_loc") {
		locs = append(locs, v.Str())
	}
	return locs
}

// Obj returns the attached detail object, nil while a skeleton.
func (b *BibRecord) Obj() *wire.Object {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.obj
}

// CircRecord is one checked-out item.
type CircRecord struct {
	mu      sync.Mutex
	ID      int
	Overdue bool
	circ    *wire.Object
	bib     *BibRecord
	err     error
}

func NewCircRecord(id int) *CircRecord { return &CircRecord{ID: id} }

func (c *CircRecord) AttachCirc(obj *wire.Object) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.circ = obj
}

func (c *CircRecord) AttachBib(bib *BibRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bib = bib
}

// SetError marks the record as failed to flesh; siblings are unaffected.
func (c *CircRecord) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *CircRecord) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Fleshed reports whether detail data arrived.
func (c *CircRecord) Fleshed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.circ != nil
}

func (c *CircRecord) DueDate() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.circ.GetDate("due_date")
}

func (c *CircRecord) RenewalsRemaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, _ := c.circ.GetInt("renewal_remaining")
	return n
}

func (c *CircRecord) TargetCopy() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.circ.GetInt("target_copy")
}

func (c *CircRecord) Bib() *BibRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bib
}

func (c *CircRecord) Title() string  { return c.Bib().Title() }
func (c *CircRecord) Author() string { return c.Bib().Author() }

// HoldRecord is one hold request, fleshed with the hold object, queue
// statistics, and the linked bib.
type HoldRecord struct {
	mu     sync.Mutex
	ID     int
	ahr    *wire.Object
	qstats *wire.Object
	bib    *BibRecord
	err    error
}

func NewHoldRecord(id int) *HoldRecord { return &HoldRecord{ID: id} }

func (h *HoldRecord) AttachHold(obj *wire.Object) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ahr = obj
}

func (h *HoldRecord) AttachQueueStats(obj *wire.Object) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.qstats = obj
}

func (h *HoldRecord) AttachBib(bib *BibRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bib = bib
}

func (h *HoldRecord) SetError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

func (h *HoldRecord) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *HoldRecord) Fleshed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ahr != nil
}

func (h *HoldRecord) Bib() *BibRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bib
}

func (h *HoldRecord) Title() string  { return h.Bib().Title() }
func (h *HoldRecord) Author() string { return h.Bib().Author() }

// QueuePosition returns this hold's place in line, 0 when unknown.
func (h *HoldRecord) QueuePosition() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	pos, _ := h.qstats.GetInt("queue_position")
	return pos
}

func (h *HoldRecord) TotalHolds() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, _ := h.qstats.GetInt("total_holds")
	return n
}

// Status renders the hold state the way patrons see it.
func (h *HoldRecord) Status() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.qstats == nil {
		return ""
	}
	switch status, _ := h.qstats.GetInt("status"); status {
	case 4:
		return "ready for pickup"
	case 3:
		return "in transit"
	default:
		if pos, ok := h.qstats.GetInt("queue_position"); ok {
			return fmt.Sprintf("waiting (position %d)", pos)
		}
		return "waiting"
	}
}

func (h *HoldRecord) ExpireTime() (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ahr.GetDate("expire_time")
}

// HistoryRecord is one completed circulation from the patron's history.
type HistoryRecord struct {
	mu  sync.Mutex
	ID  int
	obj *wire.Object
	bib *BibRecord
	err error
}

func NewHistoryRecord(id int) *HistoryRecord { return &HistoryRecord{ID: id} }

func (r *HistoryRecord) Attach(obj *wire.Object) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obj = obj
}

func (r *HistoryRecord) AttachBib(bib *BibRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bib = bib
}

func (r *HistoryRecord) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *HistoryRecord) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *HistoryRecord) Fleshed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.obj != nil
}

func (r *HistoryRecord) Bib() *BibRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bib
}

func (r *HistoryRecord) Title() string  { return r.Bib().Title() }
func (r *HistoryRecord) Author() string { return r.Bib().Author() }

func (r *HistoryRecord) CheckoutDate() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.obj.GetDate("xact_start")
}

func (r *HistoryRecord) ReturnedDate() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.obj.GetDate("checkin_time")
}
