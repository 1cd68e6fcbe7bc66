package records

import (
	"sort"
	"strings"
	"time"
)

// SortKey selects the client-side display ordering. Sorting happens
// after all available detail has arrived; unfleshed records and records
// with no date sort last regardless of direction.
type SortKey string

const (
	SortByDueDate SortKey = "due"
	SortByTitle   SortKey = "title"
	SortByAuthor  SortKey = "author"
	SortByPubDate SortKey = "pubdate"
)

// ParseSortKey maps a user-supplied sort name to a SortKey.
func ParseSortKey(s string) (SortKey, bool) {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case SortByDueDate:
		return SortByDueDate, true
	case SortByTitle:
		return SortByTitle, true
	case SortByAuthor:
		return SortByAuthor, true
	case SortByPubDate:
		return SortByPubDate, true
	}
	return "", false
}

// SortCheckouts orders circ records in place.
func SortCheckouts(recs []*CircRecord, key SortKey, ascending bool) {
	sort.SliceStable(recs, func(i, j int) bool {
		return circLess(recs[i], recs[j], key, ascending)
	})
}

func circLess(a, b *CircRecord, key SortKey, ascending bool) bool {
	switch key {
	case SortByDueDate:
		return dateLess(a.DueDate, b.DueDate, ascending)
	case SortByAuthor:
		return titleLess(a.Author(), b.Author(), ascending)
	case SortByPubDate:
		return intLess(a.Bib().PubDate(), b.Bib().PubDate(), ascending)
	default:
		return titleLess(a.Title(), b.Title(), ascending)
	}
}

// SortHolds orders hold records in place. Holds have no due date; a due
// sort falls back to title.
func SortHolds(recs []*HoldRecord, key SortKey, ascending bool) {
	sort.SliceStable(recs, func(i, j int) bool {
		switch key {
		case SortByAuthor:
			return titleLess(recs[i].Author(), recs[j].Author(), ascending)
		case SortByPubDate:
			return intLess(recs[i].Bib().PubDate(), recs[j].Bib().PubDate(), ascending)
		default:
			return titleLess(recs[i].Title(), recs[j].Title(), ascending)
		}
	})
}

// SortHistory orders history records in place; the due-date key sorts by
// checkout date, which is what patrons expect from a history view.
func SortHistory(recs []*HistoryRecord, key SortKey, ascending bool) {
	sort.SliceStable(recs, func(i, j int) bool {
		switch key {
		case SortByTitle:
			return titleLess(recs[i].Title(), recs[j].Title(), ascending)
		case SortByAuthor:
			return titleLess(recs[i].Author(), recs[j].Author(), ascending)
		case SortByPubDate:
			return intLess(recs[i].Bib().PubDate(), recs[j].Bib().PubDate(), ascending)
		default:
			return dateLess(recs[i].CheckoutDate, recs[j].CheckoutDate, ascending)
		}
	})
}

// dateLess compares dates in the requested direction, but a record with
// no date sinks to the bottom either way.
func dateLess(a, b func() (time.Time, bool), ascending bool) bool {
	at, aok := a()
	bt, bok := b()
	if aok != bok {
		return aok
	}
	if ascending {
		return at.Before(bt)
	}
	return bt.Before(at)
}

func titleLess(a, b string, ascending bool) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if ascending {
		return la < lb
	}
	return lb < la
}

func intLess(a, b int, ascending bool) bool {
	if ascending {
		return a < b
	}
	return b < a
}
