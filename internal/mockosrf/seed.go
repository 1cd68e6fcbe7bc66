package mockosrf

// Seed loads a small demo dataset: one patron with checkouts, holds,
// history, and messages. Used by `hemlock sim` and the scratch harness;
// tests build their own state.
func Seed(s *Server) *User {
	s.AddBib(Bib{
		DocID: 101, Title: "The Left Hand of Darkness", Author: "Le Guin, Ursula K.",
		PubDate: 1969, ISBN: "9780441478125",
	}, 9001)
	s.AddBib(Bib{
		DocID: 102, Title: "Parable of the Sower", Author: "Butler, Octavia E.",
		PubDate: 1993, ISBN: "9780446675505",
	}, 9002)
	s.AddBib(Bib{
		DocID: 103, Title: "Project Gutenberg Selected Works", Author: "Various",
		PubDate: 2010,
		OnlineLoc: []string{
			"https://example.org/ebook?locg=DEMO", "Read online (Gutenberg)",
		},
	}, 9003)
	s.AddBib(Bib{
		DocID: 104, Title: "A Wizard of Earthsea", Author: "Le Guin, Ursula K.",
		PubDate: 1968, ISBN: "9780547773742",
	}, 9004)

	return s.AddUser(User{
		ID:       42,
		Username: "demo",
		Password: "demo1234",
		Circs: []Circ{
			{ID: 7001, TargetCopy: 9001, DueDate: "2026-09-12T23:59:59-0400", RenewalsRemaining: 2},
			{ID: 7002, TargetCopy: 9002, DueDate: "2026-08-20T23:59:59-0400", Overdue: true},
		},
		Holds: []Hold{
			{ID: 8001, Target: 104, QueuePosition: 3, TotalHolds: 11, Status: 0},
			{ID: 8002, Target: 103, QueuePosition: 1, TotalHolds: 1, Status: 4},
		},
		History: []HistoryEntry{
			{ID: 6001, TargetCopy: 9004, XactStart: "2026-05-01T10:00:00-0400", CheckinTime: "2026-05-20T16:30:00-0400"},
		},
		Messages: []Message{
			{ID: 5001, Title: "Welcome", Message: "Welcome to the demo library."},
		},
		Bookbags: []string{"to-read", "favorites"},
	})
}
