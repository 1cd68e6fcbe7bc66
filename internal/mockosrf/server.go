// Package mockosrf is an in-process OSRF gateway emulator. It speaks the
// real envelope (one-element payload arrays, positional class objects,
// ilsevent failures inside successful envelopes), so client code
// exercised against it sees exactly what a production gateway sends.
// Package tests run it under httptest; `hemlock sim` runs it standalone.
package mockosrf

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"hemlock/internal/auth"
	"hemlock/internal/idl"
)

// User is one seeded patron.
type User struct {
	ID       int
	Username string
	Password string
	Circs    []Circ
	Holds    []Hold
	History  []HistoryEntry
	Messages []Message
	Bookbags []string
	Address  map[string]any
}

// Circ is one open circulation.
type Circ struct {
	ID                int
	TargetCopy        int
	DueDate           string
	Overdue           bool
	RenewalsRemaining int
}

// Hold is one hold request.
type Hold struct {
	ID            int
	Target        int // bib doc_id
	QueuePosition int
	TotalHolds    int
	Status        int
}

// HistoryEntry is one completed circulation.
type HistoryEntry struct {
	ID          int
	TargetCopy  int
	XactStart   string
	CheckinTime string
}

// Message is one patron message.
type Message struct {
	ID      int
	Title   string
	Message string
}

// Bib is one bibliographic record.
type Bib struct {
	DocID     int
	Title     string
	Author    string
	PubDate   int
	ISBN      string
	OnlineLoc []string
}

// Server holds the simulator state. All mutators are safe for
// concurrent use; handlers and test hooks share one lock.
type Server struct {
	secret []byte

	mu        sync.Mutex
	users     map[string]*User
	byID      map[int]*User
	bibs      map[int]Bib
	copies    map[int]int // copy id -> bib doc_id
	nonces    map[string]string
	issued    []string
	revoked   map[string]bool
	failCircs map[int]bool

	authInits     int
	authCompletes int
}

func New() *Server {
	return &Server{
		secret:    []byte(uuid.NewString()),
		users:     map[string]*User{},
		byID:      map[int]*User{},
		bibs:      map[int]Bib{},
		copies:    map[int]int{},
		nonces:    map[string]string{},
		revoked:   map[string]bool{},
		failCircs: map[int]bool{},
	}
}

// AddUser registers a patron.
func (s *Server) AddUser(u User) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := u
	s.users[u.Username] = &cp
	s.byID[u.ID] = &cp
	return &cp
}

// AddBib registers a bib record and maps a copy to it.
func (s *Server) AddBib(b Bib, copyID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bibs[b.DocID] = b
	s.copies[copyID] = b.DocID
}

// RevokeTokens invalidates every token issued so far, so the next
// authenticated call sees NO_SESSION and the client's re-auth policy
// kicks in. Tokens issued after the call remain valid.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.issued {
		s.revoked[t] = true
	}
}

// FailCirc makes circ detail fetches for one ID fail with a server
// error, for partial-failure tests.
func (s *Server) FailCirc(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCircs[id] = true
}

// AuthInitCount reports how many authenticate.init calls were served.
func (s *Server) AuthInitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authInits
}

// Handler returns the gateway endpoint as an http.Handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/osrf-gateway-v1", s.handle)
	r.Post("/osrf-gateway-v1", s.handle)
	return r
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	method := q.Get("method")
	var params []any
	for _, raw := range q["param"] {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = nil
		}
		params = append(params, v)
	}

	switch method {
	case "open-ils.auth.authenticate.init":
		s.authInit(w, params)
	case "open-ils.auth.authenticate.complete":
		s.authComplete(w, params)
	case "open-ils.auth.session.retrieve":
		s.sessionRetrieve(w, params)
	case "open-ils.auth.session.delete":
		s.sessionDelete(w, params)
	case "open-ils.actor.user.checked_out":
		s.checkedOut(w, params)
	case "open-ils.circ.retrieve":
		s.circRetrieve(w, params)
	case "open-ils.search.biblio.mods_from_copy":
		s.modsFromCopy(w, params)
	case "open-ils.circ.holds.id_list.retrieve":
		s.holdIDList(w, params)
	case "open-ils.circ.hold.details.retrieve":
		s.holdDetails(w, params)
	case "open-ils.actor.history.circ.id_list":
		s.historyIDList(w, params)
	case "open-ils.actor.history.circ.retrieve":
		s.historyRetrieve(w, params)
	case "open-ils.actor.message.retrieve":
		s.messages(w, params)
	case "open-ils.actor.container.retrieve_by_class":
		s.bookbags(w, params)
	case "open-ils.actor.user.address.retrieve":
		s.address(w, params)
	default:
		respond(w, 404, nil)
	}
}

func (s *Server) authInit(w http.ResponseWriter, params []any) {
	username, _ := stringParam(params, 0)
	nonce := uuid.NewString()

	s.mu.Lock()
	s.authInits++
	s.nonces[username] = nonce
	s.mu.Unlock()

	respond(w, 200, []any{nonce})
}

func (s *Server) authComplete(w http.ResponseWriter, params []any) {
	args, _ := mapParam(params, 0)
	username, _ := args["username"].(string)
	hash, _ := args["password"].(string)

	s.mu.Lock()
	s.authCompletes++
	user := s.users[username]
	nonce := s.nonces[username]
	s.mu.Unlock()

	if user == nil || nonce == "" || hash != auth.PasswordHash(nonce, user.Password) {
		respond(w, 200, []any{event(1000, "LOGIN_FAILED",
			"User login failed")})
		return
	}
	token := s.issueToken(user)
	respond(w, 200, []any{map[string]any{
		"ilsevent": 0,
		"textcode": "SUCCESS",
		"desc":     "Success",
		"payload":  map[string]any{"authtoken": token, "authtime": 420},
	}})
}

func (s *Server) sessionRetrieve(w http.ResponseWriter, params []any) {
	token, _ := stringParam(params, 0)
	user := s.validToken(token)
	if user == nil {
		respond(w, 200, []any{noSession()})
		return
	}
	respond(w, 200, []any{classObject("au", map[string]any{
		"id":      user.ID,
		"usrname": user.Username,
		// day_phone is a string-typed field the real server fills with
		// digits; kept numeric-looking on purpose
		"day_phone":   "5551234",
		"family_name": "Tester",
		"home_ou":     1,
	})})
}

func (s *Server) sessionDelete(w http.ResponseWriter, params []any) {
	token, _ := stringParam(params, 0)
	s.mu.Lock()
	s.revoked[token] = true
	s.mu.Unlock()
	respond(w, 200, []any{token})
}

func (s *Server) checkedOut(w http.ResponseWriter, params []any) {
	user := s.authedUser(w, params)
	if user == nil {
		return
	}
	// the real service mixes representations: "out" as strings,
	// "overdue" as integers
	out := []any{}
	overdue := []any{}
	for _, c := range user.Circs {
		if c.Overdue {
			overdue = append(overdue, c.ID)
		} else {
			out = append(out, fmt.Sprintf("%d", c.ID))
		}
	}
	respond(w, 200, []any{map[string]any{"out": out, "overdue": overdue}})
}

func (s *Server) circRetrieve(w http.ResponseWriter, params []any) {
	user := s.authedUser(w, params)
	if user == nil {
		return
	}
	circID, _ := intParam(params, 1)

	s.mu.Lock()
	fail := s.failCircs[circID]
	s.mu.Unlock()
	if fail {
		respond(w, 500, nil)
		return
	}
	for _, c := range user.Circs {
		if c.ID == circID {
			respond(w, 200, []any{classObject("circ", map[string]any{
				"id":                c.ID,
				"usr":               user.ID,
				"target_copy":       c.TargetCopy,
				"due_date":          c.DueDate,
				"renewal_remaining": c.RenewalsRemaining,
			})})
			return
		}
	}
	respond(w, 404, nil)
}

func (s *Server) modsFromCopy(w http.ResponseWriter, params []any) {
	copyID, _ := intParam(params, 0)
	s.mu.Lock()
	docID, ok := s.copies[copyID]
	bib := s.bibs[docID]
	s.mu.Unlock()
	if !ok {
		respond(w, 404, nil)
		return
	}
	respond(w, 200, []any{mvrObject(bib)})
}

func (s *Server) holdIDList(w http.ResponseWriter, params []any) {
	user := s.authedUser(w, params)
	if user == nil {
		return
	}
	ids := []any{}
	for _, h := range user.Holds {
		ids = append(ids, h.ID)
	}
	respond(w, 200, []any{ids})
}

func (s *Server) holdDetails(w http.ResponseWriter, params []any) {
	user := s.authedUser(w, params)
	if user == nil {
		return
	}
	holdID, _ := intParam(params, 1)
	for _, h := range user.Holds {
		if h.ID != holdID {
			continue
		}
		s.mu.Lock()
		bib := s.bibs[h.Target]
		s.mu.Unlock()
		respond(w, 200, []any{map[string]any{
			"hold": classObject("ahr", map[string]any{
				"id":        h.ID,
				"usr":       user.ID,
				"target":    h.Target,
				"hold_type": "T",
			}),
			"mvr":            mvrObject(bib),
			"queue_position": h.QueuePosition,
			"total_holds":    h.TotalHolds,
			"status":         h.Status,
		}})
		return
	}
	respond(w, 404, nil)
}

func (s *Server) historyIDList(w http.ResponseWriter, params []any) {
	user := s.authedUser(w, params)
	if user == nil {
		return
	}
	// string IDs, matching the actor service's habit
	ids := []any{}
	for _, h := range user.History {
		ids = append(ids, fmt.Sprintf("%d", h.ID))
	}
	respond(w, 200, []any{ids})
}

func (s *Server) historyRetrieve(w http.ResponseWriter, params []any) {
	user := s.authedUser(w, params)
	if user == nil {
		return
	}
	histID, _ := intParam(params, 1)
	for _, h := range user.History {
		if h.ID == histID {
			respond(w, 200, []any{classObject("circ", map[string]any{
				"id":           h.ID,
				"usr":          user.ID,
				"target_copy":  h.TargetCopy,
				"xact_start":   h.XactStart,
				"checkin_time": h.CheckinTime,
			})})
			return
		}
	}
	respond(w, 404, nil)
}

func (s *Server) messages(w http.ResponseWriter, params []any) {
	user := s.authedUser(w, params)
	if user == nil {
		return
	}
	msgs := []any{}
	for _, m := range user.Messages {
		msgs = append(msgs, classObject("aum", map[string]any{
			"id":      m.ID,
			"usr":     user.ID,
			"title":   m.Title,
			"message": m.Message,
		}))
	}
	respond(w, 200, []any{msgs})
}

func (s *Server) bookbags(w http.ResponseWriter, params []any) {
	user := s.authedUser(w, params)
	if user == nil {
		return
	}
	bags := []any{}
	for i, name := range user.Bookbags {
		bags = append(bags, map[string]any{"id": i + 1, "name": name})
	}
	respond(w, 200, []any{bags})
}

func (s *Server) address(w http.ResponseWriter, params []any) {
	user := s.authedUser(w, params)
	if user == nil {
		return
	}
	if user.Address == nil {
		respond(w, 200, nil)
		return
	}
	respond(w, 200, []any{user.Address})
}

// authedUser validates the leading token param and writes the NO_SESSION
// event itself when validation fails.
func (s *Server) authedUser(w http.ResponseWriter, params []any) *User {
	token, _ := stringParam(params, 0)
	user := s.validToken(token)
	if user == nil {
		respond(w, 200, []any{noSession()})
		return nil
	}
	return user
}

func (s *Server) issueToken(u *User) string {
	claims := jwt.MapClaims{
		"sub": u.Username,
		"uid": u.ID,
		"jti": uuid.NewString(),
		"iat": time.Now().Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		// HMAC signing over in-memory state cannot fail
		panic(err)
	}
	s.mu.Lock()
	s.issued = append(s.issued, token)
	s.mu.Unlock()
	return token
}

// validToken parses and verifies a token and resolves its user. Signed
// JWTs keep the simulator stateless about sessions; revocation is the
// only server-side session state, and only tests use it.
func (s *Server) validToken(token string) *User {
	if token == "" {
		return nil
	}
	s.mu.Lock()
	revoked := s.revoked[token]
	s.mu.Unlock()
	if revoked {
		return nil
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return nil
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}
	uid, ok := claims["uid"].(float64)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[int(uid)]
}

// classObject emits the gateway's positional encoding for a registered
// class: field values zipped into __p in IDL order, nil for the gaps.
func classObject(class string, vals map[string]any) map[string]any {
	fields := idl.Fields(class)
	p := make([]any, len(fields))
	for i, f := range fields {
		p[i] = vals[f]
	}
	return map[string]any{"__c": class, "__p": p}
}

func mvrObject(bib Bib) map[string]any {
	locs := []any{}
	for _, l := range bib.OnlineLoc {
		locs = append(locs, l)
	}
	return classObject("mvr", map[string]any{
		"doc_id":     bib.DocID,
		"title":      bib.Title,
		"author":     bib.Author,
		"pubdate":    fmt.Sprintf("%d", bib.PubDate),
		"isbn":       bib.ISBN,
		"online_loc": locs,
	})
}

func event(ilsevent int, textcode, desc string) map[string]any {
	return map[string]any{"ilsevent": ilsevent, "textcode": textcode, "desc": desc}
}

func noSession() map[string]any {
	return event(1001, "NO_SESSION", "User login session has either timed out or does not exist")
}

func respond(w http.ResponseWriter, status int, payload []any) {
	if payload == nil {
		payload = []any{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "payload": payload})
}

func stringParam(params []any, i int) (string, bool) {
	if i >= len(params) {
		return "", false
	}
	s, ok := params[i].(string)
	return s, ok
}

func intParam(params []any, i int) (int, bool) {
	if i >= len(params) {
		return 0, false
	}
	switch t := params[i].(type) {
	case float64:
		return int(t), true
	case string:
		var n int
		if _, err := fmt.Sscanf(t, "%d", &n); err == nil {
			return n, true
		}
	}
	return 0, false
}

func mapParam(params []any, i int) (map[string]any, bool) {
	if i >= len(params) {
		return nil, false
	}
	m, ok := params[i].(map[string]any)
	return m, ok
}
