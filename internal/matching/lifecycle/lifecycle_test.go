package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"lead_distribution_backend/internal/matching/domain"
	"lead_distribution_backend/internal/matching/memstore"
	"lead_distribution_backend/platform/apperr"
	"lead_distribution_backend/platform/logger"

	"github.com/google/uuid"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store       *memstore.Store
	svc         *Service
	lead        domain.Lead
	assignments []domain.Assignment
	actors      []ProviderActor
}

// newFixture seeds one dispatched lead with n pending assignments.
func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	store := memstore.New()
	lead := domain.Lead{
		ID:          uuid.New(),
		Specialty:   "plombier",
		PostalCode:  "75011",
		Urgency:     domain.UrgencyMedium,
		Status:      domain.LeadDispatched,
		RequesterID: uuid.New(),
		Contact:     domain.Contact{Name: "Claire Martin", Email: "claire@example.fr", Phone: "+33612345678"},
		CreatedAt:   testNow.Add(-2 * time.Hour),
	}
	store.PutLead(lead)

	f := &fixture{store: store, lead: lead}
	for i := 0; i < n; i++ {
		providerID := uuid.New()
		store.PutProvider(domain.Provider{ID: providerID, Specialty: "plombier", Active: true})
		a := domain.Assignment{
			ID:         uuid.New(),
			LeadID:     lead.ID,
			ProviderID: providerID,
			Status:     domain.AssignmentPending,
			Position:   i + 1,
			AssignedAt: testNow.Add(-time.Hour),
		}
		store.PutAssignment(a)
		f.assignments = append(f.assignments, a)
		f.actors = append(f.actors, ProviderActor{UserID: uuid.New(), ProviderID: providerID})
	}
	f.svc = New(store, nil, logger.Nop(), WithClock(func() time.Time { return testNow }))
	return f
}

func (f *fixture) leadStatus(t *testing.T) domain.LeadStatus {
	t.Helper()
	lead, err := f.store.GetLead(context.Background(), f.lead.ID)
	if err != nil {
		t.Fatalf("GetLead: %v", err)
	}
	return lead.Status
}

func (f *fixture) assignment(t *testing.T, i int) domain.Assignment {
	t.Helper()
	a, err := f.store.GetAssignment(context.Background(), f.assignments[i].ID)
	if err != nil {
		t.Fatalf("GetAssignment: %v", err)
	}
	return a
}

func (f *fixture) countEvents(eventType domain.EventType) int {
	n := 0
	for _, e := range f.store.Events(&f.lead.ID) {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func (f *fixture) quote(t *testing.T, i int, amount int64) domain.Quote {
	t.Helper()
	res, err := f.svc.SubmitQuote(context.Background(), f.actors[i], f.assignments[i].ID, QuoteInput{AmountCents: amount})
	if err != nil {
		t.Fatalf("SubmitQuote: %v", err)
	}
	return *res.Quote
}

func TestViewAdvancesAssignmentAndLead(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	res, err := f.svc.View(ctx, f.actors[0], f.assignments[0].ID)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if res.NoOp || res.Assignment.Status != domain.AssignmentViewed {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := f.leadStatus(t); got != domain.LeadViewed {
		t.Fatalf("expected lead viewed, got %s", got)
	}

	again, err := f.svc.View(ctx, f.actors[0], f.assignments[0].ID)
	if err != nil {
		t.Fatalf("second View: %v", err)
	}
	if !again.NoOp {
		t.Fatal("expected replayed view to be a no-op")
	}
	if n := f.countEvents(domain.EventViewed); n != 1 {
		t.Fatalf("expected exactly one viewed event, got %d", n)
	}
}

func TestViewAfterQuoteIsNoOp(t *testing.T) {
	f := newFixture(t, 1)
	f.quote(t, 0, 15000)

	res, err := f.svc.View(context.Background(), f.actors[0], f.assignments[0].ID)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if !res.NoOp {
		t.Fatal("expected view on quoted assignment to be a no-op")
	}
	if got := f.assignment(t, 0).Status; got != domain.AssignmentQuoted {
		t.Fatalf("assignment regressed to %s", got)
	}
	if got := f.leadStatus(t); got != domain.LeadQuoted {
		t.Fatalf("lead regressed to %s", got)
	}
}

func TestForeignProviderConflicts(t *testing.T) {
	f := newFixture(t, 2)

	_, err := f.svc.View(context.Background(), f.actors[1], f.assignments[0].ID)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if got := f.assignment(t, 0).Status; got != domain.AssignmentPending {
		t.Fatalf("foreign action changed status to %s", got)
	}
}

func TestDeclineThenQuoteConflicts(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	res, err := f.svc.Decline(ctx, f.actors[0], f.assignments[0].ID, "  <b>Trop loin</b>  ")
	if err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if res.Assignment.DeclineReason == nil || *res.Assignment.DeclineReason != "Trop loin" {
		t.Fatalf("unexpected decline reason %v", res.Assignment.DeclineReason)
	}

	_, err = f.svc.SubmitQuote(ctx, f.actors[0], f.assignments[0].ID, QuoteInput{AmountCents: 1000})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict quoting a declined assignment, got %v", err)
	}

	replay, err := f.svc.Decline(ctx, f.actors[0], f.assignments[0].ID, "")
	if err != nil || !replay.NoOp {
		t.Fatalf("expected decline replay no-op, got %+v %v", replay, err)
	}
}

func TestSubmitQuoteDefaultsAndReplay(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	q := f.quote(t, 0, 24900)
	if q.Status != domain.QuotePending {
		t.Fatalf("expected pending quote, got %s", q.Status)
	}
	if want := testNow.Add(30 * 24 * time.Hour); !q.ValidUntil.Equal(want) {
		t.Fatalf("expected valid until %s, got %s", want, q.ValidUntil)
	}

	replay, err := f.svc.SubmitQuote(ctx, f.actors[0], f.assignments[0].ID, QuoteInput{AmountCents: 99})
	if err != nil {
		t.Fatalf("replayed SubmitQuote: %v", err)
	}
	if !replay.NoOp || replay.Quote == nil || replay.Quote.ID != q.ID {
		t.Fatalf("expected replay to return the original quote, got %+v", replay)
	}
	if n := len(f.store.QuotesForLead(f.lead.ID)); n != 1 {
		t.Fatalf("expected one quote, got %d", n)
	}
}

func TestSubmitQuoteValidation(t *testing.T) {
	f := newFixture(t, 1)

	tests := []struct {
		name string
		in   QuoteInput
	}{
		{name: "zero amount", in: QuoteInput{AmountCents: 0}},
		{name: "negative validity", in: QuoteInput{AmountCents: 100, ValidDays: -1}},
		{name: "validity over a year", in: QuoteInput{AmountCents: 100, ValidDays: 400}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitQuote(context.Background(), f.actors[0], f.assignments[0].ID, tt.in)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestAcceptQuoteCascade(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	winner := f.quote(t, 0, 18000)
	loser := f.quote(t, 1, 21000)
	if _, err := f.svc.View(ctx, f.actors[2], f.assignments[2].ID); err != nil {
		t.Fatalf("View: %v", err)
	}

	res, err := f.svc.AcceptQuote(ctx, f.lead.RequesterID, winner.ID)
	if err != nil {
		t.Fatalf("AcceptQuote: %v", err)
	}
	if res.NoOp || res.ClosedAssignments != 2 || res.RefusedQuotes != 1 {
		t.Fatalf("unexpected cascade result %+v", res)
	}

	if got := f.leadStatus(t); got != domain.LeadAccepted {
		t.Fatalf("expected lead accepted, got %s", got)
	}
	if got := f.assignment(t, 0).Status; got != domain.AssignmentAccepted {
		t.Fatalf("expected winning assignment accepted, got %s", got)
	}
	for _, i := range []int{1, 2} {
		if got := f.assignment(t, i).Status; got != domain.AssignmentClosed {
			t.Fatalf("expected sibling %d closed, got %s", i, got)
		}
	}
	refused, _ := f.store.GetQuote(ctx, loser.ID)
	if refused.Status != domain.QuoteRefused {
		t.Fatalf("expected sibling quote refused, got %s", refused.Status)
	}
	if n := f.countEvents(domain.EventAccepted); n != 1 {
		t.Fatalf("expected one accepted event, got %d", n)
	}

	replay, err := f.svc.AcceptQuote(ctx, f.lead.RequesterID, winner.ID)
	if err != nil || !replay.NoOp {
		t.Fatalf("expected accept replay no-op, got %+v %v", replay, err)
	}
	if n := f.countEvents(domain.EventAccepted); n != 1 {
		t.Fatalf("replay appended an event: %d accepted events", n)
	}

	_, err = f.svc.AcceptQuote(ctx, f.lead.RequesterID, loser.ID)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict accepting a second quote, got %v", err)
	}
}

func TestConcurrentAcceptsPickOneWinner(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()

	quotes := make([]domain.Quote, len(f.assignments))
	for i := range f.assignments {
		quotes[i] = f.quote(t, i, int64(10000+i))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(quotes))
	for i, q := range quotes {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, errs[i] = f.svc.AcceptQuote(ctx, f.lead.RequesterID, id)
		}(i, q.ID)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case !apperr.Is(err, apperr.KindConflict):
			t.Fatalf("unexpected error %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one accepted quote, got %d", wins)
	}

	accepted := 0
	for _, q := range f.store.QuotesForLead(f.lead.ID) {
		if q.Status == domain.QuoteAccepted {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("expected one accepted quote in store, got %d", accepted)
	}
}

func TestAcceptQuoteRejectsForeignRequesterAndExpiredValidity(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	q := f.quote(t, 0, 5000)

	if _, err := f.svc.AcceptQuote(ctx, uuid.New(), q.ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for foreign requester, got %v", err)
	}

	late := New(f.store, nil, logger.Nop(), WithClock(func() time.Time { return q.ValidUntil.Add(time.Minute) }))
	if _, err := late.AcceptQuote(ctx, f.lead.RequesterID, q.ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict past valid_until, got %v", err)
	}
	if got := f.leadStatus(t); got != domain.LeadQuoted {
		t.Fatalf("lead changed to %s", got)
	}
}

func TestRefuseQuoteKeepsLeadOpen(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	q := f.quote(t, 0, 7000)

	res, err := f.svc.RefuseQuote(ctx, f.lead.RequesterID, q.ID)
	if err != nil {
		t.Fatalf("RefuseQuote: %v", err)
	}
	if res.Quote.Status != domain.QuoteRefused {
		t.Fatalf("expected refused, got %s", res.Quote.Status)
	}
	if got := f.leadStatus(t); !got.IsOpen() {
		t.Fatalf("refusal closed the lead: %s", got)
	}
	if n := f.countEvents(domain.EventRefused); n != 1 {
		t.Fatalf("expected one refused event, got %d", n)
	}

	replay, err := f.svc.RefuseQuote(ctx, f.lead.RequesterID, q.ID)
	if err != nil || !replay.NoOp {
		t.Fatalf("expected refuse replay no-op, got %+v %v", replay, err)
	}
	if _, err := f.svc.AcceptQuote(ctx, f.lead.RequesterID, q.ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict accepting a refused quote, got %v", err)
	}
}

func TestCompleteLead(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	if _, err := f.svc.CompleteLead(ctx, f.lead.RequesterID, f.lead.ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict completing a lead without accepted quote, got %v", err)
	}

	q := f.quote(t, 0, 9000)
	if _, err := f.svc.AcceptQuote(ctx, f.lead.RequesterID, q.ID); err != nil {
		t.Fatalf("AcceptQuote: %v", err)
	}
	res, err := f.svc.CompleteLead(ctx, f.lead.RequesterID, f.lead.ID)
	if err != nil || res.Lead.Status != domain.LeadCompleted {
		t.Fatalf("CompleteLead: %+v %v", res, err)
	}
	again, err := f.svc.CompleteLead(ctx, f.lead.RequesterID, f.lead.ID)
	if err != nil || !again.NoOp {
		t.Fatalf("expected completion replay no-op, got %+v %v", again, err)
	}
}

func TestListAssignmentsRevealsContactAfterView(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	providerID := f.actors[0].ProviderID

	items, err := f.svc.ListAssignments(ctx, providerID, domain.AssignmentListFilter{})
	if err != nil {
		t.Fatalf("ListAssignments: %v", err)
	}
	if len(items) != 1 || items[0].Lead.Contact != (domain.Contact{}) {
		t.Fatalf("contact visible before view: %+v", items)
	}

	if _, err := f.svc.View(ctx, f.actors[0], f.assignments[0].ID); err != nil {
		t.Fatalf("View: %v", err)
	}
	items, err = f.svc.ListAssignments(ctx, providerID, domain.AssignmentListFilter{})
	if err != nil {
		t.Fatalf("ListAssignments: %v", err)
	}
	if items[0].Lead.Contact.Email != "claire@example.fr" {
		t.Fatalf("contact hidden after view: %+v", items[0].Lead.Contact)
	}
	if items[0].Lead.Contact.Phone != "06 12 34 56 78" {
		t.Fatalf("expected national phone format, got %q", items[0].Lead.Contact.Phone)
	}
}
