package service_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/repository"
	"github.com/unclebandit/mailflow/internal/service"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func ago(d time.Duration) *time.Time {
	t := testNow.Add(-d)
	return &t
}

const day = 24 * time.Hour

// memStore backs every mock repository so tests can assert on the resulting rows.
type memStore struct {
	mu            sync.Mutex
	campaigns     map[uuid.UUID]uuid.UUID
	automations   map[uuid.UUID]*model.Automation
	addCountCalls int
	emailLogs     []*model.EmailLog
	events        map[uuid.UUID]*model.WebhookEvent
	eventOrder    []uuid.UUID
	eventsByKey   map[string]uuid.UUID
	autoLogs      []*model.AutomationLog
	contacts      []*model.Contact
	suppressions  []model.Suppression
	reengagements []*model.ReEngagementCampaign
	eventErr      error
	autoLogErr    error
}

func newMemStore() *memStore {
	return &memStore{
		campaigns:   map[uuid.UUID]uuid.UUID{},
		automations: map[uuid.UUID]*model.Automation{},
		events:      map[uuid.UUID]*model.WebhookEvent{},
		eventsByKey: map[string]uuid.UUID{},
	}
}

func (s *memStore) addCampaign(owner uuid.UUID) uuid.UUID {
	id := uuid.New()
	s.campaigns[id] = owner
	return id
}

func (s *memStore) addAutomation(a *model.Automation) *model.Automation {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Name == "" {
		a.Name = "automation " + string(a.Trigger)
	}
	a.Enabled = true
	s.automations[a.ID] = a
	return a
}

func (s *memStore) addEmailLog(l *model.EmailLog) *model.EmailLog {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = model.EmailStatusSent
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = testNow.Add(-30 * day)
	}
	s.emailLogs = append(s.emailLogs, l)
	return l
}

func (s *memStore) addContact(c *model.Contact) *model.Contact {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = model.ContactActive
	}
	s.contacts = append(s.contacts, c)
	return c
}

func (s *memStore) logsFor(automationID uuid.UUID) []*model.AutomationLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.AutomationLog
	for _, l := range s.autoLogs {
		if l.AutomationID == automationID {
			out = append(out, l)
		}
	}
	return out
}

func (s *memStore) reengagementsFor(contactID uuid.UUID) []*model.ReEngagementCampaign {
	var out []*model.ReEngagementCampaign
	for _, rc := range s.reengagements {
		if rc.ContactID == contactID {
			out = append(out, rc)
		}
	}
	return out
}

// --- campaigns ---

type MockCampaignRepo struct{ s *memStore }

func (m *MockCampaignRepo) GetOwner(_ context.Context, campaignID uuid.UUID) (uuid.UUID, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	owner, ok := m.s.campaigns[campaignID]
	if !ok {
		return uuid.Nil, appErrors.NewCampaignNotFound(campaignID)
	}
	return owner, nil
}

// --- automations ---

type MockAutomationRepo struct{ s *memStore }

func (m *MockAutomationRepo) ListEnabledByTrigger(_ context.Context, userID uuid.UUID, trigger model.Trigger) ([]*model.Automation, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []*model.Automation{}
	for _, a := range m.s.automations {
		if a.UserID == userID && a.Trigger == trigger && a.Enabled {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MockAutomationRepo) ListEnabledByTriggers(_ context.Context, triggers []model.Trigger) ([]*model.Automation, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []*model.Automation{}
	for _, a := range m.s.automations {
		for _, t := range triggers {
			if a.Trigger == t && a.Enabled {
				out = append(out, a)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MockAutomationRepo) GetByID(_ context.Context, userID, id uuid.UUID) (*model.Automation, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.automations[id]
	if !ok || a.UserID != userID {
		return nil, appErrors.NewAutomationNotFound(id)
	}
	return a, nil
}

func (m *MockAutomationRepo) AddCounts(_ context.Context, id uuid.UUID, triggered, completed int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.automations[id]
	if !ok {
		return appErrors.NewAutomationNotFound(id)
	}
	m.s.addCountCalls++
	a.TriggeredCount += triggered
	a.CompletedCount += completed
	return nil
}

// --- email logs ---

type MockEmailLogRepo struct{ s *memStore }

func (m *MockEmailLogRepo) FindLatest(_ context.Context, campaignID uuid.UUID, email string) (*model.EmailLog, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var found *model.EmailLog
	for _, l := range m.s.emailLogs {
		if l.CampaignID == campaignID && strings.EqualFold(l.Email, email) {
			if found == nil || l.CreatedAt.After(found.CreatedAt) {
				found = l
			}
		}
	}
	if found == nil {
		return nil, appErrors.NewEmailLogNotFound(email, campaignID.String())
	}
	cp := *found
	return &cp, nil
}

func (m *MockEmailLogRepo) FindByProviderMessageID(_ context.Context, messageID string) (*model.EmailLog, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, l := range m.s.emailLogs {
		if l.ProviderMessageID == messageID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, appErrors.NewEmailLogNotFound("message "+messageID, "")
}

func coalesce(current, next *time.Time) *time.Time {
	if current != nil {
		return current
	}
	return next
}

func (m *MockEmailLogRepo) ApplyUpdate(_ context.Context, id uuid.UUID, upd model.EmailLogUpdate) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, l := range m.s.emailLogs {
		if l.ID != id {
			continue
		}
		l.Status = upd.Status
		l.SentAt = coalesce(l.SentAt, upd.SentAt)
		l.DeliveredAt = coalesce(l.DeliveredAt, upd.DeliveredAt)
		l.OpenedAt = coalesce(l.OpenedAt, upd.OpenedAt)
		l.ClickedAt = coalesce(l.ClickedAt, upd.ClickedAt)
		l.RepliedAt = coalesce(l.RepliedAt, upd.RepliedAt)
		if upd.ErrorMessage != "" {
			l.ErrorMessage = upd.ErrorMessage
		}
	}
	return nil
}

func matchesTrigger(l *model.EmailLog, trigger model.Trigger) bool {
	switch trigger {
	case model.TriggerNotOpened:
		return l.OpenedAt == nil && !l.Status.IsTerminal()
	case model.TriggerOpenedNoClick:
		return l.OpenedAt != nil && l.ClickedAt == nil
	case model.TriggerNoReply:
		return l.OpenedAt == nil && l.RepliedAt == nil && !l.Status.IsTerminal()
	}
	return false
}

func (m *MockEmailLogRepo) ListDueForTrigger(_ context.Context, a *model.Automation, cutoff time.Time, limit int) ([]*model.EmailLog, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	logged := map[string]bool{}
	for _, al := range m.s.autoLogs {
		if al.AutomationID == a.ID {
			if ev, ok := m.s.events[al.WebhookEventID]; ok {
				logged[ev.DedupKey] = true
			}
		}
	}

	var due []*model.EmailLog
	for _, l := range m.s.emailLogs {
		if m.s.campaigns[l.CampaignID] != a.UserID || l.SentAt == nil || !l.SentAt.Before(cutoff) {
			continue
		}
		if !matchesTrigger(l, a.Trigger) || logged[model.ScheduledDedupKey(a.ID, l.ID)] {
			continue
		}
		cp := *l
		due = append(due, &cp)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].SentAt.Before(*due[j].SentAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *MockEmailLogRepo) ListRecentEngagements(_ context.Context, since time.Time, limit int) ([]model.Engagement, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []model.Engagement{}
	for _, l := range m.s.emailLogs {
		opened := l.OpenedAt != nil && !l.OpenedAt.Before(since)
		clicked := l.ClickedAt != nil && !l.ClickedAt.Before(since)
		if opened || clicked {
			out = append(out, model.Engagement{UserID: m.s.campaigns[l.CampaignID], Email: l.Email, OpenedAt: l.OpenedAt, ClickedAt: l.ClickedAt})
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- webhook events ---

type MockEventRepo struct{ s *memStore }

func (m *MockEventRepo) CreateOrGet(_ context.Context, ev *model.WebhookEvent) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.eventErr != nil {
		return false, m.s.eventErr
	}
	if ev.DedupKey != "" {
		if id, ok := m.s.eventsByKey[ev.DedupKey]; ok {
			existing := m.s.events[id]
			ev.ID = existing.ID
			ev.Processed = existing.Processed
			ev.ProcessedAt = existing.ProcessedAt
			ev.CreatedAt = existing.CreatedAt
			return false, nil
		}
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	ev.CreatedAt = testNow
	cp := *ev
	m.s.events[ev.ID] = &cp
	m.s.eventOrder = append(m.s.eventOrder, ev.ID)
	if ev.DedupKey != "" {
		m.s.eventsByKey[ev.DedupKey] = ev.ID
	}
	return true, nil
}

func (m *MockEventRepo) MarkProcessed(_ context.Context, id uuid.UUID, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if ev, ok := m.s.events[id]; ok {
		ev.Processed = true
		ev.ProcessedAt = &at
	}
	return nil
}

// --- automation logs ---

type MockAutomationLogRepo struct{ s *memStore }

func (m *MockAutomationLogRepo) Create(_ context.Context, automationID, webhookEventID uuid.UUID) (*model.AutomationLog, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.autoLogErr != nil {
		return nil, m.s.autoLogErr
	}
	for _, l := range m.s.autoLogs {
		if l.AutomationID == automationID && l.WebhookEventID == webhookEventID {
			return nil, appErrors.ErrAlreadyProcessed
		}
	}
	l := &model.AutomationLog{
		ID:             uuid.New(),
		AutomationID:   automationID,
		WebhookEventID: webhookEventID,
		Status:         model.AutomationLogPending,
		CreatedAt:      testNow,
	}
	m.s.autoLogs = append(m.s.autoLogs, l)
	cp := *l
	return &cp, nil
}

func (m *MockAutomationLogRepo) set(id uuid.UUID, status model.AutomationLogStatus, msg string) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, l := range m.s.autoLogs {
		if l.ID == id {
			l.Status = status
			l.ErrorMessage = msg
			now := testNow
			l.CompletedAt = &now
		}
	}
}

func (m *MockAutomationLogRepo) Complete(_ context.Context, id uuid.UUID) error {
	m.set(id, model.AutomationLogCompleted, "")
	return nil
}

func (m *MockAutomationLogRepo) Fail(_ context.Context, id uuid.UUID, errorMessage string) error {
	m.set(id, model.AutomationLogFailed, errorMessage)
	return nil
}

func (m *MockAutomationLogRepo) StatsByAutomation(_ context.Context, automationID uuid.UUID) (map[string]int, error) {
	stats := map[string]int{"total": 0, "pending": 0, "completed": 0, "failed": 0}
	for _, l := range m.s.logsFor(automationID) {
		stats[string(l.Status)]++
		stats["total"]++
	}
	return stats, nil
}

func (m *MockAutomationLogRepo) ListByAutomation(_ context.Context, automationID uuid.UUID, limit int) ([]*model.AutomationLog, error) {
	logs := m.s.logsFor(automationID)
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// --- contacts ---

type MockContactRepo struct{ s *memStore }

func (m *MockContactRepo) RefreshEngagement(_ context.Context, userID uuid.UUID, email string, at time.Time) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, c := range m.s.contacts {
		if c.UserID == userID && strings.EqualFold(c.Email, email) && !c.Suppressed {
			if c.LastEngagedAt == nil || at.After(*c.LastEngagedAt) {
				t := at
				c.LastEngagedAt = &t
			}
			c.EngagementScore = model.MaxEngagementScore
			return true, nil
		}
	}
	return false, nil
}

func (m *MockContactRepo) ListReengagementCandidates(_ context.Context, q repository.ReengagementQuery) ([]*model.Contact, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []*model.Contact{}
	for _, c := range m.s.contacts {
		if c.Status == model.ContactChurned || c.Suppressed || c.ReengagementAttempts > q.MaxAttempts {
			continue
		}
		if c.LastEngagedAt != nil && !c.LastEngagedAt.Before(q.InactiveBefore) {
			continue
		}
		if c.LastReengagementAt != nil && !c.LastReengagementAt.Before(q.CooldownBefore) {
			continue
		}
		cp := *c
		out = append(out, &cp)
		if len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (m *MockContactRepo) ListRecovered(_ context.Context, engagedAfter time.Time, limit int) ([]*model.Contact, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []*model.Contact{}
	for _, c := range m.s.contacts {
		if c.Status == model.ContactInactive && c.LastEngagedAt != nil && c.LastEngagedAt.After(engagedAfter) {
			cp := *c
			out = append(out, &cp)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockContactRepo) SaveLifecycle(_ context.Context, c *model.Contact) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, stored := range m.s.contacts {
		if stored.ID == c.ID {
			stored.Status = c.Status
			stored.EngagementScore = c.EngagementScore
			stored.InactiveSince = c.InactiveSince
			stored.ReengagementAttempts = c.ReengagementAttempts
			stored.LastReengagementAt = c.LastReengagementAt
		}
	}
	return nil
}

func (m *MockContactRepo) MarkSuppressed(_ context.Context, userID uuid.UUID, email string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, c := range m.s.contacts {
		if c.UserID == userID && strings.EqualFold(c.Email, email) {
			c.Suppressed = true
		}
	}
	return nil
}

// --- suppressions ---

type MockSuppressionRepo struct{ s *memStore }

func (m *MockSuppressionRepo) Add(_ context.Context, userID uuid.UUID, email string, reason model.SuppressionReason) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, sup := range m.s.suppressions {
		if sup.UserID == userID && sup.Email == strings.ToLower(email) {
			return nil
		}
	}
	m.s.suppressions = append(m.s.suppressions, model.Suppression{ID: uuid.New(), UserID: userID, Email: strings.ToLower(email), Reason: reason})
	return nil
}

// --- re-engagement campaigns ---

type MockReEngagementRepo struct{ s *memStore }

func (m *MockReEngagementRepo) Latest(_ context.Context, contactID uuid.UUID) (*model.ReEngagementCampaign, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var latest *model.ReEngagementCampaign
	for _, rc := range m.s.reengagements {
		if rc.ContactID == contactID && (latest == nil || rc.AttemptNumber > latest.AttemptNumber) {
			latest = rc
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *MockReEngagementRepo) Create(_ context.Context, rc *model.ReEngagementCampaign) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.reengagements {
		if existing.ContactID == rc.ContactID && existing.AttemptNumber == rc.AttemptNumber {
			return appErrors.ErrAlreadyProcessed
		}
	}
	cp := *rc
	m.s.reengagements = append(m.s.reengagements, &cp)
	return nil
}

func (m *MockReEngagementRepo) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, rc := range m.s.reengagements {
		if rc.ID == id {
			rc.Status = model.ReEngagementSent
			rc.SentAt = &at
		}
	}
	return nil
}

func (m *MockReEngagementRepo) MarkLatestClicked(_ context.Context, contactID uuid.UUID, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var latest *model.ReEngagementCampaign
	for _, rc := range m.s.reengagements {
		if rc.ContactID == contactID && (latest == nil || rc.AttemptNumber > latest.AttemptNumber) {
			latest = rc
		}
	}
	if latest != nil {
		latest.Status = model.ReEngagementClicked
		latest.ClickedAt = &at
	}
	return nil
}

// --- outbound webhook ---

type sentWebhook struct {
	URL  string
	Data any
}

type MockSender struct {
	mu   sync.Mutex
	Err  error
	Sent []sentWebhook
}

func (m *MockSender) Send(_ context.Context, url string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, sentWebhook{URL: url, Data: data})
	return m.Err
}

var (
	_ repository.CampaignRepositoryInterface      = (*MockCampaignRepo)(nil)
	_ repository.AutomationRepositoryInterface    = (*MockAutomationRepo)(nil)
	_ repository.EmailLogRepositoryInterface      = (*MockEmailLogRepo)(nil)
	_ repository.WebhookEventRepositoryInterface  = (*MockEventRepo)(nil)
	_ repository.AutomationLogRepositoryInterface = (*MockAutomationLogRepo)(nil)
	_ repository.ContactRepositoryInterface       = (*MockContactRepo)(nil)
	_ repository.SuppressionRepositoryInterface   = (*MockSuppressionRepo)(nil)
	_ repository.ReEngagementRepositoryInterface  = (*MockReEngagementRepo)(nil)
)

// fixture wires the services against one memStore.
type fixture struct {
	store     *memStore
	sender    *MockSender
	engine    *service.Engine
	ingestion *service.IngestionService
	scheduler *service.ScheduledScanner
	tracker   *service.ReengagementTracker
}

func newFixture() *fixture {
	s := newMemStore()
	sender := &MockSender{}
	log := zap.NewNop()
	automations := &MockAutomationRepo{s}
	engine := &service.Engine{
		AutomationRepo: automations,
		LogRepo:        &MockAutomationLogRepo{s},
		Sender:         sender,
		Log:            log,
		Now:            fixedNow,
	}
	return &fixture{
		store:  s,
		sender: sender,
		engine: engine,
		ingestion: &service.IngestionService{
			CampaignRepo:    &MockCampaignRepo{s},
			EmailLogRepo:    &MockEmailLogRepo{s},
			EventRepo:       &MockEventRepo{s},
			ContactRepo:     &MockContactRepo{s},
			SuppressionRepo: &MockSuppressionRepo{s},
			Matcher:         &service.Matcher{AutomationRepo: automations},
			Engine:          engine,
			Log:             log,
			Now:             fixedNow,
		},
		scheduler: &service.ScheduledScanner{
			AutomationRepo: automations,
			EmailLogRepo:   &MockEmailLogRepo{s},
			EventRepo:      &MockEventRepo{s},
			Engine:         engine,
			Log:            log,
			Now:            fixedNow,
		},
		tracker: &service.ReengagementTracker{
			EmailLogRepo:     &MockEmailLogRepo{s},
			ContactRepo:      &MockContactRepo{s},
			ReEngagementRepo: &MockReEngagementRepo{s},
			Log:              log,
			Now:              fixedNow,
		},
	}
}
