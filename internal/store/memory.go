package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"certification-workers/internal/models"
)

// Memory is an in-process Repository with the same semantics as Postgres.
// Transactions are serialized and work on a copy of the state that replaces
// the live state only when fn returns nil.
type Memory struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *memState
}

func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

func (m *Memory) RunInTx(ctx context.Context, fn func(tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	work := m.state.clone()
	m.mu.RUnlock()

	if err := fn(work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = work
	m.mu.Unlock()
	return nil
}

func (m *Memory) read(fn func(s *memState) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(m.state)
}

// write takes txMu so a direct write never lands on state that an open
// transaction is about to replace.
func (m *Memory) write(fn func(s *memState) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.state)
}

// Seed helpers for the collaborator-owned entities.

func (m *Memory) AddCompany(c *models.Company) {
	_ = m.write(func(s *memState) error { s.companies[c.ID] = c.Clone(); return nil })
}

func (m *Memory) AddVendor(v *models.Vendor) {
	_ = m.write(func(s *memState) error { s.vendors[v.ID] = v.Clone(); return nil })
}

func (m *Memory) AddUser(u models.User) {
	_ = m.write(func(s *memState) error { s.users = append(s.users, u); return nil })
}

func (m *Memory) AddDocument(d models.CompanyDocument) {
	_ = m.write(func(s *memState) error { s.documents = append(s.documents, d); return nil })
}

func (m *Memory) AddPayment(p *models.Payment) {
	_ = m.write(func(s *memState) error { cp := *p; s.payments[p.ID] = &cp; return nil })
}

func (m *Memory) AddCertificate(c *models.Certificate) {
	_ = m.write(func(s *memState) error { s.certificates[c.ID] = c.Clone(); return nil })
}

func (m *Memory) GetPayment(_ context.Context, id string) (*models.Payment, error) {
	var out *models.Payment
	err := m.read(func(s *memState) error {
		p, ok := s.payments[id]
		if !ok {
			return ErrNotFound
		}
		cp := *p
		out = &cp
		return nil
	})
	return out, err
}

func (m *Memory) GetVendor(_ context.Context, id string) (*models.Vendor, error) {
	var out *models.Vendor
	err := m.read(func(s *memState) error {
		v, ok := s.vendors[id]
		if !ok {
			return ErrNotFound
		}
		out = v.Clone()
		return nil
	})
	return out, err
}

// ListCertificates returns every certificate of a company, oldest first.
func (m *Memory) ListCertificates(companyID string) []*models.Certificate {
	var out []*models.Certificate
	_ = m.read(func(s *memState) error {
		for _, c := range s.certificates {
			if c.CompanyID == companyID {
				out = append(out, c.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out
}

// ListApplications returns every application of a company, oldest first.
func (m *Memory) ListApplications(companyID string) []*models.Application {
	var out []*models.Application
	_ = m.read(func(s *memState) error {
		for _, a := range s.applications {
			if a.CompanyID == companyID {
				out = append(out, a.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ==========================
// Store methods
// ==========================

func (m *Memory) GetApplication(ctx context.Context, id string) (out *models.Application, err error) {
	err = m.read(func(s *memState) error { out, err = s.GetApplication(ctx, id); return err })
	return out, err
}

func (m *Memory) GetApplicationForUpdate(ctx context.Context, id string) (*models.Application, error) {
	return m.GetApplication(ctx, id)
}

func (m *Memory) CreateApplication(ctx context.Context, app *models.Application) error {
	return m.write(func(s *memState) error { return s.CreateApplication(ctx, app) })
}

func (m *Memory) UpdateApplication(ctx context.Context, app *models.Application, expectedVersion int) error {
	return m.write(func(s *memState) error { return s.UpdateApplication(ctx, app, expectedVersion) })
}

func (m *Memory) FindLatestApplication(ctx context.Context, companyID string, appType models.ApplicationType) (out *models.Application, err error) {
	err = m.read(func(s *memState) error { out, err = s.FindLatestApplication(ctx, companyID, appType); return err })
	return out, err
}

func (m *Memory) ListOpenApplications(ctx context.Context) (out []*models.Application, err error) {
	err = m.read(func(s *memState) error { out, err = s.ListOpenApplications(ctx); return err })
	return out, err
}

func (m *Memory) GetPaymentForUpdate(ctx context.Context, id string) (*models.Payment, error) {
	return m.GetPayment(ctx, id)
}

func (m *Memory) CompletePayment(ctx context.Context, p *models.Payment) error {
	return m.write(func(s *memState) error { return s.CompletePayment(ctx, p) })
}

func (m *Memory) CertificateNumberExists(ctx context.Context, number string) (ok bool, err error) {
	err = m.read(func(s *memState) error { ok, err = s.CertificateNumberExists(ctx, number); return err })
	return ok, err
}

func (m *Memory) CreateCertificate(ctx context.Context, cert *models.Certificate) error {
	return m.write(func(s *memState) error { return s.CreateCertificate(ctx, cert) })
}

func (m *Memory) GetCertificate(ctx context.Context, id string) (out *models.Certificate, err error) {
	err = m.read(func(s *memState) error { out, err = s.GetCertificate(ctx, id); return err })
	return out, err
}

func (m *Memory) GetCertificateByNumber(ctx context.Context, number string) (out *models.Certificate, err error) {
	err = m.read(func(s *memState) error { out, err = s.GetCertificateByNumber(ctx, number); return err })
	return out, err
}

func (m *Memory) CountCertificates(ctx context.Context, companyID string) (n int, err error) {
	err = m.read(func(s *memState) error { n, err = s.CountCertificates(ctx, companyID); return err })
	return n, err
}

func (m *Memory) ListExpiringCertificates(ctx context.Context, before time.Time) (out []*models.Certificate, err error) {
	err = m.read(func(s *memState) error { out, err = s.ListExpiringCertificates(ctx, before); return err })
	return out, err
}

func (m *Memory) MarkCertificateExpired(ctx context.Context, id string) error {
	return m.write(func(s *memState) error { return s.MarkCertificateExpired(ctx, id) })
}

func (m *Memory) GetCompany(ctx context.Context, id string) (out *models.Company, err error) {
	err = m.read(func(s *memState) error { out, err = s.GetCompany(ctx, id); return err })
	return out, err
}

func (m *Memory) ListExpiringDocuments(ctx context.Context, before time.Time) (out []models.CompanyDocument, err error) {
	err = m.read(func(s *memState) error { out, err = s.ListExpiringDocuments(ctx, before); return err })
	return out, err
}

func (m *Memory) GetVendorByCompany(ctx context.Context, companyID string) (out *models.Vendor, err error) {
	err = m.read(func(s *memState) error { out, err = s.GetVendorByCompany(ctx, companyID); return err })
	return out, err
}

func (m *Memory) SetVendorCertificate(ctx context.Context, vendorID, certificateID string) error {
	return m.write(func(s *memState) error { return s.SetVendorCertificate(ctx, vendorID, certificateID) })
}

func (m *Memory) MarkVendorStep(ctx context.Context, vendorID, step string) error {
	return m.write(func(s *memState) error { return s.MarkVendorStep(ctx, vendorID, step) })
}

func (m *Memory) ListUsersByRole(ctx context.Context, role string) (out []models.User, err error) {
	err = m.read(func(s *memState) error { out, err = s.ListUsersByRole(ctx, role); return err })
	return out, err
}

func (m *Memory) CreateNotification(ctx context.Context, n *models.Notification) error {
	return m.write(func(s *memState) error { return s.CreateNotification(ctx, n) })
}

func (m *Memory) ListNotifications(ctx context.Context, scope models.NotificationScope, filter models.NotificationFilter) (out []*models.Notification, err error) {
	err = m.read(func(s *memState) error { out, err = s.ListNotifications(ctx, scope, filter); return err })
	return out, err
}

func (m *Memory) CountNotifications(ctx context.Context, scope models.NotificationScope) (c models.NotificationCounts, err error) {
	err = m.read(func(s *memState) error { c, err = s.CountNotifications(ctx, scope); return err })
	return c, err
}

func (m *Memory) MarkAllRead(ctx context.Context, scope models.NotificationScope) (n int64, err error) {
	err = m.write(func(s *memState) error { n, err = s.MarkAllRead(ctx, scope); return err })
	return n, err
}

func (m *Memory) DeleteNotifications(ctx context.Context, scope models.NotificationScope, ids []string) (n int64, err error) {
	err = m.write(func(s *memState) error { n, err = s.DeleteNotifications(ctx, scope, ids); return err })
	return n, err
}

func (m *Memory) DeleteAllNotifications(ctx context.Context, scope models.NotificationScope) (n int64, err error) {
	err = m.write(func(s *memState) error { n, err = s.DeleteAllNotifications(ctx, scope); return err })
	return n, err
}

func (m *Memory) NotificationExistsSince(ctx context.Context, scope models.NotificationScope, notificationType, reference string, since time.Time) (ok bool, err error) {
	err = m.read(func(s *memState) error {
		ok, err = s.NotificationExistsSince(ctx, scope, notificationType, reference, since)
		return err
	})
	return ok, err
}

// ==========================
// memState
// ==========================

// memState is the unlocked state. It implements Store and is handed to
// RunInTx callbacks directly.
type memState struct {
	applications  map[string]*models.Application
	payments      map[string]*models.Payment
	certificates  map[string]*models.Certificate
	companies     map[string]*models.Company
	vendors       map[string]*models.Vendor
	documents     []models.CompanyDocument
	users         []models.User
	notifications []*models.Notification
}

func newMemState() *memState {
	return &memState{
		applications: make(map[string]*models.Application),
		payments:     make(map[string]*models.Payment),
		certificates: make(map[string]*models.Certificate),
		companies:    make(map[string]*models.Company),
		vendors:      make(map[string]*models.Vendor),
	}
}

func (s *memState) clone() *memState {
	cp := newMemState()
	for k, v := range s.applications {
		cp.applications[k] = v.Clone()
	}
	for k, v := range s.payments {
		p := *v
		cp.payments[k] = &p
	}
	for k, v := range s.certificates {
		cp.certificates[k] = v.Clone()
	}
	for k, v := range s.companies {
		cp.companies[k] = v.Clone()
	}
	for k, v := range s.vendors {
		cp.vendors[k] = v.Clone()
	}
	cp.documents = append(cp.documents, s.documents...)
	cp.users = append(cp.users, s.users...)
	for _, n := range s.notifications {
		c := *n
		cp.notifications = append(cp.notifications, &c)
	}
	return cp
}

func (s *memState) GetApplication(_ context.Context, id string) (*models.Application, error) {
	app, ok := s.applications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return app.Clone(), nil
}

func (s *memState) GetApplicationForUpdate(ctx context.Context, id string) (*models.Application, error) {
	return s.GetApplication(ctx, id)
}

func (s *memState) CreateApplication(_ context.Context, app *models.Application) error {
	if _, ok := s.applications[app.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range s.applications {
		if existing.Number == app.Number {
			return ErrDuplicate
		}
	}
	if app.Version == 0 {
		app.Version = 1
	}
	s.applications[app.ID] = app.Clone()
	return nil
}

func (s *memState) UpdateApplication(_ context.Context, app *models.Application, expectedVersion int) error {
	stored, ok := s.applications[app.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != expectedVersion {
		return ErrConflict
	}
	app.Version = expectedVersion + 1
	s.applications[app.ID] = app.Clone()
	return nil
}

func (s *memState) FindLatestApplication(_ context.Context, companyID string, appType models.ApplicationType) (*models.Application, error) {
	var latest *models.Application
	for _, app := range s.applications {
		if app.CompanyID != companyID || app.Type != appType {
			continue
		}
		if latest == nil || app.CreatedAt.After(latest.CreatedAt) {
			latest = app
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest.Clone(), nil
}

func (s *memState) ListOpenApplications(_ context.Context) ([]*models.Application, error) {
	var out []*models.Application
	for _, app := range s.applications {
		if !app.CurrentStatus.IsTerminal() {
			out = append(out, app.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memState) GetPaymentForUpdate(_ context.Context, id string) (*models.Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memState) CompletePayment(_ context.Context, p *models.Payment) error {
	stored, ok := s.payments[p.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != models.PaymentVerified {
		return ErrConflict
	}
	stored.Status = models.PaymentCompleted
	stored.ProcessedAt = p.ProcessedAt
	stored.OutcomeApplicationID = p.OutcomeApplicationID
	stored.OutcomeCertificateID = p.OutcomeCertificateID
	p.Status = models.PaymentCompleted
	return nil
}

func (s *memState) CertificateNumberExists(_ context.Context, number string) (bool, error) {
	for _, c := range s.certificates {
		if c.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (s *memState) CreateCertificate(ctx context.Context, cert *models.Certificate) error {
	if _, ok := s.certificates[cert.ID]; ok {
		return ErrDuplicate
	}
	if exists, _ := s.CertificateNumberExists(ctx, cert.Number); exists {
		return ErrDuplicate
	}
	s.certificates[cert.ID] = cert.Clone()
	return nil
}

func (s *memState) GetCertificate(_ context.Context, id string) (*models.Certificate, error) {
	c, ok := s.certificates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *memState) GetCertificateByNumber(_ context.Context, number string) (*models.Certificate, error) {
	for _, c := range s.certificates {
		if c.Number == number {
			return c.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memState) CountCertificates(_ context.Context, companyID string) (int, error) {
	n := 0
	for _, c := range s.certificates {
		if c.CompanyID == companyID {
			n++
		}
	}
	return n, nil
}

func (s *memState) ListExpiringCertificates(_ context.Context, before time.Time) ([]*models.Certificate, error) {
	var out []*models.Certificate
	for _, c := range s.certificates {
		if c.Status == models.CertificateApproved && c.ValidUntil.Before(before) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidUntil.Before(out[j].ValidUntil) })
	return out, nil
}

func (s *memState) MarkCertificateExpired(_ context.Context, id string) error {
	c, ok := s.certificates[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = models.CertificateExpired
	return nil
}

func (s *memState) GetCompany(_ context.Context, id string) (*models.Company, error) {
	c, ok := s.companies[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *memState) ListExpiringDocuments(_ context.Context, before time.Time) ([]models.CompanyDocument, error) {
	var out []models.CompanyDocument
	for _, d := range s.documents {
		if d.ExpiresAt.Before(before) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (s *memState) GetVendorByCompany(_ context.Context, companyID string) (*models.Vendor, error) {
	for _, v := range s.vendors {
		if v.CompanyID == companyID {
			return v.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memState) SetVendorCertificate(_ context.Context, vendorID, certificateID string) error {
	v, ok := s.vendors[vendorID]
	if !ok {
		return ErrNotFound
	}
	v.CertificateID = certificateID
	return nil
}

func (s *memState) MarkVendorStep(_ context.Context, vendorID, step string) error {
	v, ok := s.vendors[vendorID]
	if !ok {
		return ErrNotFound
	}
	if v.Progress == nil {
		v.Progress = make(map[string]string)
	}
	v.Progress[step] = models.StepComplete
	return nil
}

func (s *memState) ListUsersByRole(_ context.Context, role string) ([]models.User, error) {
	var out []models.User
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memState) CreateNotification(_ context.Context, n *models.Notification) error {
	for _, existing := range s.notifications {
		if existing.ID == n.ID {
			return ErrDuplicate
		}
	}
	cp := *n
	s.notifications = append(s.notifications, &cp)
	return nil
}

func inScope(n *models.Notification, scope models.NotificationScope) bool {
	return n.Audience == scope.Audience && n.RecipientID == scope.RecipientID
}

func (s *memState) ListNotifications(_ context.Context, scope models.NotificationScope, filter models.NotificationFilter) ([]*models.Notification, error) {
	var matched []*models.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if !inScope(n, scope) {
			continue
		}
		if filter.IsRead != nil && n.IsRead != *filter.IsRead {
			continue
		}
		cp := *n
		matched = append(matched, &cp)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	if filter.Offset >= len(matched) {
		return []*models.Notification{}, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *memState) CountNotifications(_ context.Context, scope models.NotificationScope) (models.NotificationCounts, error) {
	var c models.NotificationCounts
	for _, n := range s.notifications {
		if !inScope(n, scope) {
			continue
		}
		c.Total++
		if !n.IsRead {
			c.Unread++
		}
		switch n.Priority {
		case models.PriorityCritical:
			c.Critical++
		case models.PriorityHigh:
			c.High++
		}
	}
	return c, nil
}

func (s *memState) MarkAllRead(_ context.Context, scope models.NotificationScope) (int64, error) {
	var affected int64
	for _, n := range s.notifications {
		if inScope(n, scope) && !n.IsRead {
			n.IsRead = true
			affected++
		}
	}
	return affected, nil
}

func (s *memState) DeleteNotifications(_ context.Context, scope models.NotificationScope, ids []string) (int64, error) {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	return s.deleteWhere(func(n *models.Notification) bool {
		_, ok := wanted[n.ID]
		return ok && inScope(n, scope)
	}), nil
}

func (s *memState) DeleteAllNotifications(_ context.Context, scope models.NotificationScope) (int64, error) {
	return s.deleteWhere(func(n *models.Notification) bool { return inScope(n, scope) }), nil
}

func (s *memState) deleteWhere(match func(n *models.Notification) bool) int64 {
	kept := s.notifications[:0]
	var removed int64
	for _, n := range s.notifications {
		if match(n) {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	s.notifications = kept
	return removed
}

func (s *memState) NotificationExistsSince(_ context.Context, scope models.NotificationScope, notificationType, reference string, since time.Time) (bool, error) {
	for _, n := range s.notifications {
		if inScope(n, scope) && n.Type == notificationType && n.Reference == reference && !n.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}
