package notification

import (
	"context"
	"fmt"
	"testing"
	"time"

	"certification-workers/internal/common/errors"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/models"
	"certification-workers/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var vendorScope = models.NotificationScope{Audience: models.AudienceVendor, RecipientID: "v-1"}

type stubDirectory struct {
	admins []models.User
	err    error
}

func (d stubDirectory) Admins(context.Context) ([]models.User, error) {
	return d.admins, d.err
}

func newTestService(t *testing.T, mem *store.Memory, dir Directory) *Service {
	if dir == nil {
		dir = StoreDirectory{Users: mem}
	}
	return NewService(mem, dir, nil, 20, logger.NewTestLogger(t))
}

func boolPtr(b bool) *bool { return &b }

// seedScope stores a mix of read states and priorities for v-1 plus noise
// in other scopes.
func seedScope(t *testing.T, mem *store.Memory) {
	priorities := []models.Priority{models.PriorityCritical, models.PriorityHigh, models.PriorityMedium, models.PriorityLow}
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 23; i++ {
		require.NoError(t, mem.CreateNotification(context.Background(), &models.Notification{
			ID:          fmt.Sprintf("n-%02d", i),
			Type:        TypeApplicationCreated,
			Title:       "t",
			Audience:    models.AudienceVendor,
			RecipientID: "v-1",
			Priority:    priorities[i%len(priorities)],
			IsRead:      i%3 == 0,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, mem.CreateNotification(context.Background(), &models.Notification{
			ID:          fmt.Sprintf("other-%d", i),
			Type:        TypeApplicationCreated,
			Audience:    models.AudienceVendor,
			RecipientID: "v-2",
			Priority:    models.PriorityCritical,
			CreatedAt:   base,
		}))
	}
}

// ==========================
// Create / FanOut Tests
// ==========================

func TestService_Create(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(t, mem, nil)

	n, err := svc.Create(context.Background(), NewNotification{
		Audience: models.AudienceVendor, RecipientID: "v-1", Type: TypeApplicationCreated,
		Title: "Application received", Priority: models.PriorityLow, ApplicationID: "app-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.IsRead)

	page, err := svc.List(context.Background(), vendorScope, models.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "app-1", page.Items[0].ApplicationID)
}

func TestService_Create_Validation(t *testing.T) {
	svc := newTestService(t, store.NewMemory(), nil)

	tests := []struct {
		name string
		in   NewNotification
	}{
		{name: "unknown audience", in: NewNotification{Audience: "public", Type: "x", Title: "x", Priority: models.PriorityLow}},
		{name: "unknown priority", in: NewNotification{Audience: models.AudienceAdmin, Type: "x", Title: "x", Priority: "urgent"}},
		{name: "missing title", in: NewNotification{Audience: models.AudienceAdmin, Type: "x", Priority: models.PriorityLow}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.in)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
		})
	}
}

func TestService_FanOut_VendorAndEveryAdmin(t *testing.T) {
	mem := store.NewMemory()
	mem.AddUser(models.User{ID: "admin-1", Role: models.RoleAdmin})
	mem.AddUser(models.User{ID: "admin-2", Role: models.RoleAdmin})
	mem.AddUser(models.User{ID: "desk-1", Role: "desk_officer"})
	svc := newTestService(t, mem, nil)

	created, err := svc.FanOut(context.Background(), Event{
		Type: TypeApplicationCreated, Title: "New application", ApplicationID: "app-1",
		Vendor: Recipient{ID: "v-1"}, VendorPriority: models.PriorityLow, AdminPriority: models.PriorityHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	vendor, err := svc.List(context.Background(), vendorScope, models.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, vendor.Items, 1)
	assert.Equal(t, models.PriorityLow, vendor.Items[0].Priority)

	for _, id := range []string{"admin-1", "admin-2"} {
		page, err := svc.List(context.Background(), models.NotificationScope{Audience: models.AudienceAdmin, RecipientID: id}, models.NotificationFilter{})
		require.NoError(t, err)
		require.Len(t, page.Items, 1, id)
		assert.Equal(t, models.PriorityHigh, page.Items[0].Priority)
	}
}

func TestService_FanOut_DirectoryFailureKeepsVendorNotice(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(t, mem, stubDirectory{err: fmt.Errorf("directory down")})

	created, err := svc.FanOut(context.Background(), Event{
		Type: TypeCertificateIssued, Title: "Certificate issued",
		Vendor: Recipient{ID: "v-1"}, VendorPriority: models.PriorityHigh, AdminPriority: models.PriorityHigh,
	})

	require.Error(t, err)
	assert.Equal(t, 1, created)
	counts, _ := mem.CountNotifications(context.Background(), vendorScope)
	assert.Equal(t, 1, counts.Total)
}

// ==========================
// List Tests
// ==========================

func TestService_List_CountsIgnoreReadFilter(t *testing.T) {
	mem := store.NewMemory()
	seedScope(t, mem)
	svc := newTestService(t, mem, nil)

	var want models.NotificationCounts
	for i := 0; i < 23; i++ {
		want.Total++
		if i%3 != 0 {
			want.Unread++
		}
		switch i % 4 {
		case 0:
			want.Critical++
		case 1:
			want.High++
		}
	}

	for _, filter := range []*bool{nil, boolPtr(true), boolPtr(false)} {
		page, err := svc.List(context.Background(), vendorScope, models.NotificationFilter{IsRead: filter, Limit: 100})
		require.NoError(t, err)
		assert.Equal(t, want, page.NotificationCounts)

		for _, n := range page.Items {
			assert.Equal(t, "v-1", n.RecipientID)
			if filter != nil {
				assert.Equal(t, *filter, n.IsRead)
			}
		}
	}
}

func TestService_List_Paging(t *testing.T) {
	mem := store.NewMemory()
	seedScope(t, mem)
	svc := newTestService(t, mem, nil)

	first, err := svc.List(context.Background(), vendorScope, models.NotificationFilter{})
	require.NoError(t, err)
	assert.Len(t, first.Items, 20, "default page size")
	assert.Equal(t, "n-22", first.Items[0].ID, "newest first")

	rest, err := svc.List(context.Background(), vendorScope, models.NotificationFilter{Limit: 20, Offset: 20})
	require.NoError(t, err)
	assert.Len(t, rest.Items, 3)

	past, err := svc.List(context.Background(), vendorScope, models.NotificationFilter{Offset: 50})
	require.NoError(t, err)
	assert.Empty(t, past.Items)
	assert.NotNil(t, past.Items)

	_, err = svc.List(context.Background(), vendorScope, models.NotificationFilter{Offset: -1})
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
}

// ==========================
// Mark / Delete Tests
// ==========================

func TestService_MarkAllRead(t *testing.T) {
	mem := store.NewMemory()
	seedScope(t, mem)
	svc := newTestService(t, mem, nil)

	n, err := svc.MarkAllRead(context.Background(), vendorScope)
	require.NoError(t, err)
	assert.Equal(t, int64(15), n)

	page, err := svc.List(context.Background(), vendorScope, models.NotificationFilter{})
	require.NoError(t, err)
	assert.Zero(t, page.Unread)

	other, err := svc.List(context.Background(), models.NotificationScope{Audience: models.AudienceVendor, RecipientID: "v-2"}, models.NotificationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, other.Unread)
}

func TestService_Delete(t *testing.T) {
	mem := store.NewMemory()
	seedScope(t, mem)
	svc := newTestService(t, mem, nil)

	n, err := svc.Delete(context.Background(), vendorScope, Selector{IDs: []string{"n-00", "n-01", "other-0"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "ids outside the scope are ignored")

	_, err = svc.Delete(context.Background(), vendorScope, Selector{})
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))

	n, err = svc.Delete(context.Background(), vendorScope, Selector{All: true})
	require.NoError(t, err)
	assert.Equal(t, int64(21), n)

	other, _ := mem.CountNotifications(context.Background(), models.NotificationScope{Audience: models.AudienceVendor, RecipientID: "v-2"})
	assert.Equal(t, 5, other.Total)
}
