package column

import (
	"context"
	"sort"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/out"
	"mailboard_server/core/service/auth"
	"mailboard_server/pkg/apperr"
)

// stubMailboxRepo serves one mailbox; everything else panics through
// the embedded nil interface.
type stubMailboxRepo struct {
	out.MailboxRepository
	mailbox *domain.Mailbox
}

func (r *stubMailboxRepo) GetByID(_ context.Context, id int64) (*domain.Mailbox, error) {
	if r.mailbox == nil || r.mailbox.ID != id {
		return nil, apperr.NotFound("mailbox")
	}
	return r.mailbox, nil
}

func (r *stubMailboxRepo) UpdateTokens(context.Context, int64, string, string, *time.Time) error {
	return nil
}

// memColumnRepo is an in-memory ColumnRepository.
type memColumnRepo struct {
	nextID  int64
	columns map[int64]*domain.Column
}

func newMemColumnRepo() *memColumnRepo {
	return &memColumnRepo{nextID: 1, columns: make(map[int64]*domain.Column)}
}

func (r *memColumnRepo) Create(_ context.Context, col *domain.Column) (*domain.Column, error) {
	cp := *col
	cp.ID = r.nextID
	r.nextID++
	r.columns[cp.ID] = &cp
	return &cp, nil
}

func (r *memColumnRepo) GetByID(_ context.Context, id int64) (*domain.Column, error) {
	if col, ok := r.columns[id]; ok {
		cp := *col
		return &cp, nil
	}
	return nil, apperr.NotFound("column")
}

func (r *memColumnRepo) GetByName(_ context.Context, mailboxID int64, name string) (*domain.Column, error) {
	for _, col := range r.columns {
		if col.MailboxID == mailboxID && col.Name == name {
			cp := *col
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("column")
}

func (r *memColumnRepo) GetBySmartLabel(_ context.Context, mailboxID int64, label string) (*domain.Column, error) {
	for _, col := range r.columns {
		if col.MailboxID == mailboxID && col.SmartLabel == label {
			return col, nil
		}
	}
	return nil, apperr.NotFound("column")
}

func (r *memColumnRepo) GetByProviderLabel(_ context.Context, mailboxID int64, labelID string) (*domain.Column, error) {
	for _, col := range r.columns {
		if col.MailboxID == mailboxID && col.ProviderLabelID == labelID {
			return col, nil
		}
	}
	return nil, apperr.NotFound("column")
}

func (r *memColumnRepo) ListByMailbox(_ context.Context, mailboxID int64) ([]*domain.Column, error) {
	var result []*domain.Column
	for _, col := range r.columns {
		if col.MailboxID == mailboxID {
			cp := *col
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OrderIndex < result[j].OrderIndex })
	return result, nil
}

func (r *memColumnRepo) Update(_ context.Context, col *domain.Column) error {
	if _, ok := r.columns[col.ID]; !ok {
		return apperr.NotFound("column")
	}
	cp := *col
	r.columns[col.ID] = &cp
	return nil
}

func (r *memColumnRepo) SetProviderLabelID(_ context.Context, id int64, labelID string) error {
	if col, ok := r.columns[id]; ok {
		col.ProviderLabelID = labelID
		return nil
	}
	return apperr.NotFound("column")
}

func (r *memColumnRepo) Delete(_ context.Context, id int64) error {
	col, ok := r.columns[id]
	if !ok {
		return apperr.NotFound("column")
	}
	delete(r.columns, id)
	for _, other := range r.columns {
		if other.MailboxID == col.MailboxID && other.OrderIndex > col.OrderIndex {
			other.OrderIndex--
		}
	}
	return nil
}

func (r *memColumnRepo) Reorder(_ context.Context, mailboxID int64, orderedIDs []int64) error {
	for index, id := range orderedIDs {
		if col, ok := r.columns[id]; ok && col.MailboxID == mailboxID {
			col.OrderIndex = index
		}
	}
	return nil
}

func (r *memColumnRepo) NextOrderIndex(_ context.Context, mailboxID int64) (int, error) {
	next := 0
	for _, col := range r.columns {
		if col.MailboxID == mailboxID && col.OrderIndex >= next {
			next = col.OrderIndex + 1
		}
	}
	return next, nil
}

// stubProvider answers EnsureLabel and nothing else.
type stubProvider struct {
	out.MailProvider
	ensuredNames []string
}

func (p *stubProvider) EnsureLabel(_ context.Context, _ *oauth2.Token, name string) (*out.ProviderLabel, error) {
	p.ensuredNames = append(p.ensuredNames, name)
	return &out.ProviderLabel{ID: "Label_" + name, Name: name, Type: "user"}, nil
}

func newTestService() (*Service, *memColumnRepo, *stubProvider) {
	expiry := time.Now().Add(time.Hour)
	mailboxRepo := &stubMailboxRepo{mailbox: &domain.Mailbox{
		ID:          1,
		UserID:      10,
		AccessToken: "access",
		TokenExpiry: &expiry,
	}}
	columnRepo := newMemColumnRepo()
	provider := &stubProvider{}
	tokens := auth.NewTokenService(mailboxRepo, provider, 10*time.Minute)
	return NewService(columnRepo, mailboxRepo, provider, tokens), columnRepo, provider
}

func TestSeedDefaults(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	if err := svc.SeedDefaults(ctx, 1); err != nil {
		t.Fatalf("SeedDefaults() error = %v", err)
	}

	columns, _ := repo.ListByMailbox(ctx, 1)
	if len(columns) != len(domain.DefaultColumns) {
		t.Fatalf("seeded %d columns, want %d", len(columns), len(domain.DefaultColumns))
	}
	for i, col := range columns {
		spec := domain.DefaultColumns[i]
		if col.Name != spec.Name || col.Kind != spec.Kind || col.OrderIndex != i {
			t.Errorf("column %d = %+v, want %+v at index %d", i, col, spec, i)
		}
		if col.IsDefault != spec.IsDefault {
			t.Errorf("column %q default = %v, want %v", col.Name, col.IsDefault, spec.IsDefault)
		}
	}

	// Only the smart views are protected
	defaults := 0
	for _, col := range columns {
		if col.IsDefault {
			defaults++
			if col.Kind != domain.ColumnKindSmart {
				t.Errorf("default column %q kind = %s, want smart", col.Name, col.Kind)
			}
		}
	}
	if defaults != 3 {
		t.Errorf("default columns = %d, want 3", defaults)
	}

	// Second call must not duplicate
	if err := svc.SeedDefaults(ctx, 1); err != nil {
		t.Fatalf("second SeedDefaults() error = %v", err)
	}
	columns, _ = repo.ListByMailbox(ctx, 1)
	if len(columns) != len(domain.DefaultColumns) {
		t.Errorf("after reseed: %d columns, want %d", len(columns), len(domain.DefaultColumns))
	}
}

func TestCreate(t *testing.T) {
	svc, _, provider := newTestService()
	ctx := context.Background()
	if err := svc.SeedDefaults(ctx, 1); err != nil {
		t.Fatal(err)
	}

	col, err := svc.Create(ctx, 10, 1, "  Waiting  ")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if col.Name != "Waiting" {
		t.Errorf("name = %q, want trimmed %q", col.Name, "Waiting")
	}
	if col.Kind != domain.ColumnKindManaged || col.IsDefault {
		t.Errorf("created column = %+v, want a non-default managed column", col)
	}
	if col.OrderIndex != len(domain.DefaultColumns) {
		t.Errorf("order index = %d, want appended at %d", col.OrderIndex, len(domain.DefaultColumns))
	}
	if len(provider.ensuredNames) != 1 || provider.ensuredNames[0] != "Mailboard/Waiting" {
		t.Errorf("ensured labels = %v, want the mirror label", provider.ensuredNames)
	}

	tests := []struct {
		name    string
		colName string
	}{
		{"duplicate", "Waiting"},
		{"empty", "   "},
		{"slash", "a/b"},
		{"wrong owner handled elsewhere", ""},
	}
	for _, tt := range tests[:3] {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, 10, 1, tt.colName); err == nil {
				t.Errorf("Create(%q) = nil, want error", tt.colName)
			}
		})
	}

	// A foreign mailbox reads as missing, not forbidden
	_, err = svc.Create(ctx, 99, 1, "Other")
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeNotFound {
		t.Errorf("Create() by non-owner = %v, want not found", err)
	}
}

func TestDelete_DefaultProtected(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	if err := svc.SeedDefaults(ctx, 1); err != nil {
		t.Fatal(err)
	}
	columns, _ := repo.ListByMailbox(ctx, 1)

	if err := svc.Delete(ctx, 10, columns[0].ID); err == nil {
		t.Error("Delete() on default column = nil, want error")
	}

	custom, err := svc.Create(ctx, 10, 1, "Waiting")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, 10, custom.ID); err != nil {
		t.Errorf("Delete() on custom column error = %v", err)
	}

	// Remaining indices stay dense
	columns, _ = repo.ListByMailbox(ctx, 1)
	for i, col := range columns {
		if col.OrderIndex != i {
			t.Errorf("column %q index = %d, want %d", col.Name, col.OrderIndex, i)
		}
	}
}

func TestDelete_WorkflowLanesAreOrdinary(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	if err := svc.SeedDefaults(ctx, 1); err != nil {
		t.Fatal(err)
	}

	todo, err := repo.GetByName(ctx, 1, "To Do")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, 10, todo.ID); err != nil {
		t.Fatalf("Delete(To Do) error = %v, want the lane removable", err)
	}

	// The freed name can be reused
	if _, err := svc.Create(ctx, 10, 1, "To Do"); err != nil {
		t.Errorf("Create(To Do) after delete error = %v", err)
	}
}

func TestReorder(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	if err := svc.SeedDefaults(ctx, 1); err != nil {
		t.Fatal(err)
	}
	columns, _ := repo.ListByMailbox(ctx, 1)

	reversed := make([]int64, len(columns))
	for i, col := range columns {
		reversed[len(columns)-1-i] = col.ID
	}
	result, err := svc.Reorder(ctx, 10, 1, reversed)
	if err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}
	for i, col := range result {
		if col.ID != reversed[i] || col.OrderIndex != i {
			t.Errorf("position %d = column %d index %d, want column %d", i, col.ID, col.OrderIndex, reversed[i])
		}
	}

	tests := []struct {
		name string
		ids  []int64
	}{
		{"too short", reversed[:len(reversed)-1]},
		{"unknown id", append(append([]int64{}, reversed[:len(reversed)-1]...), 999)},
		{"duplicate id", append(append([]int64{}, reversed[:len(reversed)-1]...), reversed[0])},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Reorder(ctx, 10, 1, tt.ids); err == nil {
				t.Errorf("Reorder(%v) = nil, want error", tt.ids)
			}
		})
	}
}

func TestRename(t *testing.T) {
	svc, repo, provider := newTestService()
	ctx := context.Background()
	if err := svc.SeedDefaults(ctx, 1); err != nil {
		t.Fatal(err)
	}

	custom, err := svc.Create(ctx, 10, 1, "Waiting")
	if err != nil {
		t.Fatal(err)
	}
	provider.ensuredNames = nil

	renamed, err := svc.Rename(ctx, 10, custom.ID, "Blocked")
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if renamed.Name != "Blocked" {
		t.Errorf("name = %q, want %q", renamed.Name, "Blocked")
	}
	if len(provider.ensuredNames) != 1 || provider.ensuredNames[0] != "Mailboard/Blocked" {
		t.Errorf("ensured labels = %v, want rebind to the new name", provider.ensuredNames)
	}
	stored, _ := repo.GetByID(ctx, custom.ID)
	if stored.ProviderLabelID != "Label_Mailboard/Blocked" {
		t.Errorf("stored label id = %q, want the rebound label", stored.ProviderLabelID)
	}

	columns, _ := repo.ListByMailbox(ctx, 1)
	if _, err := svc.Rename(ctx, 10, columns[0].ID, "Anything"); err == nil {
		t.Error("Rename() on default column = nil, want error")
	}
}
