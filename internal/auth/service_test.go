package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vykso/backend/internal/models"
)

// --- noopTx satisfies pgx.Tx for test use; only Commit/Rollback are called. ---

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type mockAccountRepo struct {
	byEmail map[string]*models.Account
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{byEmail: make(map[string]*models.Account)}
}

func (m *mockAccountRepo) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

func (m *mockAccountRepo) CreateTx(_ context.Context, _ pgx.Tx, a *models.Account) error {
	if _, exists := m.byEmail[a.Email]; exists {
		return &pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"}
	}
	m.byEmail[a.Email] = a
	return nil
}

func (m *mockAccountRepo) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	a, ok := m.byEmail[email]
	if !ok {
		return nil, errors.New("not found")
	}
	return a, nil
}

type mockCreditRepo struct {
	entries []*models.CreditTransaction
}

func (m *mockCreditRepo) CreateTx(_ context.Context, _ pgx.Tx, c *models.CreditTransaction) error {
	m.entries = append(m.entries, c)
	return nil
}

func newTestService() (Service, *mockAccountRepo, *mockCreditRepo) {
	accounts := newMockAccountRepo()
	credits := &mockCreditRepo{}
	return NewService(accounts, credits, "test-secret"), accounts, credits
}

func TestRegister_FreeCreatorAccount(t *testing.T) {
	svc, _, credits := newTestService()

	acc, err := svc.Register(context.Background(), "new@example.com", "hunter22", "New User")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if acc.Plan != models.PlanFree {
		t.Errorf("expected free plan, got %s", acc.Plan)
	}
	if acc.Tier != models.TierCreator || acc.AspectRatio != models.AspectPortrait {
		t.Errorf("expected creator/9:16, got %s/%s", acc.Tier, acc.AspectRatio)
	}
	if acc.Credits != models.FreeStartingCredits {
		t.Errorf("expected %d starting credits, got %d", models.FreeStartingCredits, acc.Credits)
	}
	if acc.PasswordHash == "hunter22" || acc.PasswordHash == "" {
		t.Error("password must be stored hashed")
	}
	if len(credits.entries) != 1 || credits.entries[0].Amount != models.FreeStartingCredits {
		t.Error("welcome grant must be logged in the credit ledger")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService()

	if _, err := svc.Register(context.Background(), "dup@example.com", "hunter22", ""); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, err := svc.Register(context.Background(), "dup@example.com", "other-pass", "")
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestLogin_RoundTrip(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	acc, err := svc.Register(ctx, "login@example.com", "hunter22", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	token, err := svc.Login(ctx, "login@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	id, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if id != acc.ID {
		t.Errorf("token subject %s does not match account %s", id, acc.ID)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "probe@example.com", "hunter22", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Wrong password and unknown email must be indistinguishable.
	_, errWrongPass := svc.Login(ctx, "probe@example.com", "wrong")
	_, errNoAccount := svc.Login(ctx, "ghost@example.com", "hunter22")
	if !errors.Is(errWrongPass, ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", errWrongPass)
	}
	if !errors.Is(errNoAccount, ErrInvalidCredentials) {
		t.Errorf("unknown email: expected ErrInvalidCredentials, got %v", errNoAccount)
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	svc, _, _ := newTestService()

	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := svc.ValidateToken(context.Background(), tok); err == nil {
			t.Errorf("token %q should not validate", tok)
		}
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	svc, _, _ := newTestService()
	other := NewService(newMockAccountRepo(), &mockCreditRepo{}, "different-secret")
	ctx := context.Background()

	if _, err := svc.Register(ctx, "sig@example.com", "hunter22", ""); err != nil {
		t.Fatal(err)
	}
	token, err := svc.Login(ctx, "sig@example.com", "hunter22")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.ValidateToken(ctx, token); err == nil {
		t.Error("token signed with a different secret must not validate")
	}
}
