package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresStore persists profile data to a Postgres database.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore constructs a store backed by sqlx.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

type profileRow struct {
	ID        uuid.UUID `db:"id"`
	FirstName *string   `db:"first_name"`
	LastName  *string   `db:"last_name"`
	AvatarURL *string   `db:"avatar_url"`
	Role      string    `db:"role"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row profileRow) toProfile() Profile {
	return Profile(row)
}

func fromProfile(p Profile) profileRow {
	return profileRow(p)
}

type creatorRow struct {
	ID          uuid.UUID `db:"id"`
	CompanyName *string   `db:"company_name"`
	Description *string   `db:"description"`
	Website     *string   `db:"website"`
	Verified    bool      `db:"verified"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (row creatorRow) toCreator() Creator {
	return Creator(row)
}

type workflowRow struct {
	ID          uuid.UUID `db:"id"`
	CreatorID   uuid.UUID `db:"creator_id"`
	Title       string    `db:"title"`
	Description *string   `db:"description"`
	PermitType  *string   `db:"permit_type"`
	Agency      *string   `db:"agency"`
	Price       float64   `db:"price"`
	Status      *string   `db:"status"`
	Verified    bool      `db:"verified"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (row workflowRow) toWorkflow() Workflow {
	return Workflow(row)
}

// joinedWorkflow holds the optional LEFT JOINed workflow columns on chat
// and purchase queries.
type joinedWorkflow struct {
	WfID          *uuid.UUID `db:"wf_id"`
	WfCreatorID   *uuid.UUID `db:"wf_creator_id"`
	WfTitle       *string    `db:"wf_title"`
	WfDescription *string    `db:"wf_description"`
	WfPermitType  *string    `db:"wf_permit_type"`
	WfAgency      *string    `db:"wf_agency"`
	WfPrice       *float64   `db:"wf_price"`
	WfStatus      *string    `db:"wf_status"`
	WfVerified    *bool      `db:"wf_verified"`
}

func (j joinedWorkflow) toWorkflow() *Workflow {
	if j.WfID == nil {
		return nil
	}
	w := Workflow{
		ID:    *j.WfID,
		Title: *j.WfTitle,
	}
	if j.WfCreatorID != nil {
		w.CreatorID = *j.WfCreatorID
	}
	if j.WfPrice != nil {
		w.Price = *j.WfPrice
	}
	if j.WfVerified != nil {
		w.Verified = *j.WfVerified
	}
	w.Description = j.WfDescription
	w.PermitType = j.WfPermitType
	w.Agency = j.WfAgency
	w.Status = j.WfStatus
	return &w
}

const workflowJoinColumns = `
    w.id AS wf_id,
    w.creator_id AS wf_creator_id,
    w.title AS wf_title,
    w.description AS wf_description,
    w.permit_type AS wf_permit_type,
    w.agency AS wf_agency,
    w.price AS wf_price,
    w.status AS wf_status,
    w.verified AS wf_verified`

// GetProfile retrieves a profile by primary key, returning (nil, nil) when
// no row exists.
func (s *PostgresStore) GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	var row profileRow
	query := `SELECT id, first_name, last_name, avatar_url, role, created_at, updated_at FROM profiles WHERE id = $1`
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p := row.toProfile()
	return &p, nil
}

// InsertProfile inserts a new profile row. A primary key collision maps to
// ErrDuplicate so callers can detect a lost provisioning race.
func (s *PostgresStore) InsertProfile(ctx context.Context, p Profile) (Profile, error) {
	insert := `INSERT INTO profiles (id, first_name, last_name, avatar_url, role, created_at, updated_at)
VALUES (:id, :first_name, :last_name, :avatar_url, :role, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, insert, fromProfile(p)); err != nil {
		if isUniqueViolation(err) {
			return Profile{}, ErrDuplicate
		}
		return Profile{}, fmt.Errorf("insert profile: %w", err)
	}
	return p, nil
}

// UpdateProfile modifies an existing profile row.
func (s *PostgresStore) UpdateProfile(ctx context.Context, p Profile) (Profile, error) {
	query := `UPDATE profiles
SET first_name = :first_name,
    last_name = :last_name,
    avatar_url = :avatar_url,
    updated_at = :updated_at
WHERE id = :id`

	if _, err := s.db.NamedExecContext(ctx, query, fromProfile(p)); err != nil {
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return p, nil
}

// GetCreator retrieves a creator record, returning (nil, nil) when the user
// has not registered.
func (s *PostgresStore) GetCreator(ctx context.Context, id uuid.UUID) (*Creator, error) {
	var row creatorRow
	query := `SELECT id, company_name, description, website, verified, created_at, updated_at FROM creators WHERE id = $1`
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get creator: %w", err)
	}
	c := row.toCreator()
	return &c, nil
}

// InsertCreator inserts a new creator row.
func (s *PostgresStore) InsertCreator(ctx context.Context, c Creator) (Creator, error) {
	insert := `INSERT INTO creators (id, company_name, description, website, verified, created_at, updated_at)
VALUES (:id, :company_name, :description, :website, :verified, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, insert, creatorRow(c)); err != nil {
		if isUniqueViolation(err) {
			return Creator{}, ErrDuplicate
		}
		return Creator{}, fmt.Errorf("insert creator: %w", err)
	}
	return c, nil
}

// GetWorkflow retrieves a workflow by id, returning (nil, nil) when no row
// exists.
func (s *PostgresStore) GetWorkflow(ctx context.Context, id uuid.UUID) (*Workflow, error) {
	var row workflowRow
	query := `SELECT id, creator_id, title, description, permit_type, agency, price, status, verified, created_at, updated_at FROM workflows WHERE id = $1`
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	w := row.toWorkflow()
	return &w, nil
}

// ListWorkflows returns the catalog ordered by title.
func (s *PostgresStore) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	query := `SELECT id, creator_id, title, description, permit_type, agency, price, status, verified, created_at, updated_at FROM workflows ORDER BY title ASC`

	rows := []workflowRow{}
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}

	workflows := make([]Workflow, 0, len(rows))
	for _, row := range rows {
		workflows = append(workflows, row.toWorkflow())
	}
	return workflows, nil
}

type purchaseRow struct {
	ID          uuid.UUID `db:"id"`
	UserID      uuid.UUID `db:"user_id"`
	WorkflowID  uuid.UUID `db:"workflow_id"`
	Amount      float64   `db:"amount"`
	PaymentID   *string   `db:"payment_id"`
	Status      *string   `db:"status"`
	PurchasedAt time.Time `db:"purchased_at"`
	joinedWorkflow
}

func (row purchaseRow) toPurchase() Purchase {
	return Purchase{
		ID:          row.ID,
		UserID:      row.UserID,
		WorkflowID:  row.WorkflowID,
		Amount:      row.Amount,
		PaymentID:   row.PaymentID,
		Status:      row.Status,
		PurchasedAt: row.PurchasedAt,
		Workflow:    row.joinedWorkflow.toWorkflow(),
	}
}

// ListPurchases returns the user's purchases with workflows joined in,
// most recent first.
func (s *PostgresStore) ListPurchases(ctx context.Context, userID uuid.UUID) ([]Purchase, error) {
	query := `SELECT
    p.id,
    p.user_id,
    p.workflow_id,
    p.amount,
    p.payment_id,
    p.status,
    p.purchased_at,` + workflowJoinColumns + `
FROM user_purchases p
LEFT JOIN workflows w ON w.id = p.workflow_id
WHERE p.user_id = $1
ORDER BY p.purchased_at DESC`

	rows := []purchaseRow{}
	if err := s.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}

	purchases := make([]Purchase, 0, len(rows))
	for _, row := range rows {
		purchases = append(purchases, row.toPurchase())
	}
	return purchases, nil
}

type chatRow struct {
	ID          uuid.UUID `db:"id"`
	UserID      uuid.UUID `db:"user_id"`
	WorkflowID  uuid.UUID `db:"workflow_id"`
	ProjectName string    `db:"project_name"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	joinedWorkflow
}

func (row chatRow) toChat() Chat {
	return Chat{
		ID:          row.ID,
		UserID:      row.UserID,
		WorkflowID:  row.WorkflowID,
		ProjectName: row.ProjectName,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
		Workflow:    row.joinedWorkflow.toWorkflow(),
	}
}

// ListChats returns the user's projects with workflows joined in, most
// recently updated first.
func (s *PostgresStore) ListChats(ctx context.Context, userID uuid.UUID) ([]Chat, error) {
	query := `SELECT
    c.id,
    c.user_id,
    c.workflow_id,
    c.project_name,
    c.created_at,
    c.updated_at,` + workflowJoinColumns + `
FROM chats c
LEFT JOIN workflows w ON w.id = c.workflow_id
WHERE c.user_id = $1
ORDER BY c.updated_at DESC`

	rows := []chatRow{}
	if err := s.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	chats := make([]Chat, 0, len(rows))
	for _, row := range rows {
		chats = append(chats, row.toChat())
	}
	return chats, nil
}

// InsertChat inserts a new project chat.
func (s *PostgresStore) InsertChat(ctx context.Context, c Chat) (Chat, error) {
	insert := `INSERT INTO chats (id, user_id, workflow_id, project_name, created_at, updated_at)
VALUES (:id, :user_id, :workflow_id, :project_name, :created_at, :updated_at)`

	row := chatRow{
		ID:          c.ID,
		UserID:      c.UserID,
		WorkflowID:  c.WorkflowID,
		ProjectName: c.ProjectName,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	if _, err := s.db.NamedExecContext(ctx, insert, row); err != nil {
		if isUniqueViolation(err) {
			return Chat{}, ErrDuplicate
		}
		return Chat{}, fmt.Errorf("insert chat: %w", err)
	}
	return c, nil
}
