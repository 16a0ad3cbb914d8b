// Package postgres persists acceptances, their ledger, comments and outbox
// events in PostgreSQL. All methods join the transaction carried by ctx.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"riskaccept/internal/acceptance/models"
	id "riskaccept/pkg/domain"
	"riskaccept/pkg/platform/outbox"
	"riskaccept/pkg/platform/sentinel"
	txcontext "riskaccept/pkg/platform/tx"
)

const uniqueViolation = "23505"

// Store implements the lifecycle service's Store and outbox.Store.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

type Option func(*Store)

// WithTxTimeout bounds transactions started without a deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, timeout: txcontext.DefaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return txcontext.Run(ctx, s.db, s.timeout, fn)
}

func (s *Store) NextReference(ctx context.Context) (string, error) {
	var seq int64
	if err := s.execer(ctx).QueryRowContext(ctx, `SELECT nextval('acceptance_reference_seq')`).Scan(&seq); err != nil {
		return "", fmt.Errorf("next reference: %w", err)
	}
	return models.FormatReference(seq), nil
}

const acceptanceColumns = `
	id, reference, title, description, source, status,
	proposer_id, approver_id, reviewer_note, rationale, conditions, approver_rationale,
	created_at, updated_at, routed_at, decided_at, expired_at, review_date, proposed_review_date,
	risk_id, control_id, outcome_name, linked_action_ids, breach`

func (s *Store) Create(ctx context.Context, a *models.Acceptance) error {
	args, err := acceptanceArgs(a)
	if err != nil {
		return err
	}
	query := `INSERT INTO acceptances (` + acceptanceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23::uuid[], $24)`
	if _, err := s.execer(ctx).ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create acceptance %s: %w", a.Reference, sentinel.ErrConflict)
		}
		return fmt.Errorf("create acceptance: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, acceptanceID id.AcceptanceID) (*models.Acceptance, error) {
	return s.findOne(ctx, `SELECT `+acceptanceColumns+` FROM acceptances WHERE id = $1`, acceptanceID)
}

// FindByIDForUpdate takes a row lock held until the transaction ends.
func (s *Store) FindByIDForUpdate(ctx context.Context, acceptanceID id.AcceptanceID) (*models.Acceptance, error) {
	return s.findOne(ctx, `SELECT `+acceptanceColumns+` FROM acceptances WHERE id = $1 FOR UPDATE`, acceptanceID)
}

func (s *Store) findOne(ctx context.Context, query string, acceptanceID id.AcceptanceID) (*models.Acceptance, error) {
	a, err := scanAcceptance(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(acceptanceID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find acceptance: %w", err)
	}
	return a, nil
}

func (s *Store) Update(ctx context.Context, a *models.Acceptance) error {
	args, err := acceptanceArgs(a)
	if err != nil {
		return err
	}
	query := `UPDATE acceptances SET
			reference = $2, title = $3, description = $4, source = $5, status = $6,
			proposer_id = $7, approver_id = $8, reviewer_note = $9, rationale = $10,
			conditions = $11, approver_rationale = $12, created_at = $13, updated_at = $14,
			routed_at = $15, decided_at = $16, expired_at = $17, review_date = $18,
			proposed_review_date = $19, risk_id = $20, control_id = $21, outcome_name = $22,
			linked_action_ids = $23::uuid[], breach = $24
		WHERE id = $1`
	res, err := s.execer(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update acceptance: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update acceptance rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context, filter models.Filter) ([]*models.Acceptance, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.RiskID != nil {
		args = append(args, uuid.UUID(*filter.RiskID))
		clauses = append(clauses, fmt.Sprintf("risk_id = $%d", len(args)))
	}
	if filter.ProposerID != nil {
		args = append(args, uuid.UUID(*filter.ProposerID))
		clauses = append(clauses, fmt.Sprintf("proposer_id = $%d", len(args)))
	}
	query := `SELECT ` + acceptanceColumns + ` FROM acceptances`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at, reference`

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list acceptances: %w", err)
	}
	defer rows.Close()

	var out []*models.Acceptance
	for rows.Next() {
		a, err := scanAcceptance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan acceptance: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate acceptances: %w", err)
	}
	return out, nil
}

func (s *Store) ListDueForExpiry(ctx context.Context, now time.Time) ([]id.AcceptanceID, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id FROM acceptances
		WHERE status = $1 AND review_date < $2
		ORDER BY review_date, reference`,
		string(models.StatusApproved), now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list due acceptances: %w", err)
	}
	defer rows.Close()

	var out []id.AcceptanceID
	for rows.Next() {
		var u uuid.UUID
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan due acceptance: %w", err)
		}
		out = append(out, id.AcceptanceID(u))
	}
	return out, rows.Err()
}

// AppendEntry assigns the next per-acceptance sequence number. Callers hold
// the acceptance row lock, so MAX(seq)+1 cannot race; the unique key backs it up.
func (s *Store) AppendEntry(ctx context.Context, entry *models.AuditEntry) error {
	query := `
		INSERT INTO acceptance_audit_entries
			(id, acceptance_id, seq, action, actor_id, from_status, to_status, details, created_at)
		SELECT $1::uuid, $2::uuid, COALESCE(MAX(seq), 0) + 1, $3::text, $4::uuid, $5::text, $6::text, $7::text, $8::timestamptz
		FROM acceptance_audit_entries WHERE acceptance_id = $2::uuid
		RETURNING seq`
	var seq int64
	err := s.execer(ctx).QueryRowContext(ctx, query,
		uuid.UUID(entry.ID),
		uuid.UUID(entry.AcceptanceID),
		string(entry.Action),
		nullUserID(entry.ActorID),
		string(entry.FromStatus),
		string(entry.ToStatus),
		entry.Details,
		entry.CreatedAt,
	).Scan(&seq)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("append audit entry: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("append audit entry: %w", err)
	}
	entry.Seq = seq
	return nil
}

func (s *Store) ListEntries(ctx context.Context, acceptanceID id.AcceptanceID) ([]*models.AuditEntry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, acceptance_id, seq, action, actor_id, from_status, to_status, details, created_at
		FROM acceptance_audit_entries
		WHERE acceptance_id = $1
		ORDER BY seq`,
		uuid.UUID(acceptanceID),
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []*models.AuditEntry
	for rows.Next() {
		var (
			e                 models.AuditEntry
			entryID, parentID uuid.UUID
			actor             uuid.NullUUID
			action, from, to  string
		)
		if err := rows.Scan(&entryID, &parentID, &e.Seq, &action, &actor, &from, &to, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ID = id.EntryID(entryID)
		e.AcceptanceID = id.AcceptanceID(parentID)
		e.Action = models.Action(action)
		e.FromStatus = models.Status(from)
		e.ToStatus = models.Status(to)
		e.ActorID = userIDPtr(actor)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

// AddComment stores c. The table's serial seq column fixes insertion order,
// which ListComments returns.
func (s *Store) AddComment(ctx context.Context, c *models.Comment) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO acceptance_comments (id, acceptance_id, author_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.UUID(c.ID), uuid.UUID(c.AcceptanceID), uuid.UUID(c.AuthorID), c.Content, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *Store) ListComments(ctx context.Context, acceptanceID id.AcceptanceID) ([]*models.Comment, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, acceptance_id, author_id, content, created_at
		FROM acceptance_comments
		WHERE acceptance_id = $1
		ORDER BY seq`,
		uuid.UUID(acceptanceID),
	)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var out []*models.Comment
	for rows.Next() {
		var (
			c                         models.Comment
			commentID, parent, author uuid.UUID
		)
		if err := rows.Scan(&commentID, &parent, &author, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.ID = id.CommentID(commentID)
		c.AcceptanceID = id.AcceptanceID(parent)
		c.AuthorID = id.UserID(author)
		c.CreatedAt = c.CreatedAt.UTC()
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) AppendEvent(ctx context.Context, event outbox.Event) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.AggregateType, event.AggregateID, event.EventType, []byte(event.Payload), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// PendingEvents returns unpublished events oldest first.
func (s *Store) PendingEvents(ctx context.Context, limit int) ([]outbox.Event, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending events: %w", err)
	}
	defer rows.Close()

	var out []outbox.Event
	for rows.Next() {
		var (
			e       outbox.Event
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending event: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, u := range ids {
		keys[i] = u.String()
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE outbox SET published_at = $1
		WHERE id = ANY($2::uuid[]) AND published_at IS NULL`,
		at, pq.Array(keys),
	)
	if err != nil {
		return fmt.Errorf("mark events published: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAcceptance(row rowScanner) (*models.Acceptance, error) {
	var (
		a                              models.Acceptance
		acceptanceID, proposer         uuid.UUID
		approver, riskID, controlID    uuid.NullUUID
		source, status                 string
		routedAt, decidedAt, expiredAt sql.NullTime
		reviewDate, proposedReviewDate sql.NullTime
		linked                         []string
		breach                         []byte
	)
	err := row.Scan(
		&acceptanceID, &a.Reference, &a.Title, &a.Description, &source, &status,
		&proposer, &approver, &a.ReviewerNote, &a.Rationale, &a.Conditions, &a.ApproverRationale,
		&a.CreatedAt, &a.UpdatedAt, &routedAt, &decidedAt, &expiredAt, &reviewDate, &proposedReviewDate,
		&riskID, &controlID, &a.OutcomeName, pq.Array(&linked), &breach,
	)
	if err != nil {
		return nil, err
	}

	a.ID = id.AcceptanceID(acceptanceID)
	a.Source = models.Source(source)
	a.Status = models.Status(status)
	a.ProposerID = id.UserID(proposer)
	a.ApproverID = userIDPtr(approver)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	a.RoutedAt = timePtr(routedAt)
	a.DecidedAt = timePtr(decidedAt)
	a.ExpiredAt = timePtr(expiredAt)
	a.ReviewDate = datePtr(reviewDate)
	a.ProposedReviewDate = datePtr(proposedReviewDate)
	if riskID.Valid {
		r := id.RiskID(riskID.UUID)
		a.RiskID = &r
	}
	if controlID.Valid {
		c := id.ControlID(controlID.UUID)
		a.ControlID = &c
	}
	for _, raw := range linked {
		actionID, err := id.ParseActionID(raw)
		if err != nil {
			return nil, fmt.Errorf("linked action id %q: %w", raw, err)
		}
		a.LinkedActionIDs = append(a.LinkedActionIDs, actionID)
	}
	if len(breach) > 0 {
		var b models.BreachSnapshot
		if err := json.Unmarshal(breach, &b); err != nil {
			return nil, fmt.Errorf("decode breach snapshot: %w", err)
		}
		a.Breach = &b
	}
	return &a, nil
}

func acceptanceArgs(a *models.Acceptance) ([]any, error) {
	var breach []byte
	if a.Breach != nil {
		raw, err := json.Marshal(a.Breach)
		if err != nil {
			return nil, fmt.Errorf("encode breach snapshot: %w", err)
		}
		breach = raw
	}
	linked := make([]string, len(a.LinkedActionIDs))
	for i, actionID := range a.LinkedActionIDs {
		linked[i] = actionID.String()
	}
	var riskID, controlID uuid.NullUUID
	if a.RiskID != nil {
		riskID = uuid.NullUUID{UUID: uuid.UUID(*a.RiskID), Valid: true}
	}
	if a.ControlID != nil {
		controlID = uuid.NullUUID{UUID: uuid.UUID(*a.ControlID), Valid: true}
	}
	return []any{
		uuid.UUID(a.ID), a.Reference, a.Title, a.Description, string(a.Source), string(a.Status),
		uuid.UUID(a.ProposerID), nullUserID(a.ApproverID), a.ReviewerNote, a.Rationale, a.Conditions, a.ApproverRationale,
		a.CreatedAt, a.UpdatedAt, nullTime(a.RoutedAt), nullTime(a.DecidedAt), nullTime(a.ExpiredAt),
		nullDate(a.ReviewDate), nullDate(a.ProposedReviewDate),
		riskID, controlID, a.OutcomeName, pq.Array(linked), breach,
	}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullUserID(u *id.UserID) uuid.NullUUID {
	if u == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*u), Valid: true}
}

func userIDPtr(u uuid.NullUUID) *id.UserID {
	if !u.Valid {
		return nil
	}
	v := id.UserID(u.UUID)
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullDate sends a civil date as text so the server never applies a zone shift.
func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: models.FormatDate(t), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func datePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := models.CivilDate(t.Time)
	return &v
}
