package directory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AgencyRepository handles read-only agencies queries.
type AgencyRepository interface {
	List(ctx context.Context, params ListParams) ([]Agency, int64, error)
}

// ContactRepository handles read-only contacts queries. ResolveByIDs is the
// record resolver consumed by the quota subsystem.
type ContactRepository interface {
	List(ctx context.Context, params ListParams) ([]Contact, int64, error)
	Search(ctx context.Context, query string) ([]Contact, error)
	ResolveByIDs(ctx context.Context, ids []string) ([]Contact, error)
}

type postgresAgencyRepository struct {
	pool *pgxpool.Pool
}

func NewAgencyRepository(pool *pgxpool.Pool) AgencyRepository {
	return &postgresAgencyRepository{pool: pool}
}

const agencyColumns = `id, name, state, state_code, type, population, website,
	total_schools, total_students, mailing_address, physical_address,
	grade_span, locale, county, phone, status, student_teacher_ratio,
	created_at, updated_at`

func (r *postgresAgencyRepository) List(ctx context.Context, params ListParams) ([]Agency, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM agencies`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting agencies: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM agencies ORDER BY name LIMIT $1 OFFSET $2`, agencyColumns)
	rows, err := r.pool.Query(ctx, query, params.PageSize, params.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing agencies: %w", err)
	}
	defer rows.Close()

	var agencies []Agency
	for rows.Next() {
		var a Agency
		err := rows.Scan(
			&a.ID, &a.Name, &a.State, &a.StateCode, &a.Type, &a.Population,
			&a.Website, &a.TotalSchools, &a.TotalStudents, &a.MailingAddress,
			&a.PhysicalAddress, &a.GradeSpan, &a.Locale, &a.County, &a.Phone,
			&a.Status, &a.StudentTeacherRatio, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning agency row: %w", err)
		}
		agencies = append(agencies, a)
	}
	return agencies, total, rows.Err()
}

type postgresContactRepository struct {
	pool *pgxpool.Pool
}

func NewContactRepository(pool *pgxpool.Pool) ContactRepository {
	return &postgresContactRepository{pool: pool}
}

const contactColumns = `id, first_name, last_name, email, phone, title,
	email_type, contact_form_url, department, agency_id, created_at, updated_at`

func (r *postgresContactRepository) List(ctx context.Context, params ListParams) ([]Contact, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM contacts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting contacts: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM contacts ORDER BY last_name, first_name, id LIMIT $1 OFFSET $2`, contactColumns)
	rows, err := r.pool.Query(ctx, query, params.PageSize, params.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing contacts: %w", err)
	}
	defer rows.Close()

	contacts, err := scanContacts(rows)
	if err != nil {
		return nil, 0, err
	}
	return contacts, total, nil
}

func (r *postgresContactRepository) Search(ctx context.Context, query string) ([]Contact, error) {
	pattern := "%" + query + "%"
	sql := fmt.Sprintf(`SELECT %s FROM contacts
		WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR email ILIKE $1
		ORDER BY last_name, first_name, id
		LIMIT %d`, contactColumns, searchResultLimit)

	rows, err := r.pool.Query(ctx, sql, pattern)
	if err != nil {
		return nil, fmt.Errorf("searching contacts: %w", err)
	}
	defer rows.Close()

	return scanContacts(rows)
}

// ResolveByIDs resolves contact IDs into full rows, best-effort: unknown IDs
// are silently dropped and the result preserves the order of ids.
func (r *postgresContactRepository) ResolveByIDs(ctx context.Context, ids []string) ([]Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM contacts WHERE id = ANY($1)`, contactColumns)
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving contacts: %w", err)
	}
	defer rows.Close()

	found, err := scanContacts(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Contact, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}

	resolved := make([]Contact, 0, len(found))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			resolved = append(resolved, c)
		}
	}
	return resolved, nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanContacts(rows pgxRows) ([]Contact, error) {
	var contacts []Contact
	for rows.Next() {
		var c Contact
		err := rows.Scan(
			&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Title,
			&c.EmailType, &c.ContactFormURL, &c.Department, &c.AgencyID,
			&c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning contact row: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
