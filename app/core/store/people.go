package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"buddy/app/pkg/types"
)

type PeopleStore struct {
	db *DB
}

func NewPeopleStore(db *DB) *PeopleStore {
	return &PeopleStore{db: db}
}

type CreatePerson struct {
	Name           string
	Relationship   types.Relationship
	CustomRelation string
	Priority       types.Priority
	Birthday       string
	Phone          string
	Notes          string
}

type UpdatePerson struct {
	Name     *string
	Priority *types.Priority
	Birthday *string
	Phone    *string
	Notes    *string
}

const personColumns = `id, name, relationship, COALESCE(custom_relation, ''), priority, COALESCE(birthday, ''), COALESCE(phone, ''), COALESCE(notes, ''), created_at, updated_at`

func (s *PeopleStore) Create(ctx context.Context, input CreatePerson) (Person, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Person{}, fmt.Errorf("name is required")
	}
	now := time.Now()
	p := Person{
		ID:             uuid.NewString(),
		Name:           name,
		Relationship:   types.NormalizeRelationship(string(input.Relationship)),
		CustomRelation: input.CustomRelation,
		Priority:       types.ClampPriority(int(input.Priority)),
		Birthday:       input.Birthday,
		Phone:          input.Phone,
		Notes:          input.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := s.db.Conn().ExecContext(ctx, `
INSERT INTO people (id, name, relationship, custom_relation, priority, birthday, phone, notes, is_deleted, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		p.ID, p.Name, string(p.Relationship), nullIfEmpty(p.CustomRelation), int(p.Priority),
		nullIfEmpty(p.Birthday), nullIfEmpty(p.Phone), nullIfEmpty(p.Notes),
		millis(p.CreatedAt), millis(p.UpdatedAt))
	if err != nil {
		return Person{}, err
	}
	return p, nil
}

func (s *PeopleStore) GetAll(ctx context.Context) ([]Person, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT `+personColumns+` FROM people WHERE is_deleted = 0 ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Person, 0)
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (s *PeopleStore) GetByID(ctx context.Context, id string) (Person, error) {
	row := s.db.Conn().QueryRowContext(ctx, `SELECT `+personColumns+` FROM people WHERE id = ? AND is_deleted = 0`, id)
	return scanPerson(row)
}

func (s *PeopleStore) Update(ctx context.Context, id string, input UpdatePerson) (Person, error) {
	sets := make([]string, 0, 6)
	args := make([]interface{}, 0, 7)
	if input.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, strings.TrimSpace(*input.Name))
	}
	if input.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, int(types.ClampPriority(int(*input.Priority))))
	}
	if input.Birthday != nil {
		sets = append(sets, "birthday = ?")
		args = append(args, nullIfEmpty(*input.Birthday))
	}
	if input.Phone != nil {
		sets = append(sets, "phone = ?")
		args = append(args, nullIfEmpty(*input.Phone))
	}
	if input.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, nullIfEmpty(*input.Notes))
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = ?")
		args = append(args, millis(time.Now()))
		args = append(args, id)
		query := `UPDATE people SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND is_deleted = 0`
		if _, err := s.db.Conn().ExecContext(ctx, query, args...); err != nil {
			return Person{}, err
		}
	}
	return s.GetByID(ctx, id)
}

func (s *PeopleStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.Conn().ExecContext(ctx, `UPDATE people SET is_deleted = 1, updated_at = ? WHERE id = ?`, millis(time.Now()), id)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPerson(row rowScanner) (Person, error) {
	var (
		p         Person
		rel       string
		priority  int
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&p.ID, &p.Name, &rel, &p.CustomRelation, &priority, &p.Birthday, &p.Phone, &p.Notes, &createdAt, &updatedAt); err != nil {
		return Person{}, err
	}
	p.Relationship = types.Relationship(rel)
	p.Priority = types.Priority(priority)
	p.CreatedAt = time.UnixMilli(createdAt)
	p.UpdatedAt = time.UnixMilli(updatedAt)
	return p, nil
}
