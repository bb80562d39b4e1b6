// Package people registers the people and pets tables with tablemgr.
// Import this package to ensure both tables are registered.
package people

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/tablemgr/internal/logging"
	"github.com/JonMunkholm/tablemgr/internal/tablemgr"
)

// DDL creates both tables. It runs unchanged on PostgreSQL and SQLite.
//
// pets.owner_id has no foreign key: a person's row is deleted before its
// Delete hook removes the pets.
const DDL = `
CREATE TABLE IF NOT EXISTS people (
    id   BIGINT PRIMARY KEY,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pets (
    id       BIGINT PRIMARY KEY,
    owner_id BIGINT NOT NULL,
    name     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS pets_owner_id_idx ON pets (owner_id);
`

// Person owns zero or more pets.
type Person struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Pets []*Pet `json:"pets,omitempty"`
}

// Pet belongs to one person through OwnerID.
type Pet struct {
	ID      int64  `json:"id" table:"id,pk"`
	OwnerID int64  `json:"owner_id" table:"owner_id"`
	Name    string `json:"name" table:"name"`
}

func init() {
	registerPeople()
	registerPets()
}

func registerPeople() {
	tablemgr.Register(tablemgr.Table[Person]{
		Name: "people",
		Columns: []tablemgr.Column[Person]{
			{
				Name:       "id",
				PrimaryKey: true,
				Value:      func(p *Person) any { return p.ID },
				Ptr:        func(p *Person) any { return &p.ID },
			},
			{
				Name:  "name",
				Value: func(p *Person) any { return p.Name },
				Ptr:   func(p *Person) any { return &p.Name },
			},
		},
	})
}

func registerPets() {
	tablemgr.Register(tablemgr.FromTags[Pet]("", "pets"))
}

// Load fills p.Pets from the pets table.
func (p *Person) Load(ctx context.Context, m *tablemgr.Manager) error {
	pets, err := tablemgr.Query[Pet](ctx, m,
		tablemgr.Where("owner_id = ?", p.ID),
		tablemgr.OrderBy("id"),
	)
	if err != nil {
		return fmt.Errorf("load pets of person %d: %w", p.ID, err)
	}
	p.Pets = pets
	return nil
}

// Save points every pet at p and upserts them. Pets already owned by
// another person are skipped: moving a pet takes a delete from the old
// owner first.
func (p *Person) Save(ctx context.Context, m *tablemgr.Manager) error {
	if len(p.Pets) == 0 {
		return nil
	}

	taken, err := p.petsOwnedElsewhere(ctx, m)
	if err != nil {
		return fmt.Errorf("check pets of person %d: %w", p.ID, err)
	}

	keep := make([]*Pet, 0, len(p.Pets))
	for _, pet := range p.Pets {
		if owner, ok := taken[pet.ID]; ok {
			logging.FromContext(ctx).Warn("pet belongs to another person, skipping",
				"person_id", p.ID,
				"pet_id", pet.ID,
				"owner_id", owner,
			)
			continue
		}
		pet.OwnerID = p.ID
		keep = append(keep, pet)
	}

	if _, err := tablemgr.Upsert(ctx, m, keep); err != nil {
		return fmt.Errorf("save pets of person %d: %w", p.ID, err)
	}
	return nil
}

// petsOwnedElsewhere maps the ids in p.Pets that are stored under a
// different owner to that owner.
func (p *Person) petsOwnedElsewhere(ctx context.Context, m *tablemgr.Manager) (map[int64]int64, error) {
	marks := make([]string, len(p.Pets))
	args := make([]any, 0, len(p.Pets)+1)
	for i, pet := range p.Pets {
		marks[i] = "?"
		args = append(args, pet.ID)
	}
	args = append(args, p.ID)

	others, err := tablemgr.Query[Pet](ctx, m,
		tablemgr.Where("id IN ("+strings.Join(marks, ", ")+") AND owner_id <> ?", args...),
	)
	if err != nil {
		return nil, err
	}

	taken := make(map[int64]int64, len(others))
	for _, o := range others {
		taken[o.ID] = o.OwnerID
	}
	return taken, nil
}

// Delete removes every pet owned by p, including ones not in p.Pets.
func (p *Person) Delete(ctx context.Context, m *tablemgr.Manager) error {
	owned, err := tablemgr.Query[Pet](ctx, m, tablemgr.Where("owner_id = ?", p.ID))
	if err != nil {
		return fmt.Errorf("find pets of person %d: %w", p.ID, err)
	}
	if _, err := tablemgr.Delete(ctx, m, owned); err != nil {
		return fmt.Errorf("delete pets of person %d: %w", p.ID, err)
	}
	return nil
}
