// Package seed loads demo neighbours and items for development databases.
package seed

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"helpboard/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// DemoPassword is the password every seeded neighbour signs in with.
const DemoPassword = "Neighbour-Demo-1"

//go:embed fixtures.yml
var fixturesYAML []byte

var categories = []string{"tools", "garden", "kitchen", "books", "outdoors", "kids"}

// Fixtures is the shape of the embedded demo file.
type Fixtures struct {
	Neighbours []NeighbourFixture `yaml:"neighbours"`
}

// NeighbourFixture describes one named demo user and the items they own.
type NeighbourFixture struct {
	Name     string        `yaml:"name"`
	Email    string        `yaml:"email"`
	Location string        `yaml:"location"`
	Items    []ItemFixture `yaml:"items"`
}

// ItemFixture describes one demo item.
type ItemFixture struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Type        string `yaml:"type"`
}

// Options configure a seed run.
type Options struct {
	// ExtraNeighbours is the number of generated neighbours added after the fixtures.
	ExtraNeighbours int
	// ItemsPerNeighbour applies to generated neighbours only.
	ItemsPerNeighbour int
	// RandSeed makes generated data reproducible when non-zero.
	RandSeed int64
}

// DefaultOptions returns the options used by bootstrap.
func DefaultOptions() Options {
	return Options{ExtraNeighbours: 8, ItemsPerNeighbour: 2, RandSeed: 42}
}

// LoadFixtures parses the embedded fixture file.
func LoadFixtures() (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(fixturesYAML, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	for i, n := range f.Neighbours {
		if strings.TrimSpace(n.Email) == "" {
			return nil, fmt.Errorf("fixture neighbour %d has no email", i)
		}
		for _, it := range n.Items {
			if !models.ItemType(it.Type).Valid() {
				return nil, fmt.Errorf("fixture item %q has unknown type %q", it.Title, it.Type)
			}
		}
	}
	return &f, nil
}

// Factory builds neighbours and items and persists them to the database.
type Factory struct {
	db     *gorm.DB
	opts   Options
	faker  *gofakeit.Faker
	hashed string
}

// NewFactory creates a Factory bound to db. The demo password is hashed once.
func NewFactory(db *gorm.DB, opts Options) (*Factory, error) {
	seed := opts.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}
	return &Factory{db: db, opts: opts, faker: gofakeit.New(seed), hashed: string(hash)}, nil
}

// Neighbour returns the user with the given email, creating it with items
// when it does not exist yet. created reports whether anything was written.
func (f *Factory) Neighbour(n NeighbourFixture) (user *models.User, created bool, err error) {
	email := strings.ToLower(strings.TrimSpace(n.Email))
	err = f.db.Transaction(func(tx *gorm.DB) error {
		var existing models.User
		findErr := tx.Where("email = ?", email).First(&existing).Error
		switch {
		case findErr == nil:
			user = &existing
			return nil
		case !errors.Is(findErr, gorm.ErrRecordNotFound):
			return findErr
		}

		user = &models.User{
			Name:     n.Name,
			Email:    email,
			Password: f.hashed,
			Location: n.Location,
		}
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		for _, it := range n.Items {
			item := &models.Item{
				OwnerID:     user.ID,
				Title:       it.Title,
				Description: it.Description,
				Category:    strings.ToLower(it.Category),
				Type:        models.ItemType(strings.ToUpper(it.Type)),
				Status:      models.ItemAvailable,
			}
			if err := tx.Create(item).Error; err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("seed neighbour %s: %w", email, err)
	}
	return user, created, nil
}

// Generated builds the i-th fake neighbour. Emails are indexed so repeated
// runs land on the same rows.
func (f *Factory) Generated(i int) NeighbourFixture {
	types := []string{string(models.ItemTypeBorrow), string(models.ItemTypeLend), string(models.ItemTypeDonate)}
	n := NeighbourFixture{
		Name:     f.faker.Name(),
		Email:    fmt.Sprintf("neighbour%02d@helpboard.local", i),
		Location: f.faker.Street(),
	}
	for j := 0; j < f.opts.ItemsPerNeighbour; j++ {
		n.Items = append(n.Items, ItemFixture{
			Title:       f.faker.HipsterWord() + " " + f.faker.Noun(),
			Description: f.faker.Sentence(10),
			Category:    f.faker.RandomString(categories),
			Type:        f.faker.RandomString(types),
		})
	}
	return n
}

// Result counts what a run created.
type Result struct {
	Neighbours int
	Skipped    int
}

// Run seeds the fixtures and then the generated neighbours.
func Run(db *gorm.DB, opts Options) (Result, error) {
	var res Result
	fixtures, err := LoadFixtures()
	if err != nil {
		return res, err
	}
	f, err := NewFactory(db, opts)
	if err != nil {
		return res, err
	}

	all := append([]NeighbourFixture{}, fixtures.Neighbours...)
	for i := 1; i <= opts.ExtraNeighbours; i++ {
		all = append(all, f.Generated(i))
	}

	for _, n := range all {
		_, created, err := f.Neighbour(n)
		if err != nil {
			return res, err
		}
		if created {
			res.Neighbours++
		} else {
			res.Skipped++
		}
	}
	return res, nil
}
