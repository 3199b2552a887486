package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"bookledger/internal/catalog"
	"bookledger/internal/membership"
)

var seedBooks = []catalog.NewBook{
	{Name: "Dune", Description: "A desert planet, a noble family and the spice that binds an empire.", Quantity: 5},
	{Name: "Neuromancer", Description: "A washed up hacker is hired for one last job inside the matrix.", Quantity: 3},
	{Name: "Foundation", Description: "A mathematician predicts the fall of a galactic empire and plans for it.", Quantity: 0},
}

var seedPeople = []membership.NewPerson{
	{FirstName: "Ana", LastName: "Lima", NationalID: "529.982.247-25"},
	{FirstName: "Bruno", LastName: "Costa", NationalID: "111.444.777-35"},
}

// Seed registers a publisher, a few books and two people. It is meant for
// an empty development store.
func (a *App) Seed(ctx context.Context) error {
	pub, err := a.Catalog.AddPublisher(ctx, catalog.NewPublisher{Name: "Chilton Books"})
	if err != nil {
		return fmt.Errorf("seeding publisher: %w", err)
	}
	for _, b := range seedBooks {
		b.PublisherID = pub.ID
		if _, err := a.Catalog.RegisterBook(ctx, b); err != nil {
			return fmt.Errorf("seeding book %q: %w", b.Name, err)
		}
	}
	for _, p := range seedPeople {
		if _, err := a.Membership.RegisterPerson(ctx, p); err != nil {
			return fmt.Errorf("seeding person %s %s: %w", p.FirstName, p.LastName, err)
		}
	}
	log.Info().Int("books", len(seedBooks)).Int("people", len(seedPeople)).Msg("seed data loaded")
	return nil
}
