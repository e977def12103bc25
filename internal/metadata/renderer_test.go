package metadata

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/suite"

	accessservice "backpack/internal/access/service"
	accessstore "backpack/internal/access/store"
	"backpack/internal/audit"
	identityservice "backpack/internal/identity/service"
	identitystore "backpack/internal/identity/store"
	"backpack/internal/ledger/models"
	ledgerservice "backpack/internal/ledger/service"
	ledgerstore "backpack/internal/ledger/store"
	"backpack/internal/metadata/store"
	id "backpack/pkg/domain"
	dErrors "backpack/pkg/domain-errors"
	backpacktest "backpack/pkg/testutil"
)

const (
	admin       = id.Principal("0xAdmin")
	owner       = id.Principal("0xOwner")
	description = "Personalized purchase history"
	baseImage   = "ipfs://base-image"
)

type brokenSettings struct{}

func (brokenSettings) Image(context.Context) (string, error) { return "", errors.New("settings offline") }
func (brokenSettings) SetImage(context.Context, string) error { return errors.New("settings offline") }

type RendererSuite struct {
	suite.Suite
	ctx      context.Context
	ledger   *ledgerservice.Service
	images   *Images
	events   *audit.InMemoryStore
	renderer *Renderer
	backpack id.BackpackID
}

func TestRendererSuite(t *testing.T) {
	suite.Run(t, new(RendererSuite))
}

func (s *RendererSuite) SetupTest() {
	s.ctx = backpacktest.Context()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	access, err := accessservice.New(admin, accessstore.NewInMemory())
	s.Require().NoError(err)
	identity, err := identityservice.New(identitystore.NewInMemory(), access)
	s.Require().NoError(err)
	s.ledger, err = ledgerservice.New(ledgerstore.NewInMemory(), identity, access, ledgerservice.WithLogger(logger))
	s.Require().NoError(err)

	s.events = audit.NewInMemoryStore()
	s.images = NewImages(store.NewInMemory(baseImage), access,
		WithImagesLogger(logger),
		WithImagesAuditPublisher(audit.NewPublisher(s.events)),
	)
	s.renderer = NewRenderer(s.ledger, s.images, description, WithLogger(logger))

	s.backpack, err = identity.Issue(s.ctx, admin, owner)
	s.Require().NoError(err)
}

func (s *RendererSuite) golden() *goldie.Goldie {
	return goldie.New(s.T(), goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
}

// TestReferenceScenario verifies the rendered document for the three-purchase
// example byte for byte.
func (s *RendererSuite) TestReferenceScenario() {
	for _, p := range []models.NewPurchase{
		{Product: "Sour Diesel", Category: "Flower", TerpeneTag: "Limonene", Amount: 10},
		{Product: "Blue Dream Cart", Category: "Vape", TerpeneTag: "Myrcene", Amount: 5},
		{Product: "Citrus Gummies", Category: "Gummy", TerpeneTag: "Limonene", Amount: 3},
	} {
		_, err := s.ledger.RecordPurchase(s.ctx, owner, s.backpack, p)
		s.Require().NoError(err)
	}

	doc, err := s.renderer.Render(s.ctx, s.backpack)
	s.Require().NoError(err)
	body, err := doc.Canonical()
	s.Require().NoError(err)
	s.golden().Assert(s.T(), "reference_scenario", body)
}

// TestEmptyBackpack verifies an empty backpack renders zero items and an
// empty top category.
func (s *RendererSuite) TestEmptyBackpack() {
	doc, err := s.renderer.Render(s.ctx, s.backpack)
	s.Require().NoError(err)
	s.Equal("Backpack #1", doc.Name)
	s.Equal(uint64(0), doc.Attributes[0].Value)
	s.Equal("", doc.Attributes[1].Value)

	body, err := doc.Canonical()
	s.Require().NoError(err)
	s.golden().Assert(s.T(), "empty_backpack", body)
}

// TestRenderIsIdempotent verifies two renders with no append in between
// encode to identical bytes.
func (s *RendererSuite) TestRenderIsIdempotent() {
	_, err := s.ledger.RecordPurchase(s.ctx, owner, s.backpack, models.NewPurchase{TerpeneTag: "Pinene", Amount: 2})
	s.Require().NoError(err)

	first, err := s.renderer.Render(s.ctx, s.backpack)
	s.Require().NoError(err)
	second, err := s.renderer.Render(s.ctx, s.backpack)
	s.Require().NoError(err)

	a, err := first.Canonical()
	s.Require().NoError(err)
	b, err := second.Canonical()
	s.Require().NoError(err)
	s.Equal(string(a), string(b))
}

// TestUnknownBackpack verifies rendering an unissued identifier fails.
func (s *RendererSuite) TestUnknownBackpack() {
	_, err := s.renderer.Render(s.ctx, s.backpack+1)
	s.True(dErrors.HasCode(err, dErrors.CodeUnknownBackpack))
}

// TestSetImage verifies only the administrator changes the image, and the
// next render picks it up.
func (s *RendererSuite) TestSetImage() {
	s.Run("non-administrator is denied", func() {
		err := s.images.SetImage(s.ctx, owner, "ipfs://mine")
		s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))
	})

	s.Run("administrator sets and render reflects it", func() {
		s.Require().NoError(s.images.SetImage(s.ctx, admin, "ipfs://new-base"))
		doc, err := s.renderer.Render(s.ctx, s.backpack)
		s.Require().NoError(err)
		s.Equal("ipfs://new-base", doc.Image)

		events, _ := s.events.ListByType(s.ctx, audit.EventImageSet)
		s.Require().Len(events, 1)
		s.Equal("ipfs://new-base", events[0].Image)
	})

	s.Run("settings failure is internal", func() {
		images := NewImages(brokenSettings{}, nil)
		_, err := images.Image(s.ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))

		renderer := NewRenderer(s.ledger, images, description)
		_, err = renderer.Render(s.ctx, s.backpack)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}
