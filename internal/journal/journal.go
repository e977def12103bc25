// Package journal replays a YAML description of backpacks, agents and
// purchases through the services, in order.
package journal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"backpack/internal/ledger/models"
	"backpack/internal/metadata"
	id "backpack/pkg/domain"
	dErrors "backpack/pkg/domain-errors"
	"backpack/pkg/requestcontext"
)

// Journal is the replay file.
type Journal struct {
	// Admin performs issuance, agent registration and image changes. When
	// empty the caller passed to Replay is used.
	Admin string `yaml:"admin,omitempty"`

	// Image, when set, replaces the base image before any render.
	Image string `yaml:"image,omitempty"`

	Backpacks []Backpack `yaml:"backpacks"`
	Agents    []string   `yaml:"agents,omitempty"`
	Purchases []Purchase `yaml:"purchases"`
}

// Backpack is one backpack to issue.
type Backpack struct {
	Owner string `yaml:"owner"`
}

// Purchase is one purchase to record.
type Purchase struct {
	// Backpack is the 1-based position in Journal.Backpacks.
	Backpack int        `yaml:"backpack"`
	As       string     `yaml:"as"`
	Product  string     `yaml:"product"`
	Category string     `yaml:"category"`
	Tag      string     `yaml:"tag"`
	Amount   uint64     `yaml:"amount"`
	At       *time.Time `yaml:"at,omitempty"`
}

// Load reads a journal file.
func Load(path string) (*Journal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal file: %w", err)
	}
	return Decode(bytes.NewReader(data))
}

// Decode parses a journal with strict field validation and checks its
// purchase references.
func Decode(r io.Reader) (*Journal, error) {
	var j Journal
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&j); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "failed to parse journal")
	}
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return &j, nil
}

// Validate checks that every purchase names a listed backpack.
func (j *Journal) Validate() error {
	for i, p := range j.Purchases {
		if p.Backpack < 1 || p.Backpack > len(j.Backpacks) {
			return dErrors.New(dErrors.CodeInvalidInput,
				fmt.Sprintf("purchase %d references backpack %d, journal lists %d", i+1, p.Backpack, len(j.Backpacks)))
		}
	}
	return nil
}

type Issuer interface {
	Issue(ctx context.Context, caller, owner id.Principal) (id.BackpackID, error)
}

type AgentSetter interface {
	SetAgent(ctx context.Context, caller, principal id.Principal, allowed bool) error
}

type Recorder interface {
	RecordPurchase(ctx context.Context, caller id.Principal, backpackID id.BackpackID, purchase models.NewPurchase) (models.Receipt, error)
}

type ImageSetter interface {
	SetImage(ctx context.Context, caller id.Principal, uri string) error
}

type Renderer interface {
	Render(ctx context.Context, backpackID id.BackpackID) (metadata.Document, error)
}

// Services are the collaborators a replay drives.
type Services struct {
	Identity Issuer
	Access   AgentSetter
	Ledger   Recorder
	Images   ImageSetter
	Renderer Renderer
}

// Result lists the issued identifiers (in journal order) and their final
// documents.
type Result struct {
	Backpacks []id.BackpackID
	Receipts  []models.Receipt
	Documents []metadata.Document
}

// Replay applies the journal. It stops at the first failing step and
// reports which step failed.
func Replay(ctx context.Context, j *Journal, svc Services, caller id.Principal) (Result, error) {
	admin := caller
	if j.Admin != "" {
		parsed, err := id.ParsePrincipal(j.Admin)
		if err != nil {
			return Result{}, fmt.Errorf("journal admin: %w", err)
		}
		admin = parsed
	}

	var res Result
	if j.Image != "" {
		if err := svc.Images.SetImage(ctx, admin, j.Image); err != nil {
			return res, fmt.Errorf("set image: %w", err)
		}
	}

	for i, b := range j.Backpacks {
		owner, err := id.ParsePrincipal(b.Owner)
		if err != nil {
			return res, fmt.Errorf("backpack %d owner: %w", i+1, err)
		}
		backpackID, err := svc.Identity.Issue(ctx, admin, owner)
		if err != nil {
			return res, fmt.Errorf("issue backpack %d: %w", i+1, err)
		}
		res.Backpacks = append(res.Backpacks, backpackID)
	}

	for _, raw := range j.Agents {
		agent, err := id.ParsePrincipal(raw)
		if err != nil {
			return res, fmt.Errorf("agent %q: %w", raw, err)
		}
		if err := svc.Access.SetAgent(ctx, admin, agent, true); err != nil {
			return res, fmt.Errorf("set agent %s: %w", agent, err)
		}
	}

	for i, p := range j.Purchases {
		as, err := id.ParsePrincipal(p.As)
		if err != nil {
			return res, fmt.Errorf("purchase %d caller: %w", i+1, err)
		}
		stepCtx := ctx
		if p.At != nil {
			stepCtx = requestcontext.WithTime(ctx, *p.At)
		}
		receipt, err := svc.Ledger.RecordPurchase(stepCtx, as, res.Backpacks[p.Backpack-1], models.NewPurchase{
			Product:    p.Product,
			Category:   p.Category,
			TerpeneTag: p.Tag,
			Amount:     p.Amount,
		})
		if err != nil {
			return res, fmt.Errorf("record purchase %d: %w", i+1, err)
		}
		res.Receipts = append(res.Receipts, receipt)
	}

	for _, backpackID := range res.Backpacks {
		doc, err := svc.Renderer.Render(ctx, backpackID)
		if err != nil {
			return res, fmt.Errorf("render backpack %s: %w", backpackID, err)
		}
		res.Documents = append(res.Documents, doc)
	}
	return res, nil
}
