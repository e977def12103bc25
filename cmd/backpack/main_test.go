package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"backpack/internal/ledger/models"
	"backpack/internal/platform/config"
	dErrors "backpack/pkg/domain-errors"
)

const referenceDocument = `{"name":"Backpack #1","description":"Personalized purchase history","image":"ipfs://base-image","attributes":[{"trait_type":"Items","value":3},{"trait_type":"Top Category","value":"Limonene"},{"trait_type":"Top Category Score","value":13}]}`

// CLISuite drives the root command against a fresh SQLite file, so state
// has to survive between invocations the way it does for a real user.
type CLISuite struct {
	suite.Suite
}

func TestCLISuite(t *testing.T) {
	suite.Run(t, new(CLISuite))
}

func (s *CLISuite) SetupTest() {
	t := s.T()
	t.Setenv("BACKPACK_ADMIN", "0xAdmin")
	t.Setenv("BACKPACK_STORE", "sqlite")
	t.Setenv("BACKPACK_SQLITE_PATH", filepath.Join(t.TempDir(), "backpack.db"))
	t.Setenv("BACKPACK_DESCRIPTION", "Personalized purchase history")
	t.Setenv("BACKPACK_IMAGE_URI", "ipfs://base-image")
	t.Setenv("BACKPACK_LOG_LEVEL", "error")
	t.Setenv("BACKPACK_REDIS_URL", "")
	t.Setenv("BACKPACK_KAFKA_BROKERS", "")
}

func (s *CLISuite) run(args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func (s *CLISuite) mustRun(args ...string) string {
	out, err := s.run(args...)
	s.Require().NoError(err, "backpack %s", strings.Join(args, " "))
	return out
}

func (s *CLISuite) TestReferenceScenario() {
	s.Equal("issued backpack 1 to 0xAlice\n", s.mustRun("issue", "0xAlice"))
	s.mustRun("agent", "set", "0xDispensary")

	s.mustRun("record", "1", "--as", "0xDispensary", "--product", "Sour Diesel", "--category", "Flower", "--tag", "Limonene", "--amount", "10")
	s.mustRun("record", "1", "--as", "0xDispensary", "--product", "Blue Dream Cart", "--category", "Vape", "--tag", "Myrcene", "--amount", "5")
	out := s.mustRun("record", "1", "--as", "0xAlice", "--product", "Citrus Gummies", "--category", "Gummy", "--tag", "Limonene", "--amount", "3", "--format", "json")

	var receipt models.Receipt
	s.Require().NoError(json.Unmarshal([]byte(out), &receipt))
	s.Equal(2, receipt.Index)
	s.Equal(3, receipt.Count)
	s.Equal("Limonene", receipt.Item.TerpeneTag)

	s.Equal("3\n", s.mustRun("count", "1"))
	s.Equal("Limonene\t13\n", s.mustRun("top", "1"))
	s.Equal(referenceDocument+"\n", s.mustRun("render", "1"))
	s.Contains(s.mustRun("verify", "1"), "scores consistent")

	var scores []models.CategoryScore
	s.Require().NoError(json.Unmarshal([]byte(s.mustRun("scores", "1", "-o", "json")), &scores))
	s.Equal([]models.CategoryScore{{Tag: "Limonene", Score: 13}, {Tag: "Myrcene", Score: 5}}, scores)

	var item models.PurchaseItem
	s.Require().NoError(json.Unmarshal([]byte(s.mustRun("item", "1", "1", "-o", "json")), &item))
	s.Equal("Blue Dream Cart", item.Product)
}

func (s *CLISuite) TestPermissionDenied() {
	s.mustRun("issue", "0xAlice")

	_, err := s.run("record", "1", "--as", "0xMallory", "--tag", "Limonene", "--amount", "1")
	s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))

	_, err = s.run("issue", "0xBob", "--as", "0xAlice")
	s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))

	s.Equal("0\n", s.mustRun("count", "1"))
}

func (s *CLISuite) TestTransferMovesRecordingRights() {
	s.mustRun("issue", "0xAlice")
	s.mustRun("transfer", "1", "0xBob", "--as", "0xAlice")

	_, err := s.run("record", "1", "--as", "0xAlice", "--tag", "Pinene")
	s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))
	s.mustRun("record", "1", "--as", "0xBob", "--tag", "Pinene")
	s.Equal("Pinene\t1\n", s.mustRun("top", "1"))
}

func (s *CLISuite) TestQueryErrors() {
	_, err := s.run("count", "9")
	s.True(dErrors.HasCode(err, dErrors.CodeUnknownBackpack))

	s.mustRun("issue", "0xAlice")
	_, err = s.run("item", "1", "0")
	s.True(dErrors.HasCode(err, dErrors.CodeIndexOutOfRange))

	_, err = s.run("item", "1", "first")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = s.run("count", "zero")
	s.Error(err)
}

func (s *CLISuite) TestAgentsAndImage() {
	s.mustRun("agent", "set", "0xB")
	s.mustRun("agent", "set", "0xA")
	s.mustRun("agent", "set", "0xB", "--revoke")

	var agents []string
	s.Require().NoError(json.Unmarshal([]byte(s.mustRun("agent", "list", "-o", "json")), &agents))
	s.Equal([]string{"0xA"}, agents)

	s.Equal("ipfs://base-image\n", s.mustRun("image", "get"))
	s.mustRun("image", "set", "ipfs://new-image")
	s.Equal("ipfs://new-image\n", s.mustRun("image", "get"))

	_, err := s.run("image", "set", "ipfs://mine", "--as", "0xA")
	s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))
}

func (s *CLISuite) TestReplay() {
	out := s.mustRun("replay", "../../internal/journal/testdata/reference.yaml")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	s.Require().Len(lines, 2)
	s.Equal(referenceDocument, lines[0])
	s.Contains(lines[1], `"value":"Pinene"`)

	// State persisted by the replay is visible to later invocations.
	s.Equal("3\n", s.mustRun("count", "1"))
}

func (s *CLISuite) TestMemoryStoreStartsEmpty() {
	s.mustRun("issue", "0xAlice", "--store", "memory")
	_, err := s.run("count", "1", "--store", "memory")
	s.True(dErrors.HasCode(err, dErrors.CodeUnknownBackpack))
}

func TestRootFlagValidation(t *testing.T) {
	t.Setenv("BACKPACK_ADMIN", "0xAdmin")
	t.Setenv("BACKPACK_LOG_LEVEL", "error")

	cases := map[string][]string{
		"unknown format":      {"count", "1", "--format", "yaml", "--store", "memory"},
		"unknown store":       {"count", "1", "--store", "mongo"},
		"db on memory":        {"count", "1", "--store", "memory", "--db", "x.db"},
		"missing env file":    {"count", "1", "--store", "memory", "--env-file", "testdata/none.env"},
		"postgres without db": {"count", "1", "--store", "postgres"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("BACKPACK_DATABASE_URL", "")
			var out bytes.Buffer
			cmd := newRootCmd(&out, &out)
			cmd.SetArgs(args)
			require.Error(t, cmd.ExecuteContext(context.Background()))
		})
	}
}

func TestMissingAdmin(t *testing.T) {
	t.Setenv("BACKPACK_ADMIN", "")
	var out bytes.Buffer
	cmd := newRootCmd(&out, &out)
	cmd.SetArgs([]string{"count", "1", "--store", "memory"})
	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKPACK_ADMIN")
}

func TestCacheNamespace_PerLedger(t *testing.T) {
	memory := config.Config{Store: config.StoreMemory}
	assert.NotEqual(t, cacheNamespace(memory), cacheNamespace(memory), "each memory process is its own ledger")

	pinned := config.Config{Store: config.StoreMemory, Redis: config.RedisConfig{Namespace: "dev"}}
	assert.True(t, strings.HasPrefix(cacheNamespace(pinned), "dev-"))

	a := config.Config{Store: config.StoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "a.db")}
	b := config.Config{Store: config.StoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "b.db")}
	assert.Equal(t, cacheNamespace(a), cacheNamespace(a))
	assert.NotEqual(t, cacheNamespace(a), cacheNamespace(b))
}
