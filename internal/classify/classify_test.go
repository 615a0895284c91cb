package classify

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/licitahub/atendechat/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChain(t *testing.T) *Chain {
	t.Helper()
	rs := RuleSet{Rules: DefaultRules(), Topics: DefaultTopics()}
	c, err := NewChain(rs, "Aguarde, estamos conectando você a um atendente.", 2*time.Second, logging.New(nil, "silent", "json"))
	require.NoError(t, err)
	return c
}

// --- normalization ---

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Olá", "ola"},
		{"  BOM   DIA  ", "bom dia"},
		{"Certidão de Habilitação", "certidao de habilitacao"},
		{"preço", "preco"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalize(tt.in), "input %q", tt.in)
	}
}

// --- rule stage ---

func TestClassify_GreetingIsDeterministic(t *testing.T) {
	c := testChain(t)

	// "Olá" must always hit the greeting rule and never escalate by itself.
	for i := 0; i < 50; i++ {
		out := c.Classify("Olá")
		assert.Equal(t, "greeting", out.Category)
		assert.Equal(t, SourceRule, out.Source)
		assert.False(t, out.Escalate)
		assert.Zero(t, out.EscalateAfter)
	}
}

func TestClassify_ReplyIsFromCandidateSet(t *testing.T) {
	c := testChain(t)

	var greeting Rule
	for _, r := range DefaultRules() {
		if r.Category == "greeting" {
			greeting = r
		}
	}
	require.NotEmpty(t, greeting.Replies)

	for i := 0; i < 30; i++ {
		out := c.Classify("oi")
		assert.Contains(t, greeting.Replies, out.Reply)
	}
}

func TestClassify_RequiresHumanSchedulesEscalation(t *testing.T) {
	c := testChain(t)

	out := c.Classify("quero cancelar minha assinatura")
	assert.Equal(t, "cancellation", out.Category)
	assert.False(t, out.Escalate, "reply is shown, escalation is deferred")
	assert.Equal(t, 2*time.Second, out.EscalateAfter)
	assert.NotEmpty(t, out.Reply)
}

// --- contextual stage ---

func TestClassify_ContextualTopic(t *testing.T) {
	c := testChain(t)

	out := c.Classify("como acompanho um edital de pregão?")
	assert.Equal(t, "licitacao", out.Category)
	assert.Equal(t, SourceContextual, out.Source)
	assert.False(t, out.Escalate, "contextual success never escalates")
}

// --- default escalation ---

func TestClassify_NoMatchEscalates(t *testing.T) {
	c := testChain(t)

	out := c.Classify("quero falar com um atendente")
	assert.True(t, out.Escalate)
	assert.Equal(t, SourceEscalation, out.Source)
	assert.Equal(t, "Aguarde, estamos conectando você a um atendente.", out.Reply)
}

func TestClassify_PanickingResponderFallsThrough(t *testing.T) {
	rs := RuleSet{Rules: DefaultRules()}
	c, err := NewChain(rs, "handoff", time.Second, logging.New(nil, "silent", "json"))
	require.NoError(t, err)

	c.AddResponder(func(text string) (string, string, bool) {
		panic("classifier bug")
	})

	out := c.Classify("mensagem sem categoria nenhuma")
	assert.True(t, out.Escalate, "a classifier failure must never block escalation")
	assert.Equal(t, SourceEscalation, out.Source)
}

// --- rule table loading ---

func TestLoadRules_FromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
rules:
  - category: saudacao
    patterns: ["\\boi\\b"]
    replies: ["Oi!"]
topics:
  - category: ajuda
    keywords: ["ajuda"]
    reply: "Veja a central de ajuda."
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	rs, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rs.Rules, 1)
	assert.Equal(t, "saudacao", rs.Rules[0].Category)
	require.Len(t, rs.Topics, 1)
}

func TestLoadRules_MissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_RejectsBadTables(t *testing.T) {
	tests := []struct {
		name string
		rs   RuleSet
	}{
		{"empty category", RuleSet{Rules: []Rule{{Patterns: []string{"x"}, Replies: []string{"y"}}}}},
		{"no patterns", RuleSet{Rules: []Rule{{Category: "c", Replies: []string{"y"}}}}},
		{"no replies", RuleSet{Rules: []Rule{{Category: "c", Patterns: []string{"x"}}}}},
		{"bad regexp", RuleSet{Rules: []Rule{{Category: "c", Patterns: []string{"("}, Replies: []string{"y"}}}}},
		{"topic without reply", RuleSet{Topics: []Topic{{Category: "c", Keywords: []string{"k"}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.rs.Validate())
		})
	}
}

func TestDefaultTables_AreValid(t *testing.T) {
	rs := RuleSet{Rules: DefaultRules(), Topics: DefaultTopics()}
	assert.NoError(t, rs.Validate())
}
