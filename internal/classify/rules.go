// Package classify decides what happens to an inbound user message while no
// agent is assigned: a scripted reply, a contextual reply, or escalation to
// the human queue. The rule table is declarative data loaded at startup; the
// matching engine is a small interpreter over it.
package classify

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule is a named category with match patterns, candidate replies and an
// escalation flag. Patterns are case-insensitive regular expressions applied
// to the normalized (lowercased, accent-stripped) message text.
type Rule struct {
	Category      string   `yaml:"category"`
	Patterns      []string `yaml:"patterns"`
	Replies       []string `yaml:"replies"`
	RequiresHuman bool     `yaml:"requiresHuman,omitempty"`
}

// Topic is a keyword-driven contextual responder used when no rule matches.
// It produces a longer structured reply and never escalates by itself.
type Topic struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
	Reply    string   `yaml:"reply"`
}

// RuleSet is the full declarative classification table.
type RuleSet struct {
	Rules  []Rule  `yaml:"rules"`
	Topics []Topic `yaml:"topics"`
}

// LoadRules reads and validates a YAML rule table.
func LoadRules(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("reading rules file: %w", err)
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("parsing rules file: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return RuleSet{}, err
	}
	return rs, nil
}

// Validate checks the table for empty categories, missing replies and
// uncompilable patterns.
func (rs RuleSet) Validate() error {
	for i, r := range rs.Rules {
		if r.Category == "" {
			return fmt.Errorf("rule %d: empty category", i)
		}
		if len(r.Patterns) == 0 {
			return fmt.Errorf("rule %q: no patterns", r.Category)
		}
		if len(r.Replies) == 0 {
			return fmt.Errorf("rule %q: no replies", r.Category)
		}
		for _, p := range r.Patterns {
			if _, err := regexp.Compile("(?i)" + p); err != nil {
				return fmt.Errorf("rule %q: pattern %q: %w", r.Category, p, err)
			}
		}
	}
	for i, tp := range rs.Topics {
		if tp.Category == "" {
			return fmt.Errorf("topic %d: empty category", i)
		}
		if len(tp.Keywords) == 0 || tp.Reply == "" {
			return fmt.Errorf("topic %q: needs keywords and a reply", tp.Category)
		}
	}
	return nil
}

// normalize lowercases, strips Portuguese diacritics and collapses
// whitespace so patterns can be written in plain ASCII.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Map(stripAccent, s)
	return strings.Join(strings.Fields(s), " ")
}

func stripAccent(r rune) rune {
	switch r {
	case 'á', 'à', 'â', 'ã', 'ä':
		return 'a'
	case 'é', 'è', 'ê', 'ë':
		return 'e'
	case 'í', 'ì', 'î', 'ï':
		return 'i'
	case 'ó', 'ò', 'ô', 'õ', 'ö':
		return 'o'
	case 'ú', 'ù', 'û', 'ü':
		return 'u'
	case 'ç':
		return 'c'
	default:
		return r
	}
}

// DefaultRules returns the built-in scripted rule table for the support bot.
func DefaultRules() []Rule {
	return []Rule{
		{
			Category: "greeting",
			Patterns: []string{`\bola\b`, `\boi\b`, `\bbom dia\b`, `\bboa tarde\b`, `\bboa noite\b`},
			Replies: []string{
				"Olá! Como posso ajudar você hoje?",
				"Oi! Em que posso ajudar?",
				"Olá! Seja bem-vindo ao atendimento. Como posso ajudar?",
			},
		},
		{
			Category: "thanks",
			Patterns: []string{`\bobrigad[oa]\b`, `\bvaleu\b`, `\bagradecid[oa]\b`},
			Replies: []string{
				"De nada! Precisa de mais alguma coisa?",
				"Por nada! Estou à disposição.",
			},
		},
		{
			Category: "farewell",
			Patterns: []string{`\btchau\b`, `\bate logo\b`, `\badeus\b`, `\bencerrar\b`},
			Replies: []string{
				"Até logo! Se precisar, é só chamar.",
				"Tchau! Tenha um ótimo dia.",
			},
		},
		{
			Category: "business_hours",
			Patterns: []string{`\bhorario\b`, `\bque horas\b`, `\bexpediente\b`},
			Replies: []string{
				"Nosso atendimento funciona de segunda a sexta, das 8h às 18h.",
			},
		},
		{
			Category:      "cancellation",
			Patterns:      []string{`\bcancelar\b`, `\bcancelamento\b`},
			RequiresHuman: true,
			Replies: []string{
				"Entendo que você quer tratar de cancelamento. Vou acionar um atendente para ajudar com isso.",
			},
		},
	}
}

// DefaultTopics returns the built-in contextual topic table.
func DefaultTopics() []Topic {
	return []Topic{
		{
			Category: "licitacao",
			Keywords: []string{"licitacao", "edital", "pregao", "proposta", "certame"},
			Reply: "Sobre licitações: na plataforma você acompanha editais em tempo real, " +
				"recebe alertas por palavra-chave e monta propostas direto no painel. " +
				"Acesse o menu Licitações para ver os pregões abertos do seu segmento.",
		},
		{
			Category: "documento",
			Keywords: []string{"documento", "certidao", "anexo", "habilitacao"},
			Reply: "Sobre documentos: a aba Documentos guarda suas certidões e avisa com " +
				"antecedência quando alguma está para vencer. Você pode anexar novos " +
				"arquivos em PDF direto pelo navegador.",
		},
		{
			Category: "pagamento",
			Keywords: []string{"pagamento", "boleto", "fatura", "cobranca", "plano", "preco", "assinatura"},
			Reply: "Sobre pagamentos: boletos e notas fiscais ficam em Conta > Faturas. " +
				"Mudanças de plano entram em vigor no ciclo seguinte. Se a fatura não " +
				"chegou, verifique a caixa de spam antes de pedir segunda via.",
		},
	}
}
