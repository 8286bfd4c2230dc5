// Package chatbot answers visitor questions from a keyword-matched FAQ set.
package chatbot

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"gopkg.in/yaml.v3"
)

//go:embed faqs.yaml
var defaultFAQs []byte

// FAQ is one question/answer pair. AnswerHTML is rendered from the Markdown
// answer at load time.
type FAQ struct {
	Category   string   `yaml:"categoria" json:"categoria"`
	Question   string   `yaml:"pergunta" json:"pergunta"`
	Answer     string   `yaml:"resposta" json:"-"`
	Keywords   []string `yaml:"palavras_chave" json:"-"`
	AnswerHTML string   `yaml:"-" json:"-"`

	folded []string
}

type faqFile struct {
	Greeting     string   `yaml:"saudacao"`
	Contact      string   `yaml:"contacto"`
	QuickReplies []string `yaml:"respostas_rapidas"`
	FAQs         []FAQ    `yaml:"faqs"`
}

// Reply kinds.
const (
	KindFAQ      = "faq"
	KindGreeting = "saudacao"
	KindFallback = "sem_resposta"
)

// Reply is the bot's answer to one message.
type Reply struct {
	Kind       string `json:"tipo"`
	Answer     string `json:"resposta"`
	AnswerHTML string `json:"resposta_html"`
	Question   string `json:"pergunta,omitempty"`
	Category   string `json:"categoria,omitempty"`
	Matched    bool   `json:"encontrada"`
}

type knowledge struct {
	faqs         []FAQ
	quickReplies []string
	greeting     Reply
	fallback     Reply
}

var (
	kb *knowledge
	mu sync.RWMutex
)

// LoadDefault loads the FAQ set compiled into the binary.
func LoadDefault() error {
	return Load(defaultFAQs)
}

// LoadFile loads an FAQ set from a YAML file, replacing the current one.
func LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return Load(data)
}

// Load parses YAML FAQ data, renders every answer and swaps it in.
func Load(data []byte) error {
	var f faqFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse faqs: %w", err)
	}
	if len(f.FAQs) == 0 {
		return fmt.Errorf("faq set is empty")
	}

	md := goldmark.New()
	for i := range f.FAQs {
		q := &f.FAQs[i]
		if q.Question == "" || strings.TrimSpace(q.Answer) == "" {
			return fmt.Errorf("faq #%d: pergunta and resposta are required", i+1)
		}
		html, err := render(md, q.Answer)
		if err != nil {
			return fmt.Errorf("render faq %q: %w", q.Question, err)
		}
		q.AnswerHTML = html
		q.folded = make([]string, 0, len(q.Keywords))
		for _, k := range q.Keywords {
			if k = fold(k); k != "" {
				q.folded = append(q.folded, k)
			}
		}
	}

	greeting := strings.TrimSpace(f.Greeting)
	fallback := fallbackText(f.FAQs, f.Contact)

	k := &knowledge{faqs: f.FAQs, quickReplies: f.QuickReplies}
	k.greeting = Reply{Kind: KindGreeting, Answer: greeting}
	k.fallback = Reply{Kind: KindFallback, Answer: fallback}
	var err error
	if k.greeting.AnswerHTML, err = render(md, greeting); err != nil {
		return fmt.Errorf("render greeting: %w", err)
	}
	if k.fallback.AnswerHTML, err = render(md, fallback); err != nil {
		return fmt.Errorf("render fallback: %w", err)
	}

	mu.Lock()
	kb = k
	mu.Unlock()
	return nil
}

func render(md goldmark.Markdown, src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(strings.TrimSpace(src)), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func fallbackText(faqs []FAQ, contact string) string {
	var b strings.Builder
	b.WriteString("Desculpe, não encontrei uma resposta específica para essa pergunta.\n\nTenho informações sobre:\n\n")
	for _, c := range categories(faqs) {
		b.WriteString("- " + c + "\n")
	}
	b.WriteString("\nPode perguntar sobre qualquer um destes tópicos ou contactar-nos diretamente:\n\n")
	b.WriteString(strings.TrimSpace(contact))
	return b.String()
}

func categories(faqs []FAQ) []string {
	seen := make(map[string]bool)
	var out []string
	for _, q := range faqs {
		if !seen[q.Category] {
			seen[q.Category] = true
			out = append(out, q.Category)
		}
	}
	return out
}

var accentFolder = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a", "ä", "a",
	"é", "e", "è", "e", "ê", "e",
	"í", "i", "ì", "i", "î", "i",
	"ó", "o", "ò", "o", "ô", "o", "õ", "o", "ö", "o",
	"ú", "u", "ù", "u", "û", "u", "ü", "u",
	"ç", "c",
)

// fold lower-cases s and strips Portuguese diacritics so "Poupança" and
// "poupanca" match the same keyword.
func fold(s string) string {
	return strings.TrimSpace(accentFolder.Replace(strings.ToLower(s)))
}

var greetings = []string{"ola", "oi", "bom dia", "boa tarde", "boa noite", "hello", "hi"}

func isGreeting(folded string) bool {
	t := strings.Trim(folded, " !?.,")
	for _, g := range greetings {
		if t == g || strings.HasPrefix(t, g+" ") || strings.HasPrefix(t, g+",") || strings.HasPrefix(t, g+"!") {
			return true
		}
	}
	return false
}

// Answer picks the FAQ whose keywords best cover the message. Each keyword
// found in the message scores its length in characters; the highest score
// wins and ties go to the earlier FAQ. A message matching nothing gets the
// greeting when it opens with one, otherwise the fallback listing every
// category.
func Answer(message string) Reply {
	mu.RLock()
	k := kb
	mu.RUnlock()
	if k == nil {
		return Reply{Kind: KindFallback}
	}

	text := fold(message)
	best, bestScore := -1, 0
	for i, q := range k.faqs {
		score := 0
		for _, kw := range q.folded {
			if strings.Contains(text, kw) {
				score += utf8.RuneCountInString(kw)
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	if best >= 0 {
		q := k.faqs[best]
		return Reply{
			Kind:       KindFAQ,
			Answer:     strings.TrimSpace(q.Answer),
			AnswerHTML: q.AnswerHTML,
			Question:   q.Question,
			Category:   q.Category,
			Matched:    true,
		}
	}
	if text != "" && isGreeting(text) {
		return k.greeting
	}
	return k.fallback
}

// Greeting is the bot's opening message.
func Greeting() Reply {
	mu.RLock()
	defer mu.RUnlock()
	if kb == nil {
		return Reply{Kind: KindGreeting}
	}
	return kb.greeting
}

// Topic groups FAQ questions under a category.
type Topic struct {
	Category  string   `json:"categoria"`
	Questions []string `json:"perguntas"`
}

// Topics lists questions per category in file order.
func Topics() []Topic {
	mu.RLock()
	defer mu.RUnlock()
	if kb == nil {
		return nil
	}
	idx := make(map[string]int)
	var out []Topic
	for _, q := range kb.faqs {
		i, ok := idx[q.Category]
		if !ok {
			i = len(out)
			idx[q.Category] = i
			out = append(out, Topic{Category: q.Category})
		}
		out[i].Questions = append(out[i].Questions, q.Question)
	}
	return out
}

// QuickReplies returns the suggested opening questions.
func QuickReplies() []string {
	mu.RLock()
	defer mu.RUnlock()
	if kb == nil {
		return nil
	}
	out := make([]string, len(kb.quickReplies))
	copy(out, kb.quickReplies)
	return out
}
