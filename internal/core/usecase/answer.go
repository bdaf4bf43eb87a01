package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tndao/prospectus-rag/internal/core/domain"
	"github.com/tndao/prospectus-rag/internal/core/ports"
)

// ChatUseCase assembles the generation prompt from the reranked context and
// the structured fund-data summary. It performs no retrieval or ranking of
// its own and returns the generator's answer verbatim, with the citations it
// tagged into the context attached.
type ChatUseCase struct {
	repo      ports.DocumentRepository
	search    *SearchUseCase
	generator ports.AnswerGenerator
	topK      int
}

func NewChatUseCase(
	repo ports.DocumentRepository,
	search *SearchUseCase,
	generator ports.AnswerGenerator,
	topK int,
) *ChatUseCase {
	if topK <= 0 {
		topK = 5
	}
	return &ChatUseCase{
		repo:      repo,
		search:    search,
		generator: generator,
		topK:      topK,
	}
}

func (uc *ChatUseCase) Chat(
	ctx context.Context,
	documentID, question string,
	history []domain.ChatTurn,
) (*domain.Answer, error) {
	chunks, err := uc.search.retrieve(ctx, documentID, question, uc.topK)
	if err != nil {
		return nil, err
	}

	fields, err := uc.repo.GetExtractedFields(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch extracted fields: %w", err)
	}

	prompt := buildAnswerPrompt(question, formatStructuredSummary(fields), chunks)
	text, err := uc.generator.Generate(ctx, prompt, history)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &domain.Answer{
		Text:      text,
		Sources:   chunks,
		Citations: citationsUsed(text, chunks),
	}, nil
}

func buildAnswerPrompt(question, structuredSummary string, chunks []domain.RetrievedChunk) string {
	var context strings.Builder
	for i, chunk := range chunks {
		fmt.Fprintf(&context, "[C%d p.%d]\n%s\n\n", i+1, chunk.PageNumber, chunk.Text)
	}
	if context.Len() == 0 {
		context.WriteString("(no relevant passages found)\n")
	}
	if structuredSummary == "" {
		structuredSummary = "(none)"
	}

	return fmt.Sprintf(`You are a financial analysis assistant for investment fund prospectuses.

Use both sources below. Prefer SOURCE 1 for fees, names, codes and banks;
use SOURCE 2 for explanations, strategy, risks and terms.
When a statement comes from SOURCE 2, keep its [Cn p.N] tag next to it.
Answer in the language of the question. If neither source has the answer,
say that the document does not contain it.

SOURCE 1 - extracted structured data:
%s

SOURCE 2 - document passages:
%s
Question:
%s
`, structuredSummary, context.String(), question)
}

func formatStructuredSummary(fields map[string]domain.ExtractedField) string {
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	for _, key := range domain.SortedFieldKeys(fields) {
		field := fields[key]
		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}
		if field.Located {
			fmt.Fprintf(&b, "- %s: %s (p.%d)\n", key, truncateValue(value, 900), field.Page)
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", key, truncateValue(value, 900))
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncateValue(v string, maxRunes int) string {
	runes := []rune(v)
	if len(runes) <= maxRunes {
		return v
	}
	return string(runes[:maxRunes]) + " …"
}

var citationTagRe = regexp.MustCompile(`\[C(\d+) p\.(\d+)\]`)

// citationsUsed keeps only the context tags the generator actually carried
// into its answer, mapped back to chunk identities.
func citationsUsed(answer string, chunks []domain.RetrievedChunk) []domain.Citation {
	matches := citationTagRe.FindAllStringSubmatch(answer, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[int]struct{}, len(matches))
	out := make([]domain.Citation, 0, len(matches))
	for _, m := range matches {
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 || idx > len(chunks) {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		chunk := chunks[idx-1]
		out = append(out, domain.Citation{
			ChunkID: chunk.ChunkID,
			Page:    chunk.PageNumber,
			Quote:   shortQuote(chunk.Text, 120),
		})
	}
	return out
}
