package rag

import (
	"fmt"
	"strings"

	"video-rag/internal/helper"
	"video-rag/internal/models"
)

// RenderContext numbers passages in rank order: "[i] (ts) text".
func RenderContext(results []models.RetrievalResult) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("[%d] (%s) %s", i+1, helper.FormatTimestamp(r.Passage.StartSeconds), r.Passage.Text)
	}
	return strings.Join(blocks, models.ContextSeparator)
}

// ProfileClause is empty when the profile carries nothing.
func ProfileClause(p *models.AskerProfile) string {
	if p.IsEmpty() {
		return ""
	}
	role, org := strings.TrimSpace(p.JobRole), strings.TrimSpace(p.OrganizationType)
	if role == "" {
		role = "unknown"
	}
	if org == "" {
		org = "unknown"
	}
	return fmt.Sprintf(models.ProfileInstructionTemplate, role, org)
}

func BuildPrompt(question string, results []models.RetrievalResult, profile *models.AskerProfile) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	b.WriteString(RenderContext(results))
	b.WriteString("\n\n")
	b.WriteString(models.AnswerInstructions)
	if clause := ProfileClause(profile); clause != "" {
		b.WriteString("\n\n")
		b.WriteString(clause)
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// MergeQuestions builds one question out of several earlier ones.
func MergeQuestions(questions []string) (string, error) {
	var lines []string
	for _, q := range questions {
		if q = strings.TrimSpace(q); q != "" {
			lines = append(lines, fmt.Sprintf("%d. %s", len(lines)+1, q))
		}
	}
	if len(lines) < 2 {
		return "", fmt.Errorf("%w: need at least two questions to merge, got %d", models.ErrInvalidRequest, len(lines))
	}
	return fmt.Sprintf(models.MergeQuestionsTemplate, strings.Join(lines, "\n")), nil
}
