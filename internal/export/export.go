package export

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"video-rag/internal/helper"
	"video-rag/internal/models"
)

const sheetName = "Questions"

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(
		html.WithHardWraps(),
	),
)

// AnswerMarkdown is the answer text followed by its numbered sources.
func AnswerMarkdown(a *models.AnswerRecord) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(a.Text))
	if len(a.Sources) > 0 {
		b.WriteString("\n\n#### Sources\n\n")
		for i, s := range a.Sources {
			fmt.Fprintf(&b, "%d. **(%s)** %s\n", i+1, helper.FormatTimestamp(s.StartSeconds), oneLine(s.Text))
		}
	}
	return b.String()
}

// RenderAnswerHTML renders the answer and its sources as HTML.
func RenderAnswerHTML(w io.Writer, a *models.AnswerRecord) error {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(AnswerMarkdown(a)), &buf); err != nil {
		return fmt.Errorf("failed to render answer: %w", err)
	}
	_, err := w.Write(bytes.TrimSpace(buf.Bytes()))
	return err
}

// WriteAnswersXLSX writes one row per question, newest first as given.
func WriteAnswersXLSX(w io.Writer, items []models.QuestionWithAnswer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	header := []interface{}{"Asked At", "Asker", "Question", "Answer", "Model", "Sources"}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, item := range items {
		row := []interface{}{
			item.Question.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			item.Question.AskerID,
			item.Question.Text,
			"", "", "",
		}
		if a := item.Answer; a != nil {
			row[3] = a.Text
			row[4] = a.Model
			row[5] = sourceTimestamps(a.Sources)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(sheetName, "C", "D", 60); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func sourceTimestamps(sources []models.Source) string {
	ts := make([]string, len(sources))
	for i, s := range sources {
		ts[i] = helper.FormatTimestamp(s.StartSeconds)
	}
	return strings.Join(ts, ", ")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
