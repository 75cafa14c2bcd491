package ai

import (
	"fmt"
	"strings"
)

const (
	graderSystemPrompt = "You are a strict and knowledgeable teacher."
	tutorSystemPrompt  = "You are a strict tutor."

	// MsgInsufficientContent is returned when the answer text is too short to grade.
	MsgInsufficientContent = "❗ Could not extract valid content. Please upload a clearer scan or type more text."
	// MsgGradingFailed is returned when the remote model call fails.
	MsgGradingFailed = "⚠️ Error generating feedback. Please try again later."
	// MsgChatFailed is returned when a follow-up question cannot be answered.
	MsgChatFailed = "⚠️ Error generating reply. Please try again later."
)

var gradingInstructions = []string{
	"Only evaluate the student's answer for the questions present in the teacher PDF above.",
	"Ignore any extra text the student wrote that does not match a question.",
	"Interpret intended meaning even if spelling, grammar, or formatting is poor.",
	"Try to make sense of the text extracted from student's answer as OCR may be inefficient sometimes.",
	"Try to be an understanding teacher and use the context to understand what the student has tried to tell.",
	"Do not mention text extracted from student's answer.",
	"Assign a score out of %[1]d for each question.",
	"Provide short feedback explaining why the score was assigned.",
	"Respond only in this format:",
}

func gradingPrompt(questionText, studentText string, maxScore int) string {
	var b strings.Builder
	b.WriteString("Teacher's Questions:\n\"\"\"")
	b.WriteString(questionText)
	b.WriteString("\"\"\"\n\nStudent's Answers:\n\"\"\"")
	b.WriteString(studentText)
	b.WriteString("\"\"\"\n\nInstructions:\n")
	for _, line := range gradingInstructions {
		b.WriteString("- ")
		if strings.Contains(line, "%[1]d") {
			line = fmt.Sprintf(line, maxScore)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nScore: X/%d\nFeedback: <your feedback>\n", maxScore)
	return b.String()
}

func chatPrompt(contextText, question string) string {
	return "Context:\n" + contextText + "\n\nQuestion: " + question
}
