package predicate

import (
	_ "embed"
	"strings"

	"github.com/timvw/prompt-patrol/internal/model"
)

// judgeTemplate is the single-turn question sent to the judge.
// The response under evaluation is fenced in triple quotes so the judge
// cannot mistake it for part of the instruction.
// Loaded from prompts/judge.txt at compile time.
//
//go:embed prompts/judge.txt
var judgeTemplate string

// JudgeQuestion builds the judge conversation for question about response.
func JudgeQuestion(question, response string) model.Conversation {
	question = strings.TrimSuffix(strings.TrimSpace(question), "?")
	content := strings.NewReplacer(
		"{{question}}", question,
		"{{response}}", response,
	).Replace(strings.TrimRight(judgeTemplate, "\n"))
	return model.Conversation{{Role: model.RoleUser, Content: content}}
}

// IsAffirmative reports whether a judge reply counts as a pass: it contains
// "yes" in any letter case.
func IsAffirmative(reply string) bool {
	return strings.Contains(strings.ToLower(reply), "yes")
}
