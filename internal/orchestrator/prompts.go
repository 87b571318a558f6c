package orchestrator

// #region imports
import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/bibo/internal/progress"
)

// #endregion

// #region stage-titles

const (
	titleStructure   = "Step 1: Structural Analysis"
	titleComposition = "Step 2: Drafting & Composition"

	titleUnderstand = "Step 1: Understanding the Question"
	titleBrainstorm = "Step 2: Brainstorming Ideas"
	titleDraft      = "Step 3: Building a Draft"
	titleReview     = "Step 4: Reviewing & Improving"
	titleFinal      = "Step 5: Writing the Final Answer"
)

const (
	labelClassify = "Analyzing prompt complexity..."
	labelDirect   = "Answering directly..."
	labelProblem  = "Defining the Core Problem..."
	labelDraft    = "Writing First Draft..."
	labelFinal    = "Writing Final Answer..."
)

func thinkingLabel(name string) string {
	return name + " is thinking..."
}

func critiqueLabel(i, n int) string {
	return fmt.Sprintf("Reviewing & Improving (%d/%d)...", i, n)
}

func rewriteLabel(i, n int) string {
	return fmt.Sprintf("Improving the draft (%d/%d)...", i, n)
}

// #endregion

// #region history

const noHistory = "No previous conversation."

func formatHistory(history []Message) string {
	if len(history) == 0 {
		return noHistory
	}
	lines := make([]string, len(history))
	for i, m := range history {
		speaker := "User"
		if m.Role == RoleAssistant {
			speaker = "AI"
		}
		lines[i] = speaker + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

func promptWithHistory(prompt string, history []Message) string {
	return fmt.Sprintf("PREVIOUS CONVERSATION:\n%s\n\nCURRENT USER PROMPT: \"%s\"", formatHistory(history), prompt)
}

// #endregion

// #region stage-prompts

// combine renders executions under per-persona headers such as
// "--- IDEA FROM THE ARTIST ---".
func combine(kind string, execs []progress.Execution, name func(progress.Execution) string) string {
	var b strings.Builder
	for i, e := range execs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "--- %s FROM %s ---\n%s\n", kind, strings.ToUpper(name(e)), e.Response)
	}
	return b.String()
}

func problemPrompt(perspectives string) string {
	return "Based on the user's prompt and these initial analyses, frame a single, clear, and concise problem statement " +
		"or research question that will guide the entire inquiry. Your output must be ONLY the problem statement.\n\n" +
		perspectives
}

func brainstormPrompt(problem string) string {
	return fmt.Sprintf("Core Problem: \"%s\"", problem)
}

func evaluatePrompt(problem, ideas string) string {
	return fmt.Sprintf("Evaluate these ideas in relation to the core problem: \"%s\".\n\n%s", problem, ideas)
}

func draftPrompt(problem, inputs string) string {
	return fmt.Sprintf("Core Problem: \"%s\"\n\nSynthesize all the following perspectives (ideation, critical evaluation, analysis) "+
		"into a coherent first draft that addresses the core problem.\n\n%s", problem, inputs)
}

// critiquePrompt always quotes the original user prompt, never the
// intermediate problem statement.
func critiquePrompt(prompt, text string) string {
	return fmt.Sprintf("The original user prompt was: \"%s\"\n\nBased on that, review the following text. Does it fully satisfy the user? "+
		"Is it interesting, insightful, and not generic?\n\nText to review:\n\n%s", prompt, text)
}

func rewritePrompt(text, critique string) string {
	return fmt.Sprintf("Original Text:\n\"%s\"\n\nCritique:\n\"%s\"", text, critique)
}

func composePrompt(prompt, insights string) string {
	return fmt.Sprintf("---\nORIGINAL USER PROMPT:\n\"%s\"\n---\nKEY INSIGHTS (Use this as the primary source material for your response):\n\"%s\"\n---\n", prompt, insights)
}

// #endregion
