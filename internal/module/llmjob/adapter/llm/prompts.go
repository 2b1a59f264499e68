package llm

import (
	"fmt"
	"strings"
)

func grammarPrompt(content, additionalContext string) string {
	var sb strings.Builder
	sb.WriteString("You are a grammar expert. Review the following notebook content for grammar and language issues. ")
	sb.WriteString("List every error and suggest a correction. If there are no issues, say 'No grammar issues found.'\n\n")
	writeContext(&sb, additionalContext)
	fmt.Fprintf(&sb, "Notebook Content:\n%s", content)
	return sb.String()
}

func plagiarismPrompt(code, language, additionalContext string) string {
	var sb strings.Builder
	sb.WriteString("You are an expert code plagiarism detector. Analyze the following code for potential plagiarism.\n\n")
	sb.WriteString("Evaluate:\n")
	sb.WriteString("1. Code originality and uniqueness\n")
	sb.WriteString("2. Common patterns versus copied solutions\n")
	sb.WriteString("3. Variable naming conventions\n")
	sb.WriteString("4. Code structure and style\n")
	sb.WriteString("5. Likelihood of being copied from online sources\n\n")
	sb.WriteString("Give a plagiarism score from 0-100% where:\n")
	sb.WriteString("- 0-20%: Highly original code\n")
	sb.WriteString("- 21-40%: Some common patterns but mostly original\n")
	sb.WriteString("- 41-60%: Mix of common and potentially copied elements\n")
	sb.WriteString("- 61-80%: Likely contains copied code segments\n")
	sb.WriteString("- 81-100%: High likelihood of plagiarism\n\n")
	sb.WriteString("Format your response as:\n")
	sb.WriteString("PLAGIARISM SCORE: [X]%\n")
	sb.WriteString("ANALYSIS: [Your detailed analysis]\n\n")
	writeContext(&sb, additionalContext)
	fmt.Fprintf(&sb, "Code to analyze%s:\n%s", languageSuffix(language), code)
	return sb.String()
}

func codeQualityPrompt(code, language, additionalContext string) string {
	if strings.TrimSpace(code) == "" {
		code = "[No code found]"
	}
	var sb strings.Builder
	sb.WriteString("You are a code reviewer. Review the following code for quality, readability, and best practices. ")
	sb.WriteString("Suggest any improvements or refactoring. If the code is good, say 'Code quality is good.'\n\n")
	writeContext(&sb, additionalContext)
	fmt.Fprintf(&sb, "Code%s:\n%s", languageSuffix(language), code)
	return sb.String()
}

func writeContext(sb *strings.Builder, additionalContext string) {
	if strings.TrimSpace(additionalContext) == "" {
		return
	}
	fmt.Fprintf(sb, "Additional context from the reviewer:\n%s\n\n", strings.TrimSpace(additionalContext))
}

func languageSuffix(language string) string {
	if language == "" {
		return ""
	}
	return fmt.Sprintf(" (%s)", language)
}
