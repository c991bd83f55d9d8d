package session

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// buildSystemPrompt assembles the header.system_prompt for a newly
// created session: environment context the model needs to act
// usefully in workDir, any project-local custom rules file, and a
// short block of tool-usage guidance. It is computed once at session
// creation and stored verbatim as the session's Header entry.
func buildSystemPrompt(workDir string) string {
	var b strings.Builder

	b.WriteString("You are an autonomous coding agent working in a real project checkout. ")
	b.WriteString("Use the available tools to read, search, and modify files, and to run commands; ")
	b.WriteString("don't guess at file contents you haven't read.\n\n")

	b.WriteString(environmentContext(workDir))

	if rules := loadCustomRules(workDir); rules != "" {
		b.WriteString("\n## Project rules\n\n")
		b.WriteString(rules)
		b.WriteString("\n")
	}

	b.WriteString("\n## Tool usage\n\n")
	b.WriteString("- Read a file before editing it; don't assume its contents.\n")
	b.WriteString("- Prefer grep/find over bash pipelines for searching the tree.\n")
	b.WriteString("- edit requires old_string to be unique in the file unless replace_all is set.\n")
	b.WriteString("- Explain what a bash command does before running anything destructive.\n")
	b.WriteString("- Verify a change (read it back, run a test) before moving on.\n")

	return b.String()
}

func environmentContext(workDir string) string {
	var b strings.Builder
	b.WriteString("## Environment\n\n")
	fmt.Fprintf(&b, "- Working directory: %s\n", workDir)
	fmt.Fprintf(&b, "- Date: %s\n", time.Now().Format("2006-01-02"))
	fmt.Fprintf(&b, "- Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if branch := gitBranch(workDir); branch != "" {
		fmt.Fprintf(&b, "- Git branch: %s\n", branch)
	}
	if kind := detectProjectType(workDir); kind != "" {
		fmt.Fprintf(&b, "- Project type: %s\n", kind)
	}
	return b.String()
}

func gitBranch(workDir string) string {
	cmd := exec.Command("git", "branch", "--show-current")
	cmd.Dir = workDir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

var projectMarkers = []struct {
	file string
	kind string
}{
	{"go.mod", "Go"},
	{"package.json", "Node.js"},
	{"Cargo.toml", "Rust"},
	{"pyproject.toml", "Python"},
	{"requirements.txt", "Python"},
	{"pom.xml", "Java (Maven)"},
	{"build.gradle", "Java/Kotlin (Gradle)"},
	{"Gemfile", "Ruby"},
	{"composer.json", "PHP"},
	{"mix.exs", "Elixir"},
}

func detectProjectType(workDir string) string {
	for _, m := range projectMarkers {
		if _, err := os.Stat(filepath.Join(workDir, m.file)); err == nil {
			return m.kind
		}
	}
	return ""
}

// customRulesPaths are checked in order, first match wins, mirroring
// the precedence of a project-local override over a user-global one.
func customRulesPaths(workDir string) []string {
	paths := []string{
		filepath.Join(workDir, "AGENTS.md"),
		filepath.Join(workDir, "WUHU.md"),
		filepath.Join(workDir, ".wuhu", "rules.md"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "wuhu", "rules.md"))
	}
	return paths
}

func loadCustomRules(workDir string) string {
	for _, p := range customRulesPaths(workDir) {
		data, err := os.ReadFile(p)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}
