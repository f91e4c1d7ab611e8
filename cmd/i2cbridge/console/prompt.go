package console

import (
	"strings"

	"github.com/chzyer/readline"
)

const (
	Yes = "y"
	No  = "n"
)

var yesNoConstraints = []string{"n", "y"}

// NewShell returns a line editor with in-memory history.
func NewShell(prompt string, completions ...string) (*readline.Instance, error) {
	items := make([]readline.PrefixCompleterInterface, 0, len(completions))
	for _, c := range completions {
		items = append(items, readline.PcItem(c))
	}
	return readline.NewEx(&readline.Config{
		Prompt:          prompt,
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
}

// YesOrNo asks a question defaulting to no.
func YesOrNo(rl *readline.Instance, question string) (bool, error) {
	answer, err := Prompt(rl, question, yesNoConstraints...)
	if err != nil {
		return false, err
	}
	return answer == Yes, nil
}

// Prompt asks question on rl and returns the answer if it matches one of
// constraints, the first constraint otherwise.
func Prompt(rl *readline.Instance, question string, constraints ...string) (string, error) {
	def := strings.ToUpper(constraints[0])
	var prompt strings.Builder
	prompt.WriteString(question)
	prompt.WriteString(" [")
	prompt.WriteString(def)
	for i := 1; i < len(constraints); i++ {
		prompt.WriteString("/")
		prompt.WriteString(constraints[i])
	}
	prompt.WriteString("]: ")
	previous := rl.Config.Prompt
	rl.SetPrompt(prompt.String())
	defer rl.SetPrompt(previous)
	response, err := rl.Readline()
	if err != nil {
		return "", err
	}
	// return default on no input
	if response == "" {
		return constraints[0], nil
	}
	normalized := strings.ToLower(strings.TrimSpace(response))
	for _, c := range constraints {
		if normalized == c {
			return normalized, nil
		}
	}
	// no constraint matched, return default
	return constraints[0], nil
}
