package main

import (
	"fmt"
	"io"
	"strings"

	"chemagent/internal/toolregistry"

	"github.com/manifoldco/promptui"
)

// confirmToolSet reports catalog deviations and asks whether to continue.
// Non-interactive sessions and --yes proceed without asking.
func confirmToolSet(assumeYes bool, out io.Writer) toolregistry.ConfirmFunc {
	return func(v toolregistry.Verification, equipped []string) bool {
		printVerification(out, v, equipped)
		if assumeYes || !isTTY() {
			return true
		}
		prompt := promptui.Prompt{
			Label:     "Continue with this tool set",
			IsConfirm: true,
			Default:   "y",
		}
		_, err := prompt.Run()
		return err == nil
	}
}

func printVerification(out io.Writer, v toolregistry.Verification, equipped []string) {
	fmt.Fprintln(out, yellow("The equipped tools differ from the reference catalog."))
	if len(v.Missing) > 0 {
		fmt.Fprintf(out, "  %s %s\n", bold("missing:"), strings.Join(v.Missing, ", "))
	}
	if len(v.Extra) > 0 {
		fmt.Fprintf(out, "  %s %s\n", bold("extra:"), strings.Join(v.Extra, ", "))
	}
	if len(v.Duplicate) > 0 {
		fmt.Fprintf(out, "  %s %s\n", bold("duplicate:"), strings.Join(v.Duplicate, ", "))
	}
	fmt.Fprintf(out, "  %s %s\n", bold("equipped:"), strings.Join(equipped, ", "))
}
