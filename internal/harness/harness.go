// Package harness generates the instrumented bash invocations that
// produce trace files. The printf format strings below are the wire
// contract with the trace parser: epoch micros, pid, depth, lineno,
// source, funcname, command.
package harness

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Methods maps method names (and their numeric aliases) to bash
// instrumentation templates. XTRACE is the fastest, DEBUG the most
// reliable, VAR buffers in memory and does not handle subshells.
var Methods = map[string]string{
	"XTRACE": xtraceScript,
	"DEBUG":  debugScript,
	"VAR":    varScript,
	"1":      xtraceScript,
	"2":      debugScript,
	"3":      varScript,
}

const (
	xtraceScript = `
export BASH_XTRACEFD PS4='+ ${EPOCHREALTIME//[.,]} ${BASHPID:-${BASH_SUBSHELL:-$$}} ${#BASH_SOURCE[@]} ${LINENO:-0} ${BASH_SOURCE[0]:-<} ${FUNCNAME[0]:->} '
exec {BASH_XTRACEFD}>"$1"
shift
%BEFORE%
set -x
%SCRIPT%
: END
`

	debugScript = `
set -T
exec {_bashprof_fd}>"$1"
shift
%BEFORE%
trap 'printf "# %s %s %s %s %q %q %q\n" "${EPOCHREALTIME//[.,]}" "${BASHPID:-${BASH_SUBSHELL:-$$}}" "${#BASH_SOURCE[@]}" "${LINENO:-0}" "${BASH_SOURCE[0]:-<}" "${FUNCNAME[0]:->}" "$BASH_COMMAND" >&"$_bashprof_fd"' DEBUG
%SCRIPT%
: END
`

	varScript = `
set -T
readonly _bashprof_file=$1
shift
declare -a _bashprof_var='()'
%BEFORE%
trap 'printf -v "_bashprof_var[${#_bashprof_var[@]}]" "# %s %s %s %s %q %q %q" "${EPOCHREALTIME//[.,]}" "${BASHPID:-${BASH_SUBSHELL:-$$}}" "${#BASH_SOURCE[@]}" "${LINENO:-0}" "${BASH_SOURCE[0]:-<}" "${FUNCNAME[0]:->}" "$BASH_COMMAND"' DEBUG
%SCRIPT%
printf "%s\n" "${_bashprof_var[@]}" >"$_bashprof_file"
`
)

// Spec describes one profiling run.
type Spec struct {
	// Script is the bash snippet to profile. It runs in the current
	// execution environment, so `source ./script.sh` profiles a file.
	Script string
	// Method selects the instrumentation template, by name or alias.
	Method string
	// Repeat duplicates the script n times joined with newlines.
	Repeat int
	// Before runs ahead of instrumentation, for environment setup.
	Before string
	// Output is the trace file path; stdout when empty.
	Output string
	// Args are passed through to the script.
	Args []string
}

// Command assembles the bash argv for the run.
func (s Spec) Command() ([]string, error) {
	tmpl, ok := Methods[strings.ToUpper(s.Method)]
	if !ok {
		return nil, fmt.Errorf("unknown profiling method %q", s.Method)
	}
	repeat := s.Repeat
	if repeat < 1 {
		repeat = 1
	}
	body := strings.TrimRight(strings.Repeat(s.Script+"\n", repeat), "\n")
	script := strings.ReplaceAll(tmpl, "%BEFORE%", s.Before)
	script = strings.ReplaceAll(script, "%SCRIPT%", body)

	output := s.Output
	if output == "" {
		output = "/dev/stdout"
	}
	argv := []string{"bash", "-c", script, "bash", output}
	argv = append(argv, s.Args...)
	return argv, nil
}

// Run executes the instrumented script, passing stdio through.
func Run(ctx context.Context, s Spec) error {
	argv, err := s.Command()
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// TempTraceFile returns a fresh trace file path under the system temp
// directory, for profile-then-analyze flows that need an intermediate
// file instead of a pipe.
func TempTraceFile() string {
	return filepath.Join(os.TempDir(), "bashprof-"+uuid.NewString()+".trace")
}

// Quote renders an argv as a copy-pasteable shell command line.
func Quote(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = quoteWord(a)
	}
	return strings.Join(quoted, " ")
}

func quoteWord(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n\"'\\$`&|;<>(){}*?#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
