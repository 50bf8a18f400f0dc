package bot

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// RunConsole reads administrative commands from r until EOF, one per line.
// The console shares the IRC front ends' command implementation but has no
// privilege gate. Command results go to out; usage hints go to errOut so
// they never mix with scripted output.
func (b *Bot) RunConsole(r io.Reader, out, errOut io.Writer) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name, args, ok := ParseCommand(line)
		if !ok {
			fmt.Fprintln(errOut, Usage)
			continue
		}
		if response := b.RunCommand(name, args); response != "" {
			fmt.Fprintln(out, response)
		}
	}
}
