package bot

import "strings"

// argCount fixes the argument arity of every administrative command.
// Arity is validated before dispatch; anything else is usage error.
var argCount = map[string]int{
	"add-nickname":    1,
	"add-account":     1,
	"remove-nickname": 1,
	"remove-account":  1,
	"list-nicknames":  0,
	"list-accounts":   0,
}

// Usage is the command vocabulary shown for malformed input.
const Usage = `Commands:
  add-nickname <nickname>
  add-account <account>
  remove-nickname <nickname>
  remove-account <account>
  list-nicknames
  list-accounts`

// ParseCommand splits one command line and validates its arity. ok is
// false for empty input, unknown commands and wrong argument counts.
func ParseCommand(line string) (name string, args []string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, false
	}
	name, args = fields[0], fields[1:]
	want, known := argCount[name]
	if !known || len(args) != want {
		return name, args, false
	}
	return name, args, true
}

// RunCommand applies one parsed administrative command to the ledger and
// returns the reply text. Both front ends (the operator-gated IRC protocol
// and the ungated console) funnel through here. List output is one
// identity per line in insertion order; an empty list is the empty string.
func (b *Bot) RunCommand(name string, args []string) string {
	commandsTotal.WithLabelValues(name).Inc()
	switch name {
	case "add-nickname":
		b.ledger.AddNickname(args[0])
		return "Nickname added."
	case "add-account":
		b.ledger.AddAccount(args[0])
		return "Account added."
	case "remove-nickname":
		b.ledger.RemoveNickname(args[0])
		return "Nickname removed."
	case "remove-account":
		b.ledger.RemoveAccount(args[0])
		return "Account removed."
	case "list-nicknames":
		return strings.Join(b.ledger.Nicknames(), "\n")
	case "list-accounts":
		return strings.Join(b.ledger.Accounts(), "\n")
	}
	return Usage
}
