package trainer

import (
	"errors"

	"github.com/kballard/go-shellquote"
)

// SplitCommand splits a configured interpreter invocation such as `conda run -n yolo python`
// into the executable and its leading arguments, honouring shell quoting
func SplitCommand(command string) (name string, args []string, err error) {
	words, err := shellquote.Split(command)
	if err != nil {
		return "", nil, err
	}
	if len(words) == 0 {
		return "", nil, errors.New("not a valid command: command is empty")
	}
	return words[0], words[1:], nil
}
