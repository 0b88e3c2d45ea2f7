package ui

import "strings"

type commandName string

const (
	cmdVerify        commandName = "verify"
	cmdVerifyDataset commandName = "verify-dataset"
	cmdDraft         commandName = "draft"
	cmdUpload        commandName = "upload"
	cmdFile          commandName = "file"
	cmdActivate      commandName = "activate"
	cmdContract      commandName = "contract"
	cmdRun           commandName = "run"
	cmdCopy          commandName = "copy"
	cmdDataset       commandName = "dataset"
	cmdTable         commandName = "table"
	cmdHealth        commandName = "health"
	cmdQuit          commandName = "quit"
	cmdHelp          commandName = "help"
)

const helpText = "/verify  /verify-dataset  /draft TEXT  /upload [PATH]  /file PATH  /activate  /contract  /run [confirm]  /copy  /dataset NAME  /table NAME  /health  /quit"

// slashCommand is a parsed "/name args" line.
type slashCommand struct {
	name commandName
	arg  string
}

// parseSlashCommand splits a chat line starting with "/". Plain chat text
// returns ok=false.
func parseSlashCommand(line string) (slashCommand, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return slashCommand{}, false
	}
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	return slashCommand{
		name: commandName(strings.ToLower(strings.TrimSpace(name))),
		arg:  strings.TrimSpace(arg),
	}, true
}
